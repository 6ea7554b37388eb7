/*
Package speech turns narration text into audio and user speech into text.

The Synthesizer memoizes remote text-to-speech results by text, voice, speed and
language, and falls back to the platform's native speech when the remote service
is unavailable. Exactly one narration plays at a time.

The Recognizer wraps a streaming SpeechEngine into a start/stop/abort contract with
explicit subscriptions. Platforms without an engine report ErrRecognitionUnsupported
through the error handler instead of failing.
*/
package speech
