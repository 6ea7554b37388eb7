/*
Package ports defines the driven ports (interfaces) of a narrated tour.

These interfaces decouple the orchestration core from the browser it draws on, the
audio stack it speaks through, and the remote services it consults, so the same tour
can run against a real Chrome tab or an in-memory page.

# Key Interfaces

  - Surface: the host page. Finds elements, captures pixels, draws owned layers, emits UI events.
  - AudioPlayer, NativeSpeaker: play synthesized clips or fall back to platform speech.
  - SpeechEngine: streams recognition results for the speech recognizer.
  - AudioCache: memoizes synthesized narration (memory or Redis).
  - TourLoader: reads tour definitions (file, Loam, memory).
  - AnalyticsSink: receives fire-and-forget analytics events.
  - KnowledgeBase: supplies grounding text for conversation answers.
  - DistributedLocker: serializes cache warming across instances.
*/
package ports
