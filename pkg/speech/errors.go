package speech

import "errors"

// ErrRecognitionUnsupported is reported when no speech engine is available.
var ErrRecognitionUnsupported = errors.New("speech recognition not supported")

// ErrSpeedLocked is returned by SetSpeed when users may not change the speed.
var ErrSpeedLocked = errors.New("speech speed is locked")
