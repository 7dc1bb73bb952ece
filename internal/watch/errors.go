package watch

import "errors"

// Watcher errors
var (
	ErrParse          = errors.New("watched file is not valid JSON")
	ErrAlreadyRunning = errors.New("watcher is already running")
	ErrNoPath         = errors.New("watcher path is empty")
)
