package reactor

import "errors"

var (
	// ErrAlreadyRunning is returned when Run is called on a reactor that is running.
	ErrAlreadyRunning = errors.New("reactor: already running")

	// ErrStopped is returned when Run is called on a reactor that has already stopped.
	ErrStopped = errors.New("reactor: stopped")
)
