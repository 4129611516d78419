package watcher

import "errors"

var (
	// ErrFolderRequired is returned when no folder is given.
	ErrFolderRequired = errors.New("watch folder required")

	// ErrProcessorRequired is returned when no processor is given.
	ErrProcessorRequired = errors.New("file processor required")

	// ErrAlreadyRunning is returned when Run is called on a running watcher.
	ErrAlreadyRunning = errors.New("watcher already running")

	// ErrEventSource indicates the event source failed or closed unexpectedly.
	ErrEventSource = errors.New("event source error")
)
