package watcher

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event reports a new entry in the watched folder.
type Event struct {
	Path  string
	IsDir bool
}

// EventSource delivers creation events for a folder.
// Events and Errors are closed after Close.
type EventSource interface {
	// Add starts watching dir. It is not recursive.
	Add(dir string) error
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// FSNotifySource is an EventSource backed by fsnotify.
type FSNotifySource struct {
	watcher   *fsnotify.Watcher
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
}

// NewFSNotifySource creates an fsnotify event source.
func NewFSNotifySource() (*FSNotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventSource, err)
	}

	s := &FSNotifySource{
		watcher: w,
		events:  make(chan Event, 64),
		errors:  make(chan error, 8),
		done:    make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

// Add starts watching dir.
func (s *FSNotifySource) Add(dir string) error {
	if err := s.watcher.Add(dir); err != nil {
		return fmt.Errorf("%w: watch %s: %v", ErrEventSource, dir, err)
	}
	return nil
}

// Events returns the channel of creation events.
func (s *FSNotifySource) Events() <-chan Event {
	return s.events
}

// Errors returns the channel of watch errors.
func (s *FSNotifySource) Errors() <-chan error {
	return s.errors
}

// Close stops watching and closes both channels.
func (s *FSNotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

func (s *FSNotifySource) forward() {
	defer close(s.events)
	defer close(s.errors)

	fsEvents := s.watcher.Events
	fsErrors := s.watcher.Errors
	for fsEvents != nil || fsErrors != nil {
		select {
		case <-s.done:
			return
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			// Files moved into the folder also arrive as Create
			if !ev.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(ev.Name)
			event := Event{Path: ev.Name, IsDir: err == nil && info.IsDir()}
			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}
