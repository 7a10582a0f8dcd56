package mpdwire

import (
	"github.com/fhs/gompd/v2/mpd"

	"github.com/mikey-austin/mpdbridge/internal/ports"
)

// Watcher adapts a gompd idle watcher to ports.Watcher.
type Watcher struct {
	w *mpd.Watcher
}

// NewWatcher opens a dedicated idle connection for the given subsystems.
// No subsystems means all of them.
func NewWatcher(ep ports.Endpoint, subsystems ...string) (*Watcher, error) {
	w, err := mpd.NewWatcher(ep.Network, ep.Address, ep.Password, subsystems...)
	if err != nil {
		return nil, err
	}
	return &Watcher{w: w}, nil
}

func (w *Watcher) Events() <-chan string {
	return w.w.Event
}

func (w *Watcher) Errors() <-chan error {
	return w.w.Error
}

func (w *Watcher) Close() error {
	return w.w.Close()
}

// OpenWatcher is NewWatcher returning the port interface.
func OpenWatcher(ep ports.Endpoint, subsystems ...string) (ports.Watcher, error) {
	w, err := NewWatcher(ep, subsystems...)
	if err != nil {
		return nil, err
	}
	return w, nil
}
