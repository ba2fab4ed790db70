package db

import (
	"context"
	"time"

	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/timeutil"
)

// DefaultWatchInterval is how often a TrackWatcher polls the database.
const DefaultWatchInterval = 2 * time.Second

// Fingerprinter reports a value that changes whenever the watched tracks do.
type Fingerprinter interface {
	Fingerprint() (string, error)
}

// TrackWatcher polls a project and calls Notify when its tracks change.
// Writers may be other processes, so polling is the only signal available.
type TrackWatcher struct {
	Source   Fingerprinter
	Notify   func(ctx context.Context) error
	Interval time.Duration
	Clock    timeutil.Clock

	last string
}

func NewTrackWatcher(src Fingerprinter, notify func(ctx context.Context) error) *TrackWatcher {
	return &TrackWatcher{
		Source:   src,
		Notify:   notify,
		Interval: DefaultWatchInterval,
		Clock:    timeutil.RealClock{},
	}
}

// Run records the current fingerprint and polls until ctx is done.
func (w *TrackWatcher) Run(ctx context.Context) error {
	fp, err := w.Source.Fingerprint()
	if err != nil {
		return err
	}
	w.last = fp

	ticker := w.Clock.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if _, err := w.RunOnce(ctx); err != nil {
				monitoring.Opsf("[db] track watcher: %v", err)
			}
		}
	}
}

// RunOnce compares the fingerprint against the previous poll and notifies
// on change. It reports whether a change was seen.
func (w *TrackWatcher) RunOnce(ctx context.Context) (bool, error) {
	fp, err := w.Source.Fingerprint()
	if err != nil {
		return false, err
	}
	if fp == w.last {
		return false, nil
	}
	w.last = fp
	monitoring.Diagf("[db] tracks changed (%s)", fp)
	if w.Notify == nil {
		return true, nil
	}
	return true, w.Notify(ctx)
}
