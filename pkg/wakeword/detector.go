// Package wakeword waits for a wake signal and then runs one blocking
// transcription session, handing final turns to the command dispatcher.
package wakeword

import (
	"context"
	"errors"
	"io"

	"github.com/teslashibe/go-presence/pkg/audioio"
)

// ErrSourceEnded is returned when the audio source ends before a wake.
var ErrSourceEnded = errors.New("wakeword: audio source ended")

// Detector blocks until it hears the wake signal on src.
type Detector interface {
	// Wait returns nil on wake, ctx.Err() on cancellation, or an error when
	// the source fails.
	Wait(ctx context.Context, src audioio.Source) error
}

// Trigger is a Detector fired from code, e.g. an HTTP endpoint. It ignores
// the audio source.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger creates a trigger. Fires while nobody waits are coalesced.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Fire requests a wake. It reports false when one is already pending.
func (t *Trigger) Fire() bool {
	select {
	case t.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Wait implements Detector.
func (t *Trigger) Wait(ctx context.Context, _ audioio.Source) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ch:
		return nil
	}
}

// Energy wakes when Required consecutive chunks exceed Threshold RMS
// (normalized to [0,1]). It stands in for a keyword model on hosts that
// have none.
type Energy struct {
	Threshold float64
	Required  int
}

// Wait implements Detector.
func (e Energy) Wait(ctx context.Context, src audioio.Source) error {
	required := e.Required
	if required < 1 {
		required = 1
	}

	run := 0
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrSourceEnded
			}
			return err
		}
		if chunk.Level() >= e.Threshold {
			run++
			if run >= required {
				return nil
			}
		} else {
			run = 0
		}
	}
}

// Any wakes on the first of its detectors to fire.
type Any []Detector

// Wait implements Detector. The remaining detectors are cancelled.
func (a Any) Wait(ctx context.Context, src audioio.Source) error {
	if len(a) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(a))
	for _, d := range a {
		go func(d Detector) {
			results <- d.Wait(ctx, src)
		}(d)
	}

	var firstErr error
	for range a {
		err := <-results
		if err == nil {
			return nil
		}
		// A failing detector does not stop the others.
		if firstErr == nil && !errors.Is(err, context.Canceled) {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return firstErr
}
