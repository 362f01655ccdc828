package sink

import (
	"context"
	"errors"
	"time"

	"github.com/zberg/go-vcontrold/pkg/vcontrold"
)

// Sentinel errors for sink operations.
var (
	// ErrConnectionFailed is returned when a sink cannot reach its backend.
	ErrConnectionFailed = errors.New("sink: connection failed")

	// ErrWriteFailed is returned when a reading could not be delivered.
	ErrWriteFailed = errors.New("sink: write failed")
)

// Reading is one value read from the daemon.
type Reading struct {
	Item    string
	Command string
	Value   vcontrold.Value
	Time    time.Time
}

// Sink receives readings.
type Sink interface {
	Write(ctx context.Context, r Reading) error
	Close() error
}

// Fanout writes every reading to all of its sinks.
type Fanout []Sink

// Write delivers r to every sink, even when an earlier one fails.
func (f Fanout) Write(ctx context.Context, r Reading) error {
	var errs []error
	for _, s := range f {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
