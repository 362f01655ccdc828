package sink

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Text writes one "<time> <item> <value>" line per reading.
type Text struct {
	w io.Writer
}

// NewText returns a Text sink writing to w.
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) Write(_ context.Context, r Reading) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := fmt.Fprintf(t.w, "%s %s %s\n", ts.Format(time.RFC3339), r.Item, r.Value); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (t *Text) Close() error { return nil }
