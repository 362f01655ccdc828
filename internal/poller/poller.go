package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zberg/go-vcontrold/internal/sink"
	"github.com/zberg/go-vcontrold/pkg/vcontrold"
)

// ValueReader is the part of vcontrold.Client the poller needs.
type ValueReader interface {
	Catalog(ctx context.Context) (*vcontrold.Catalog, error)
	GetValue(ctx context.Context, catalog *vcontrold.Catalog, name string) (vcontrold.Value, error)
}

var _ ValueReader = (*vcontrold.Client)(nil)

// Item is one value to poll.
type Item struct {
	Name    string
	Command string
	Refresh time.Duration
}

type scheduled struct {
	Item
	next time.Time
}

// Poller reads due items on every tick.
type Poller struct {
	reader ValueReader
	sink   sink.Sink
	items  []*scheduled
	tick   time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New creates a poller for items. Every item is due on the first cycle.
func New(reader ValueReader, s sink.Sink, items []Item, logger *slog.Logger) (*Poller, error) {
	if len(items) == 0 {
		return nil, errors.New("no items to poll")
	}

	p := &Poller{
		reader: reader,
		sink:   s,
		logger: logger,
		now:    time.Now,
	}
	for _, it := range items {
		if it.Refresh <= 0 {
			return nil, fmt.Errorf("item %q: refresh must be positive", it.Name)
		}
		if p.tick == 0 || it.Refresh < p.tick {
			p.tick = it.Refresh
		}
		p.items = append(p.items, &scheduled{Item: it})
	}
	return p, nil
}

// Run polls until ctx is cancelled. A failed cycle is logged and retried
// on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil && p.logger != nil {
			p.logger.Error("poll cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll reads every due item once and returns how many readings were
// delivered to the sink. Failures of single items are logged and do not
// stop the cycle; a catalog that cannot be obtained does.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	now := p.now()
	var due []*scheduled
	for _, it := range p.items {
		if !now.Before(it.next) {
			due = append(due, it)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	catalog, err := p.reader.Catalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: %w", err)
	}

	delivered := 0
	for _, it := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		it.next = now.Add(it.Refresh)

		v, err := p.reader.GetValue(ctx, catalog, it.Command)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("reading item failed", "item", it.Name, "command", it.Command, "error", err)
			}
			continue
		}

		r := sink.Reading{Item: it.Name, Command: it.Command, Value: v, Time: p.now()}
		if err := p.sink.Write(ctx, r); err != nil {
			if p.logger != nil {
				p.logger.Warn("delivering reading failed", "item", it.Name, "error", err)
			}
			continue
		}
		delivered++
	}

	if p.logger != nil {
		p.logger.Debug("poll cycle done", "due", len(due), "delivered", delivered)
	}
	return delivered, nil
}
