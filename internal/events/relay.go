package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/tc/internal/core"
)

// relayBatchSize caps one read from the log tail.
const relayBatchSize = 200

// EventSource is the slice of the store the relay tails.
type EventSource interface {
	LastEventID(ctx context.Context) (int64, error)
	EventsAfter(ctx context.Context, cursor int64, limit int) ([]core.Event, error)
}

// Relay tails the persisted event log and republishes new rows on the
// bus. Running the fan-out off committed rows keeps per-subject bus
// order identical to commit order, which direct publishing from
// concurrent writers cannot guarantee.
type Relay struct {
	source   EventSource
	bus      Publisher
	interval time.Duration
	wake     chan struct{}
	logger   *slog.Logger

	cursor int64
}

// NewRelay creates a relay that polls at interval and can be nudged
// sooner with Notify.
func NewRelay(source EventSource, bus Publisher, interval time.Duration, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Relay{
		source:   source,
		bus:      bus,
		interval: interval,
		wake:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Notify nudges the relay to drain now instead of at the next poll.
// Never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run tails the log until ctx is cancelled. Only rows committed after
// Run starts are relayed; catch-up readers use the log directly.
func (r *Relay) Run(ctx context.Context) error {
	cursor, err := r.source.LastEventID(ctx)
	if err != nil {
		return err
	}
	r.cursor = cursor

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
		if err := r.drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient store trouble; the next pass retries from the
			// same cursor.
			r.logger.Warn("event relay read failed", "error", err)
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	for {
		batch, err := r.source.EventsAfter(ctx, r.cursor, relayBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, e := range batch {
			r.bus.Publish(e)
			r.cursor = e.ID
		}
	}
}
