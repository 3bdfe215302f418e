package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forumkit/searchsync/internal/forum"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/kafka"
	"github.com/forumkit/searchsync/pkg/logger"
	"github.com/forumkit/searchsync/pkg/metrics"
	"github.com/forumkit/searchsync/pkg/resilience"
)

// Handler adapts the Router to the mutation-event stream. Undecodable and
// invalid events are logged and dropped so one bad message cannot wedge its
// partition; store and engine failures propagate, which leaves the message
// uncommitted for redelivery. A circuit breaker around the routed call keeps
// a dead backend from being hammered once per message while it is down.
func Handler(r *Router, m *metrics.Metrics) kafka.MessageHandler {
	breaker := resilience.NewCircuitBreaker("live-sync", resilience.BreakerConfig{})
	log := logger.WithComponent("events")

	return func(ctx context.Context, key, value []byte) error {
		ev, err := kafka.DecodeJSON[forum.Event](value)
		if err != nil {
			log.Warn("dropping undecodable event", "key", string(key), "error", err)
			m.EventsTotal.WithLabelValues("unknown", "invalid").Inc()
			return nil
		}
		kind := string(ev.Kind)
		if !ev.At.IsZero() {
			m.EventLagSeconds.Observe(time.Since(ev.At).Seconds())
		}
		ctx = logger.WithTraceID(ctx, ev.ID)

		// Invalid events are rejected here, ahead of the breaker, so a run
		// of malformed messages cannot trip it.
		if err := ev.Validate(); err != nil {
			log.Warn("dropping invalid event", "kind", kind, "key", string(key), "error", err)
			m.EventsTotal.WithLabelValues(kind, "invalid").Inc()
			return nil
		}

		err = breaker.Execute(func() error { return r.Handle(ctx, ev) })
		switch {
		case errors.Is(err, apperrors.ErrInvalidInput):
			log.Warn("dropping unroutable event", "kind", kind, "key", string(key), "error", err)
			m.EventsTotal.WithLabelValues(kind, "invalid").Inc()
			return nil
		case err != nil:
			m.EventsTotal.WithLabelValues(kind, "error").Inc()
			return fmt.Errorf("handling %s event: %w", kind, err)
		}
		m.EventsTotal.WithLabelValues(kind, "ok").Inc()
		return nil
	}
}
