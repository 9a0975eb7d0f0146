// Package event relays cart changes onto the event bus. The relay is an
// ordinary store observer: it subscribes like any badge or summary component,
// reads the cart state on each notification, and publishes a snapshot event.
package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/store"
	"github.com/utafrali/cartstore/pkg/kafka"
)

// Topics and event types published by the relay.
const (
	TopicCartEvents = "cart.events"

	TypeCartUpdated = "cart.updated"
	TypeCartCleared = "cart.cleared"

	aggregateType = "cart"
	source        = "cartstore"
)

// Publisher is the event bus surface the relay needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// CartSnapshot is the payload carried by cart events.
type CartSnapshot struct {
	SessionID string            `json:"session_id"`
	Items     []domain.LineItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     int64             `json:"total"`
}

// Relay publishes a cart event for every committed change on the stores it
// is attached to. Publishing is best effort; a bus outage never blocks or
// fails a cart mutation.
type Relay struct {
	publisher Publisher
	logger    *slog.Logger
	timeout   time.Duration
}

// NewRelay creates a relay over the given publisher.
func NewRelay(publisher Publisher, logger *slog.Logger) *Relay {
	return &Relay{
		publisher: publisher,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// Attach subscribes the relay to a session's store. The returned disposer
// detaches it.
func (r *Relay) Attach(sessionID string, s *store.Store) (detach func()) {
	return s.Subscribe(func() {
		r.publish(sessionID, s)
	})
}

func (r *Relay) publish(sessionID string, s *store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	snapshot := CartSnapshot{
		SessionID: sessionID,
		Items:     s.Read(ctx),
		ItemCount: s.ItemCount(ctx),
		Total:     s.Total(ctx),
	}

	eventType := TypeCartUpdated
	if len(snapshot.Items) == 0 {
		eventType = TypeCartCleared
	}

	evt, err := kafka.NewEvent(eventType, sessionID, aggregateType, source, snapshot)
	if err != nil {
		r.logger.Error("failed to build cart event", slog.String("error", err.Error()))
		return
	}

	if err := r.publisher.Publish(ctx, TopicCartEvents, evt); err != nil {
		r.logger.Warn("failed to relay cart event",
			slog.String("event_type", eventType),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
