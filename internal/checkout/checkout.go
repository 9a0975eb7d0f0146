// Package checkout turns a cart into an order draft. The cart store is read
// through its public surface only; on success the cart is cleared, which
// notifies observers like any other mutation.
package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/store"
	"github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/kafka"
)

// Event bus coordinates published on checkout.
const (
	TopicCheckoutEvents   = "checkout.events"
	TypeCheckoutCompleted = "checkout.completed"
)

// OrderDraft is the result of a checkout: the frozen cart contents plus an
// order id for the downstream order pipeline.
type OrderDraft struct {
	OrderID   string            `json:"order_id"`
	SessionID string            `json:"session_id"`
	Items     []domain.LineItem `json:"items"`
	Total     int64             `json:"total"`
	CreatedAt time.Time         `json:"created_at"`
}

// Publisher is the event bus surface checkout needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Service drafts orders from carts.
type Service struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a checkout service.
func NewService(publisher Publisher, logger *slog.Logger) *Service {
	return &Service{publisher: publisher, logger: logger}
}

// Checkout drafts an order from the session's cart and clears the cart.
// An empty cart cannot be checked out.
func (s *Service) Checkout(ctx context.Context, sessionID string, cart *store.Store) (*OrderDraft, error) {
	items := cart.Read(ctx)
	if len(items) == 0 {
		return nil, errors.InvalidInput("cart is empty")
	}

	draft := &OrderDraft{
		OrderID:   uuid.New().String(),
		SessionID: sessionID,
		Items:     items,
		Total:     cart.Total(ctx),
		CreatedAt: time.Now().UTC(),
	}

	evt, err := kafka.NewEvent(TypeCheckoutCompleted, draft.OrderID, "order", "cartstore", draft)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.publisher.Publish(ctx, TopicCheckoutEvents, evt); err != nil {
		// The order pipeline never saw this draft; keep the cart intact so
		// the shopper can retry.
		s.logger.ErrorContext(ctx, "failed to publish order draft",
			slog.String("order_id", draft.OrderID),
			slog.String("error", err.Error()),
		)
		return nil, errors.Unavailable("checkout")
	}

	cart.Clear(ctx)

	s.logger.InfoContext(ctx, "order drafted",
		slog.String("order_id", draft.OrderID),
		slog.String("session_id", sessionID),
		slog.Int("items", len(draft.Items)),
		slog.Int64("total", draft.Total),
	)
	return draft, nil
}
