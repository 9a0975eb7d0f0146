package checkout

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/storage/memtier"
	"github.com/utafrali/cartstore/internal/store"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/kafka"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []*kafka.Event
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, _ string, event *kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newCart(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Config{
		Key:     "cart:sess-1",
		Primary: memtier.New(0),
		Memory:  memtier.New(0),
		Logger:  testLogger(),
	})
	t.Cleanup(s.Close)
	return s
}

func TestCheckout(t *testing.T) {
	pub := &stubPublisher{}
	svc := NewService(pub, testLogger())
	cart := newCart(t)
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, domain.LineItem{ProductID: "p1", Name: "Pen", Price: 50, Quantity: 2}))
	require.NoError(t, cart.Add(ctx, domain.LineItem{ProductID: "p2", Name: "Ink", Price: 30, Quantity: 1}))

	draft, err := svc.Checkout(ctx, "sess-1", cart)
	require.NoError(t, err)
	assert.NotEmpty(t, draft.OrderID)
	assert.Equal(t, "sess-1", draft.SessionID)
	assert.Len(t, draft.Items, 2)
	assert.Equal(t, int64(130), draft.Total)

	// The cart is cleared after a successful draft.
	assert.Empty(t, cart.Read(ctx))

	require.Len(t, pub.events, 1)
	assert.Equal(t, TypeCheckoutCompleted, pub.events[0].EventType)
	assert.Equal(t, draft.OrderID, pub.events[0].AggregateID)

	var payload OrderDraft
	require.NoError(t, pub.events[0].UnmarshalData(&payload))
	assert.Equal(t, draft.OrderID, payload.OrderID)
	assert.Equal(t, int64(130), payload.Total)
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc := NewService(&stubPublisher{}, testLogger())
	cart := newCart(t)

	_, err := svc.Checkout(context.Background(), "sess-1", cart)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrInvalidInput))
}

func TestCheckout_PublishFailureKeepsCart(t *testing.T) {
	pub := &stubPublisher{err: stderrors.New("brokers unreachable")}
	svc := NewService(pub, testLogger())
	cart := newCart(t)
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, domain.LineItem{ProductID: "p1", Name: "Pen", Price: 50, Quantity: 1}))

	_, err := svc.Checkout(ctx, "sess-1", cart)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrUnavailable))

	// The shopper can retry; nothing was cleared.
	assert.Len(t, cart.Read(ctx), 1)
}
