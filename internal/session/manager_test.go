package session

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/storage/memtier"
)

func newTestManager(t *testing.T, opts ...func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := ManagerConfig{
		Primary: memtier.New(0),
		Memory:  memtier.New(0),
		Logger:  slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := NewManager(cfg)
	t.Cleanup(m.Close)
	return m
}

func TestGet_ReturnsSameStorePerSession(t *testing.T) {
	m := newTestManager(t)

	s1 := m.Get("sess-a")
	s2 := m.Get("sess-a")
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, m.Len())
}

func TestGet_IsolatesSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a := m.Get("sess-a")
	b := m.Get("sess-b")
	require.NoError(t, a.Add(ctx, domain.LineItem{ProductID: "p1", Name: "Pen", Price: 50, Quantity: 1}))

	assert.Len(t, a.Read(ctx), 1)
	assert.Empty(t, b.Read(ctx))
	assert.Equal(t, 2, m.Len())
}

func TestEvict_PersistedCartSurvives(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := m.Get("sess-a")
	require.NoError(t, s.Add(ctx, domain.LineItem{ProductID: "p1", Name: "Pen", Price: 50, Quantity: 2}))

	m.Evict("sess-a")
	assert.Equal(t, 0, m.Len())

	// A fresh store over the same tiers sees the persisted cart.
	reborn := m.Get("sess-a")
	items := reborn.Read(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestJanitor_EvictsIdleSessions(t *testing.T) {
	m := newTestManager(t, func(cfg *ManagerConfig) {
		cfg.IdleTTL = 20 * time.Millisecond
		cfg.SweepInterval = 10 * time.Millisecond
	})

	m.Get("sess-a")
	require.Equal(t, 1, m.Len())

	assert.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestJanitor_KeepsActiveSessions(t *testing.T) {
	m := newTestManager(t, func(cfg *ManagerConfig) {
		cfg.IdleTTL = 100 * time.Millisecond
		cfg.SweepInterval = 20 * time.Millisecond
	})

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Get("sess-a")
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 1, m.Len())
}
