// Package session maps session ids to their cart stores. Stores are created
// lazily on first use and evicted after a period of inactivity so an
// abandoned session does not pin its cart in process memory forever.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/cartstore/internal/storage"
	"github.com/utafrali/cartstore/internal/store"
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cartstore_active_sessions",
	Help: "Number of sessions with a live cart store in this process",
})

const (
	// DefaultIdleTTL is how long a session store may sit unused before the
	// janitor evicts it.
	DefaultIdleTTL = 30 * time.Minute
	// DefaultSweepInterval is how often the janitor scans for idle stores.
	DefaultSweepInterval = 5 * time.Minute

	keyPrefix = "cart:"
)

// ManagerConfig configures a Manager. Primary and Memory are shared across
// all sessions; keys are namespaced per session.
type ManagerConfig struct {
	Primary storage.Tier
	Legacy  storage.Tier
	Memory  storage.Tier

	// RetryInterval is passed through to each store's degradation backoff.
	RetryInterval time.Duration

	IdleTTL       time.Duration
	SweepInterval time.Duration

	// OnCreate runs for every newly created store, before it is returned.
	// Used to attach observers such as the event relay.
	OnCreate func(sessionID string, s *store.Store)

	Logger *slog.Logger
}

type entry struct {
	store    *store.Store
	lastSeen time.Time
}

// Manager hands out the cart store for a session, creating it on first use.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	cfg    ManagerConfig
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a manager and starts its eviction janitor.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.janitor()
	return m
}

// Get returns the cart store for the given session id, creating it if needed.
func (m *Manager) Get(sessionID string) *store.Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[sessionID]; ok {
		e.lastSeen = time.Now()
		return e.store
	}

	s := store.New(store.Config{
		Key:           keyPrefix + sessionID,
		Primary:       m.cfg.Primary,
		Legacy:        m.cfg.Legacy,
		Memory:        m.cfg.Memory,
		RetryInterval: m.cfg.RetryInterval,
		Logger:        m.logger,
	})
	if m.cfg.OnCreate != nil {
		m.cfg.OnCreate(sessionID, s)
	}
	m.entries[sessionID] = &entry{store: s, lastSeen: time.Now()}
	activeSessions.Set(float64(len(m.entries)))
	return s
}

// Evict closes and removes the store for the given session id, if present.
// The persisted cart is untouched; the next Get recreates the store over it.
func (m *Manager) Evict(sessionID string) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok {
		delete(m.entries, sessionID)
		activeSessions.Set(float64(len(m.entries)))
	}
	m.mu.Unlock()

	if ok {
		e.store.Close()
	}
}

// Len returns the number of live session stores.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the janitor and closes every live store.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()

	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	activeSessions.Set(0)
	m.mu.Unlock()

	for _, e := range entries {
		e.store.Close()
	}
}

func (m *Manager) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var idle []*entry
	for id, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e)
			delete(m.entries, id)
		}
	}
	if len(idle) > 0 {
		activeSessions.Set(float64(len(m.entries)))
	}
	m.mu.Unlock()

	for _, e := range idle {
		e.store.Close()
	}
	if len(idle) > 0 {
		m.logger.Info("evicted idle session stores", slog.Int("count", len(idle)))
	}
}
