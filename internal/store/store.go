// Package store implements the session cart store: the authoritative ordered
// list of line items for one session, persisted through a prioritized ladder
// of storage tiers with graceful degradation, and broadcast to observers on
// every committed change.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/storage"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
)

// state tracks where the authoritative copy of the cart lives.
type state int

const (
	// stateUninitialized: nothing loaded yet; first access loads from storage.
	stateUninitialized state = iota
	// stateLoaded: the primary tier accepted the last write.
	stateLoaded
	// stateDegraded: every persistent tier refused the last write; the cart
	// lives in the memory tier until an opportunistic retry succeeds.
	stateDegraded
)

// DefaultRetryInterval is how long a degraded store waits before attempting
// the primary tier again on a subsequent mutation.
const DefaultRetryInterval = 30 * time.Second

// Config configures a Store.
type Config struct {
	// Key is the storage key owned by this store, e.g. "cart:" + session id.
	Key string

	// Primary is the session-scoped tier written on every mutation.
	Primary storage.Tier

	// Legacy is the persistent tier consulted once at first load and
	// migrated away from. Nil disables migration.
	Legacy storage.Tier

	// Memory is the in-process last-resort tier. Required.
	Memory storage.Tier

	// RetryInterval overrides DefaultRetryInterval when positive.
	RetryInterval time.Duration

	Logger *slog.Logger
}

// Store owns the line items of one cart. All operations are safe for
// concurrent use; change notifications are delivered asynchronously.
type Store struct {
	mu   sync.Mutex
	key  string
	cart domain.Cart
	st   state

	primary storage.Tier
	legacy  storage.Tier
	memory  storage.Tier

	retryInterval time.Duration
	lastAttempt   time.Time

	bc     *broadcaster
	logger *slog.Logger
}

// New creates a cart store. The store starts uninitialized; the first read or
// mutation loads the cart from storage.
func New(cfg Config) *Store {
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		key:           cfg.Key,
		primary:       cfg.Primary,
		legacy:        cfg.Legacy,
		memory:        cfg.Memory,
		retryInterval: retry,
		bc:            newBroadcaster(),
		logger:        logger.With(slog.String("cart_key", cfg.Key)),
	}
}

// Subscribe registers an observer invoked after every committed change. The
// returned disposer unregisters it. Observers receive no payload; they are
// expected to call Read, Total, or ItemCount to refresh their view.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	return s.bc.subscribe(fn)
}

// Close stops the notification dispatcher after draining pending broadcasts.
func (s *Store) Close() {
	s.bc.close()
}

// Read returns the current line items in insertion order. It never fails:
// an unreadable or absent cart yields an empty slice.
func (s *Store) Read(ctx context.Context) []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded(ctx)
	out := make([]domain.LineItem, len(s.cart.Items))
	copy(out, s.cart.Items)
	return out
}

// Total returns the sum of price times quantity over the cart, in cents.
func (s *Store) Total(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded(ctx)
	return s.cart.Total()
}

// ItemCount returns the sum of quantities over the cart.
func (s *Store) ItemCount(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded(ctx)
	return s.cart.ItemCount()
}

// Add merges item into the cart. If the product is already present its
// quantity is incremented and the original price snapshot kept; otherwise the
// item is appended. Adding a new product beyond the distinct-item cap fails
// with ErrCartFull and leaves the cart untouched. Storage failures are
// absorbed by the degradation ladder and never surface here.
func (s *Store) Add(ctx context.Context, item domain.LineItem) error {
	s.mu.Lock()
	s.ensureLoaded(ctx)

	if item.Quantity < 1 {
		item.Quantity = 1
	}

	if idx := s.cart.FindIndex(item.ProductID); idx >= 0 {
		s.cart.Items[idx].Quantity += item.Quantity
	} else {
		if len(s.cart.Items) >= domain.MaxDistinctItems {
			s.mu.Unlock()
			return apperrors.CartFull(domain.MaxDistinctItems)
		}
		s.cart.Items = append(s.cart.Items, item)
	}

	s.persist(ctx)
	s.mu.Unlock()

	s.bc.signal()
	return nil
}

// SetQuantity sets the quantity of the item with the given product id,
// clamped to a minimum of 1. A missing id is a no-op, not an error.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) {
	s.mu.Lock()
	s.ensureLoaded(ctx)

	idx := s.cart.FindIndex(productID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	if quantity < 1 {
		quantity = 1
	}
	s.cart.Items[idx].Quantity = quantity

	s.persist(ctx)
	s.mu.Unlock()

	s.bc.signal()
}

// Remove deletes the item with the given product id. A missing id is a no-op
// and does not notify observers.
func (s *Store) Remove(ctx context.Context, productID string) {
	s.mu.Lock()
	s.ensureLoaded(ctx)

	idx := s.cart.FindIndex(productID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	s.cart.Items = append(s.cart.Items[:idx], s.cart.Items[idx+1:]...)

	s.persist(ctx)
	s.mu.Unlock()

	s.bc.signal()
}

// Clear empties the cart and removes its key from every tier.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.cart.Items = nil

	for _, tier := range []storage.Tier{s.memory, s.primary, s.legacy} {
		if tier == nil {
			continue
		}
		if err := tier.Delete(ctx, s.key); err != nil {
			s.logger.WarnContext(ctx, "failed to delete cart key",
				slog.String("tier", tier.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.setStateLocked(stateLoaded)
	s.mu.Unlock()

	s.bc.signal()
}

// Degraded reports whether the cart currently lives in memory only.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateDegraded
}

// ensureLoaded loads the cart on first access. Load order: the memory tier
// (holds the newest state if this process degraded earlier), then the primary
// tier, then a one-time legacy migration. Callers must hold s.mu.
func (s *Store) ensureLoaded(ctx context.Context) {
	if s.st != stateUninitialized {
		return
	}

	if data, err := s.memory.Read(ctx, s.key); err == nil {
		s.decodeLocked(ctx, data)
		s.setStateLocked(stateDegraded)
		return
	}

	data, err := s.primary.Read(ctx, s.key)
	if err == nil {
		s.decodeLocked(ctx, data)
		s.setStateLocked(stateLoaded)
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to read cart from primary tier",
			slog.String("tier", s.primary.Name()),
			slog.String("error", err.Error()),
		)
		s.setStateLocked(stateLoaded)
		return
	}

	s.migrateLegacyLocked(ctx)
	s.setStateLocked(stateLoaded)
}

// migrateLegacyLocked moves a cart found in the legacy tier into the primary
// tier, deleting the legacy copy so at most one tier holds cart data.
func (s *Store) migrateLegacyLocked(ctx context.Context) {
	if s.legacy == nil {
		return
	}

	data, err := s.legacy.Read(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to read cart from legacy tier",
				slog.String("tier", s.legacy.Name()),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	s.decodeLocked(ctx, data)

	if err := s.primary.Write(ctx, s.key, data); err != nil {
		// Keep the legacy copy; migration will be retried on the next
		// process that loads this cart.
		s.logger.WarnContext(ctx, "failed to migrate legacy cart to primary tier",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.legacy.Delete(ctx, s.key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete migrated legacy cart",
			slog.String("error", err.Error()),
		)
	}

	legacyMigrations.Inc()
	s.logger.InfoContext(ctx, "migrated cart from legacy tier",
		slog.Int("items", len(s.cart.Items)),
	)
}

// decodeLocked unmarshals stored cart data, treating corrupt payloads as an
// empty cart.
func (s *Store) decodeLocked(ctx context.Context, data []byte) {
	var items []domain.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.ErrorContext(ctx, "corrupt cart payload, starting empty",
			slog.String("error", err.Error()),
		)
		s.cart.Items = nil
		return
	}
	s.cart.Items = items
}

// persist runs the degradation ladder:
//
//  1. Write the compacted cart to the primary tier.
//  2. On quota exhaustion, reclaim the tier's other keys and retry.
//  3. Still failing, write the reduced-fidelity (minimal) form.
//  4. Still failing, keep the cart in the memory tier and enter the degraded
//     state; while degraded, primary attempts are suppressed until
//     retryInterval has elapsed.
//
// Callers must hold s.mu. persist never fails: the operation is considered
// committed once any tier holds the new state.
func (s *Store) persist(ctx context.Context) {
	compact, err := json.Marshal(domain.CompactItems(s.cart.Items))
	if err != nil {
		// Line items are plain data; this cannot happen with well-formed input.
		s.logger.ErrorContext(ctx, "failed to encode cart", slog.String("error", err.Error()))
		return
	}

	if s.st == stateDegraded && time.Since(s.lastAttempt) < s.retryInterval {
		s.writeMemoryLocked(ctx, compact)
		return
	}
	s.lastAttempt = time.Now()

	err = s.primary.Write(ctx, s.key, compact)
	if err == nil {
		s.commitPrimaryLocked(ctx)
		return
	}
	storeWrites.WithLabelValues(s.primary.Name(), "error").Inc()

	if errors.Is(err, storage.ErrQuotaExceeded) {
		storeFallbacks.WithLabelValues("reclaim").Inc()
		if reclaimErr := s.primary.Reclaim(ctx, s.key); reclaimErr != nil {
			s.logger.WarnContext(ctx, "reclaim pass failed",
				slog.String("tier", s.primary.Name()),
				slog.String("error", reclaimErr.Error()),
			)
		} else if err = s.primary.Write(ctx, s.key, compact); err == nil {
			s.commitPrimaryLocked(ctx)
			return
		}

		storeFallbacks.WithLabelValues("minimal").Inc()
		minimal, merr := json.Marshal(domain.MinimalItems(s.cart.Items))
		if merr == nil {
			if err = s.primary.Write(ctx, s.key, minimal); err == nil {
				s.logger.WarnContext(ctx, "cart saved with reduced data due to storage limits")
				s.commitPrimaryLocked(ctx)
				return
			}
		}
	}

	storeFallbacks.WithLabelValues("memory").Inc()
	s.logger.WarnContext(ctx, "all persistent tiers refused cart write, holding in memory",
		slog.String("error", err.Error()),
	)
	s.writeMemoryLocked(ctx, compact)
	s.setStateLocked(stateDegraded)
}

// commitPrimaryLocked records a successful primary write and, when recovering
// from degraded mode, drops the stale memory copy.
func (s *Store) commitPrimaryLocked(ctx context.Context) {
	storeWrites.WithLabelValues(s.primary.Name(), "ok").Inc()
	if s.st == stateDegraded {
		if err := s.memory.Delete(ctx, s.key); err != nil {
			s.logger.WarnContext(ctx, "failed to drop memory copy after recovery",
				slog.String("error", err.Error()),
			)
		}
		s.logger.InfoContext(ctx, "cart persistence recovered",
			slog.String("tier", s.primary.Name()),
		)
	}
	s.setStateLocked(stateLoaded)
}

func (s *Store) writeMemoryLocked(ctx context.Context, data []byte) {
	if err := s.memory.Write(ctx, s.key, data); err != nil {
		// The in-struct cart remains authoritative for this instance.
		s.logger.ErrorContext(ctx, "memory tier write failed",
			slog.String("error", err.Error()),
		)
		storeWrites.WithLabelValues(s.memory.Name(), "error").Inc()
		return
	}
	storeWrites.WithLabelValues(s.memory.Name(), "ok").Inc()
}

// setStateLocked transitions the state machine, keeping the degraded gauge
// in sync.
func (s *Store) setStateLocked(next state) {
	if s.st == next {
		return
	}
	if next == stateDegraded {
		storeDegraded.Inc()
	} else if s.st == stateDegraded {
		storeDegraded.Dec()
	}
	s.st = next
}
