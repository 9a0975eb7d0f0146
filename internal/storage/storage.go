// Package storage defines the tiered key-value persistence interface the cart
// store writes through. Tiers are tried in priority order; a quota failure on
// one tier triggers the store's degradation ladder rather than surfacing to
// callers.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors tiers translate their backend failures into.
var (
	// ErrNotFound indicates the key holds no value in this tier.
	ErrNotFound = errors.New("storage: key not found")
	// ErrQuotaExceeded indicates the tier rejected a write for lack of space.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Tier is one key-value persistence mechanism with its own lifetime and quota.
type Tier interface {
	// Name identifies the tier in logs and metrics.
	Name() string

	// Read returns the value stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores value under key. Returns ErrQuotaExceeded when the tier
	// is out of space.
	Write(ctx context.Context, key string, value []byte) error

	// Delete removes the value under key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Reclaim best-effort frees space by removing every key in the tier
	// except keep. Used by the quota-recovery pass.
	Reclaim(ctx context.Context, keep string) error
}
