// Package storage defines the synchronous key-value primitive that the cart
// and session packages persist their client-side state through.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage defines the key-value interface shared by all backends.
type Storage interface {
	// Get retrieves data for a key.
	// Returns nil Item if key doesn't exist or has expired
	// Returns error only for legitimate storage system failures
	Get(ctx context.Context, key string) (*Item, error)

	// Set stores data for a key, replacing any previous value.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close closes the storage backend and releases resources
	Close() error
}

// Item represents a stored piece of data with metadata
type Item struct {
	Data      []byte     // The stored data
	CreatedAt time.Time  // When the item was written
	ExpiresAt *time.Time // When the item expires (nil = no expiration)
}

// IsExpired checks if the item has expired
func (it *Item) IsExpired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Option configures a Set operation
type Option func(*Options)

// Options contains configuration for Set operations
type Options struct {
	TTL *time.Duration // Optional: time-to-live for the data
}

// WithTTL sets a time-to-live for the stored data
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

// ApplyOptions folds opts into a fresh Options value. Backends call it from Set.
func ApplyOptions(opts ...Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// NewItem builds an Item holding a private copy of data with the expiry
// implied by options.
func NewItem(data []byte, now time.Time, options *Options) *Item {
	item := &Item{
		Data:      make([]byte, len(data)),
		CreatedAt: now,
	}
	copy(item.Data, data)

	if options != nil && options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		item.ExpiresAt = &expiresAt
	}
	return item
}

// Error types
var (
	// ErrClosed is returned by operations on a backend after Close.
	ErrClosed = errors.New("storage: closed")

	// ErrInvalidKey is returned when a key is empty or cannot be represented
	// by the backend.
	ErrInvalidKey = errors.New("storage: invalid key")
)
