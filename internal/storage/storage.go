// Package storage defines the digest state store and its implementations.
//
// The store is a flat key-value namespace with two key families: the highest
// post id digested per (recipient, followed account) and a per-day marker that
// a recipient's digest went out.
package storage

import (
	"context"
	"fmt"
)

// Store is the interface for all state persistence operations.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Close() error
}

// LastSeenKey is the key holding the highest digested post id for a
// recipient and followed account.
func LastSeenKey(primaryEmail, username string) string {
	return fmt.Sprintf("lastSeen:%s:%s", primaryEmail, username)
}

// SentKey is the key marking that a recipient's digest was sent on date
// (YYYY-MM-DD, UTC).
func SentKey(date, primaryEmail string) string {
	return fmt.Sprintf("sent:%s:%s", date, primaryEmail)
}
