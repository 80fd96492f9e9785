// Package preferences is the local key/value preference store. It holds the
// history index and the entitlement fields, each under a named key.
package preferences

import (
	"context"

	"github.com/dmitrijs2005/artforge/internal/dbx"
)

// Repository is a byte-valued key/value store.
// Get returns (nil, nil) for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error

	// With returns a repository bound to tx, for use inside dbx.WithTx.
	With(tx dbx.DBTX) Repository
}
