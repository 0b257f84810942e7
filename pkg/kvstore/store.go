// Package kvstore provides the durable key-value storage the client uses to remember
// per-tenant state such as the visitor identity.
package kvstore

import "context"

// Store is a small string key-value store. Get reports ok=false for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}
