package kvstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Open builds a store from a location string: "memory", "sqlite:<dsn>" or "redis:<addr>".
// The returned close function is never nil.
func Open(ctx context.Context, location string) (Store, func() error, error) {
	noop := func() error { return nil }
	kind, arg, _ := strings.Cut(strings.TrimSpace(location), ":")
	switch strings.ToLower(kind) {
	case "", "memory":
		return NewMemoryStore(), noop, nil
	case "sqlite":
		s, err := NewSQLiteStore(arg)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "redis":
		s, err := DialRedisStore(ctx, arg, "chatbot:")
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, errors.Errorf("unknown store %q (want memory, sqlite:<path> or redis:<addr>)", location)
	}
}
