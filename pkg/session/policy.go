package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectPolicy bounds reconnection: after a failed dial the manager waits BaseDelay,
// doubling per retry up to MaxDelay, and gives up after MaxRetries retries.
type ReconnectPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// backOff yields BaseDelay, 2*BaseDelay, ... capped at MaxDelay, without jitter, and stops
// after MaxRetries values or when ctx is done.
func (p ReconnectPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}
