// Package runstore keeps run snapshots where every API instance can read them
// and fans out updates to progress stream subscribers.
package runstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"bogofit/internal/domain"
	"bogofit/internal/infra"
)

// DefaultTTL is how long a snapshot survives after its last update.
const DefaultTTL = 6 * time.Hour

// Store is a RunRepository that can also stream updates of a single run.
type Store interface {
	domain.RunRepository
	// Subscribe delivers snapshots saved after the call. The channel holds
	// only the latest snapshot; slow readers skip intermediate values. The
	// returned func releases the subscription and closes the channel.
	Subscribe(ctx context.Context, id string) (<-chan domain.Run, func(), error)
}

// New returns a Redis-backed store when client is non-nil and an in-memory
// store otherwise.
func New(client *redis.Client, ttl time.Duration, logger *infra.Logger) Store {
	if client == nil {
		infra.LoggerOrDiscard(logger).Info().Msg("runstore: using in-memory store")
		return NewMemory(ttl)
	}
	return NewRedis(client, ttl, logger)
}

// offerLatest replaces any pending value in ch with run.
func offerLatest(ch chan domain.Run, run domain.Run) {
	for {
		select {
		case ch <- run:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
