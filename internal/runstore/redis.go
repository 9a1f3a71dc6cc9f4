package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bogofit/internal/domain"
	"bogofit/internal/infra"
)

// Redis stores JSON snapshots under run:{id} and publishes each save on
// run:{id}:events.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *infra.Logger
}

// NewRedis wraps a connected client; ttl <= 0 selects DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration, logger *infra.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, logger: infra.LoggerOrDiscard(logger)}
}

func runKey(id string) string {
	return "run:" + id
}

func eventsChannel(id string) string {
	return "run:" + id + ":events"
}

func (r *Redis) Save(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return fmt.Errorf("runstore: run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("runstore: encode run: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey(run.ID), data, r.ttl)
	pipe.Publish(ctx, eventsChannel(run.ID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("runstore: save run %s: %w", run.ID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (domain.Run, error) {
	data, err := r.client.Get(ctx, runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Run{}, fmt.Errorf("runstore: run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("runstore: get run %s: %w", id, err)
	}
	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return domain.Run{}, fmt.Errorf("runstore: decode run %s: %w", id, err)
	}
	return run, nil
}

func (r *Redis) Subscribe(ctx context.Context, id string) (<-chan domain.Run, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(subCtx, eventsChannel(id))
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("runstore: subscribe %s: %w", id, err)
	}

	out := make(chan domain.Run, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var run domain.Run
				if err := json.Unmarshal([]byte(msg.Payload), &run); err != nil {
					r.logger.Warn().Err(err).Str("run_id", id).Msg("runstore: drop malformed event")
					continue
				}
				offerLatest(out, run)
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
			<-done
		})
	}
	return out, release, nil
}

var _ Store = (*Redis)(nil)
