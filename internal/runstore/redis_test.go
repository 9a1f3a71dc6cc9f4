package runstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bogofit/internal/domain"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	raw := os.Getenv("REDIS_URL")
	if raw == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

func TestRedisRoundTripAndEvents(t *testing.T) {
	client := redisClient(t)
	store := NewRedis(client, time.Minute, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), runKey(id)) })

	if _, err := store.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ch, release, err := store.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer release()

	run := domain.Run{ID: id, Stage: domain.StageDone, GeneratedImage: "https://x/a.png", Progress: 100}
	if err := store.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.GeneratedImage != run.GeneratedImage || got.Stage != domain.StageDone {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	ttl, err := client.TTL(ctx, runKey(id)).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected ttl on key, got %v (%v)", ttl, err)
	}

	select {
	case evt := <-ch:
		if evt.ID != id || evt.Progress != 100 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-ctx.Done():
		t.Fatalf("no event received")
	}
}
