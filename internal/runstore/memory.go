package runstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bogofit/internal/domain"
)

type memoryEntry struct {
	run       domain.Run
	expiresAt time.Time
}

// Memory keeps snapshots in process. It suits single-instance deployments
// and tests.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	runs   map[string]memoryEntry
	subs   map[string]map[chan domain.Run]struct{}
	writes int
}

// NewMemory creates an in-memory store; ttl <= 0 selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:  ttl,
		now:  time.Now,
		runs: make(map[string]memoryEntry),
		subs: make(map[string]map[chan domain.Run]struct{}),
	}
}

func (m *Memory) Save(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return fmt.Errorf("runstore: run id is required")
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = memoryEntry{run: run.Clone(), expiresAt: now.Add(m.ttl)}
	for ch := range m.subs[run.ID] {
		offerLatest(ch, run.Clone())
	}
	m.writes++
	if m.writes%256 == 0 {
		m.purgeLocked(now)
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.runs[id]
	if !ok || m.now().After(entry.expiresAt) {
		return domain.Run{}, fmt.Errorf("runstore: run %s: %w", id, domain.ErrNotFound)
	}
	return entry.run.Clone(), nil
}

func (m *Memory) Subscribe(ctx context.Context, id string) (<-chan domain.Run, func(), error) {
	ch := make(chan domain.Run, 1)
	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[chan domain.Run]struct{})
	}
	m.subs[id][ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[id], ch)
			if len(m.subs[id]) == 0 {
				delete(m.subs, id)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, release, nil
}

func (m *Memory) purgeLocked(now time.Time) {
	for id, entry := range m.runs {
		if now.After(entry.expiresAt) {
			delete(m.runs, id)
		}
	}
}

var _ Store = (*Memory)(nil)
