package productform

import (
	"context"
	"strings"
	"sync"

	"bogofit/internal/domain"
	"bogofit/internal/infra"
)

// Registry keeps the open forms of this process keyed by form ID.
type Registry struct {
	mu     sync.Mutex
	forms  map[string]State
	logger infra.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *infra.Logger) *Registry {
	return &Registry{
		forms:  make(map[string]State),
		logger: infra.LoggerOrDiscard(logger).With().Str("component", "productform").Logger(),
	}
}

// Get returns the form with id.
func (r *Registry) Get(id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.forms[id]
	if !ok {
		return State{}, domain.ErrNotFound
	}
	return s.clone(), nil
}

// Dispatch applies action to form id, creating the form on first use.
func (r *Registry) Dispatch(id string, action Action) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.forms[id]
	if !ok {
		cur = New()
	}
	next, err := Apply(cur, action)
	if err != nil {
		return cur.clone(), err
	}
	r.forms[id] = next
	return next.clone(), nil
}

// Sink returns a result sink that merges the final artifact into form id.
func (r *Registry) Sink(id string) func(ctx context.Context, artifactURL string) {
	return func(_ context.Context, artifactURL string) {
		video := isVideoURL(artifactURL)
		if _, err := r.Dispatch(id, MergeArtifact{URL: artifactURL, Video: video}); err != nil {
			r.logger.Warn().Err(err).Str("form_id", id).Msg("productform: merge artifact failed")
			return
		}
		r.logger.Info().Str("form_id", id).Str("artifact", artifactURL).Msg("productform: artifact merged")
	}
}

func isVideoURL(raw string) bool {
	lower := strings.ToLower(raw)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".mp4", ".webm", ".mov"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
