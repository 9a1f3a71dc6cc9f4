// Package credentials reads and writes synthesis engine tokens kept in the
// integration_tokens table so keys can rotate without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bogofit/internal/infra"
	"bogofit/internal/sqlinline"
)

// Known token providers.
const (
	ProviderFitting = "fitting"
	ProviderVideo   = "video"
	ProviderGemini  = "gemini"
)

// ErrUnknownProvider is returned for provider names outside the known set.
var ErrUnknownProvider = errors.New("credentials: unknown provider")

// ErrEmptyToken is returned when a blank token is stored.
var ErrEmptyToken = errors.New("credentials: token is required")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the integration_tokens table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QEnsureIntegrationTokens); err != nil {
		return fmt.Errorf("credentials: ensure schema: %w", err)
	}
	return nil
}

// KnownProvider reports whether name is a provider this service reads tokens for.
func KnownProvider(name string) bool {
	switch name {
	case ProviderFitting, ProviderVideo, ProviderGemini:
		return true
	}
	return false
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	if !KnownProvider(provider) {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	var token string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: select %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// TokenOr returns the stored token, falling back to the env-provided value
// when nothing is stored or the lookup fails.
func (s *Store) TokenOr(ctx context.Context, provider, fallback string) string {
	if s == nil || s.sql == nil {
		return fallback
	}
	token, err := s.Token(ctx, provider)
	if err != nil || token == "" {
		return fallback
	}
	return token
}

// SetToken upserts the token for provider along with free-form properties.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	if !KnownProvider(provider) {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("credentials: encode properties: %w", err)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("credentials: upsert %s token: %w", provider, err)
	}
	return nil
}
