package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"bogofit/internal/adapter/repo"
	"bogofit/internal/domain"
	"bogofit/internal/infra"
	"bogofit/internal/intake"
	"bogofit/internal/middleware"
	"bogofit/internal/pipeline"
	"bogofit/internal/productform"
	"bogofit/internal/runstore"
	"bogofit/internal/storage"
)

// LenientReporter reports how often upstream responses needed lenient parsing.
type LenientReporter interface {
	LenientRate(ctx context.Context, since time.Time) ([]repo.LenientStat, error)
}

// App holds the dependencies shared by all handlers.
type App struct {
	Config    *infra.Config
	Logger    infra.Logger
	Pipeline  *pipeline.Pipeline
	Runs      runstore.Store
	Validator intake.Validator
	// Fetcher loads slot inputs and proxied images from allow-listed hosts.
	Fetcher *intake.Fetcher
	// Artifacts downloads engine outputs for archives; any host is accepted.
	Artifacts *intake.Fetcher
	Presigner storage.Presigner
	Forms     *productform.Registry
	Ledger    LenientReporter
	Validate  *validator.Validate
	Upgrader  websocket.Upgrader
	Now       func() time.Time
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// domainError maps sentinel errors onto HTTP responses.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrUnsupportedEngine):
		a.error(w, http.StatusBadRequest, "unsupported_engine", err.Error())
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("handler failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

func (a *App) validate() *validator.Validate {
	if a.Validate != nil {
		return a.Validate
	}
	return defaultValidate
}
