package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"bogofit/internal/storage"
)

// PresignUpload issues a signed PUT URL so clients upload straight to
// object storage.
func (a *App) PresignUpload(w http.ResponseWriter, r *http.Request) {
	if a.Presigner == nil {
		a.error(w, http.StatusServiceUnavailable, "storage_unavailable", "object storage is not configured")
		return
	}
	var req storage.PresignRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate().Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			a.json(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  map[string]string{"code": "validation_failed", "message": "invalid upload request"},
				"fields": fields,
			})
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	key, err := storage.NewKey(req.Prefix, req.ContentType, a.now())
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	signed, err := a.Presigner.PresignUpload(r.Context(), key, req.ContentType)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.Logger.Info().Str("key", signed.Key).Str("user_id", a.currentUserID(r)).Msg("upload presigned")
	a.json(w, http.StatusOK, signed)
}
