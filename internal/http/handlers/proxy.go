package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bogofit/internal/intake"
)

// ProxyImage fetches an allow-listed remote image so the browser can read it
// from the same origin.
func (a *App) ProxyImage(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "url is required")
		return
	}
	data, contentType, err := a.Fetcher.Download(r.Context(), raw)
	switch {
	case errors.Is(err, intake.ErrInvalidURL):
		a.error(w, http.StatusBadRequest, "bad_request", "url must be an absolute http(s) address")
		return
	case errors.Is(err, intake.ErrHostNotAllowed):
		a.error(w, http.StatusForbidden, "host_not_allowed", "image host is not allowed")
		return
	case errors.Is(err, intake.ErrTooLarge):
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image is too large")
		return
	case err != nil:
		a.Logger.Warn().Err(err).Str("url", raw).Msg("proxy: download failed")
		a.error(w, http.StatusBadGateway, "upstream_failed", "could not load the image")
		return
	}
	if !intake.Supported(contentType) {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_type", "only jpeg, png and webp images can be proxied")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
