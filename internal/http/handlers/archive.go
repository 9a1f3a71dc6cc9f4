package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"bogofit/internal/storage"
	"bogofit/pkg/zip"
)

// ArchiveRun bundles the generated image and video of a run into a zip.
func (a *App) ArchiveRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := a.Pipeline.Get(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if !run.Stage.Terminal() {
		a.error(w, http.StatusConflict, "run_in_progress", "run has not finished yet")
		return
	}
	if a.Artifacts == nil {
		a.error(w, http.StatusServiceUnavailable, "archive_unavailable", "artifact downloads are disabled")
		return
	}

	var assets []zip.Asset
	for _, item := range []struct{ name, url string }{
		{name: "fitting", url: run.GeneratedImage},
		{name: "fitting-video", url: run.GeneratedVideo},
	} {
		if item.url == "" {
			continue
		}
		data, mime, err := a.Artifacts.Download(r.Context(), item.url)
		if err != nil {
			a.Logger.Warn().Err(err).Str("run_id", id).Str("url", item.url).Msg("archive: artifact download failed")
			a.error(w, http.StatusBadGateway, "artifact_unavailable", "could not download an artifact")
			return
		}
		assets = append(assets, zip.Asset{
			Filename: item.name + artifactExt(item.url, mime),
			MIME:     mime,
			Data:     data,
			Modified: run.UpdatedAt,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "no_artifacts", "run produced no artifacts")
		return
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=fitting-%s.zip", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func artifactExt(rawURL, mime string) string {
	if ext := storage.ExtensionFor(mime); ext != "" {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".bin"
}
