package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"engines": a.Pipeline.Engines().Names(),
	})
}

// Engines lists the configured synthesis engines.
func (a *App) Engines(w http.ResponseWriter, r *http.Request) {
	reg := a.Pipeline.Engines()
	items := make([]map[string]any, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		prof, err := reg.Lookup(name)
		if err != nil {
			continue
		}
		items = append(items, map[string]any{
			"name":        prof.Name,
			"require_any": prof.RequireAny,
			"accept":      prof.Accept,
			"video":       prof.Video != nil,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"default": reg.Default(), "items": items})
}
