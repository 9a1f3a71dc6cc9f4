package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// LenientStats reports, per engine, how many recent runs were only rescued by
// lenient response parsing.
func (a *App) LenientStats(w http.ResponseWriter, r *http.Request) {
	if a.Ledger == nil {
		a.error(w, http.StatusServiceUnavailable, "ledger_unavailable", "outcome ledger is not configured")
		return
	}
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	if hours <= 0 || hours > 24*30 {
		hours = 24
	}
	since := a.now().Add(-time.Duration(hours) * time.Hour)
	stats, err := a.Ledger.LenientRate(r.Context(), since)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(stats))
	for _, s := range stats {
		items = append(items, map[string]any{
			"engine":  s.Engine,
			"total":   s.Total,
			"lenient": s.Lenient,
			"rate":    s.Rate(),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"since": since.UTC(), "hours": hours, "items": items})
}
