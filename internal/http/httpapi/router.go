package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"bogofit/internal/http/handlers"
	"bogofit/internal/middleware"
)

// Options carries the cross-cutting settings of the router.
type Options struct {
	JWTSecret       string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	CORSOrigins     []string
	RateLimitPerMin int
	StaticDir       string
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.With(middleware.RateLimit(opts.RateLimitPerMin*4, time.Minute)).Get("/v1/proxy/image", app.ProxyImage)

	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Route("/v1/fitting", func(r chi.Router) {
			r.Get("/engines", app.Engines)
			r.Get("/stats", app.LenientStats)
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/runs", app.CreateRun)
			r.Route("/runs/{id}", func(r chi.Router) {
				r.Get("/", app.GetRun)
				r.Post("/reset", app.ResetRun)
				r.Get("/stream", app.StreamRun)
				r.Get("/archive", app.ArchiveRun)
			})
		})

		r.Post("/v1/uploads/presign", app.PresignUpload)

		r.Route("/v1/forms/{id}", func(r chi.Router) {
			r.Get("/", app.GetForm)
			r.Post("/actions", app.DispatchFormAction)
		})
	})

	return r
}
