package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imagestudio/internal/http/handlers"
	"imagestudio/internal/infra"
	"imagestudio/internal/middleware"
	"imagestudio/internal/ratelimit"
)

// Options configures the router.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	Limiter        ratelimit.Limiter
	// StaticDir, when set, is served under /static for the filesystem store.
	StaticDir string
	Logger    infra.Logger
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(stdhttp.MethodGet, "/metrics", promhttp.Handler())
	if opts.StaticDir != "" {
		r.Handle("/static/*", stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(opts.StaticDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Get("/v1/styles", app.Styles)
		r.Get("/v1/quota", app.Quota)
		r.Get("/v1/images", app.ImagesList)
		r.Get("/v1/images/archive", app.ImagesArchive)
		r.Delete("/v1/uploads/current", app.ClearUpload)

		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(middleware.RateLimit(opts.Limiter, opts.Logger))
			}
			r.Post("/v1/uploads/analyze", app.AnalyzeUpload)
			r.Post("/v1/images/from-upload", app.GenerateFromUpload)
			r.Post("/v1/images/generate", app.ImagesGenerate)
		})
	})

	return r
}
