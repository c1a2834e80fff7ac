package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PS-Soundwave/virtu/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Catalog Catalog
	Logger  *slog.Logger

	// Media serves stored objects under /media/ when set.
	Media http.Handler

	// TrustedProxies may set X-Forwarded-For for rate limiting and logs.
	TrustedProxies middleware.TrustedProxies

	UploadLimiter middleware.RateLimiter
	SearchLimiter middleware.RateLimiter

	MaxUploadBytes int64
}

// NewRouter builds the service's HTTP handler.
func NewRouter(deps Dependencies) http.Handler {
	health := HealthHandler{}
	videos := VideoHandler{Catalog: deps.Catalog, MaxUploadBytes: deps.MaxUploadBytes}
	users := UserHandler{Catalog: deps.Catalog}

	r := chi.NewRouter()
	r.Use(middleware.ClientAddr(deps.TrustedProxies))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.Get("/healthz", health.Handle)

	r.Route("/video", func(r chi.Router) {
		r.Get("/", videos.Feed)
		r.With(middleware.RateLimit(deps.UploadLimiter, "upload")).Post("/", videos.Upload)
		r.Get("/{id}", videos.Get)
		r.Patch("/{id}", videos.SetVisibility)
	})

	r.Route("/user", func(r chi.Router) {
		r.Get("/", users.ByUsername)
		r.Get("/me", users.Me)
		r.Put("/me", users.SetUsername)
		r.Patch("/me", users.SetUsername)
		r.With(middleware.RateLimit(deps.SearchLimiter, "search")).Get("/search", users.Search)
		r.Get("/validate", users.Validate)
		r.Get("/{id}/video", videos.ListForUser)
		r.Get("/{id}/follow", users.FollowInfo)
		r.Post("/{id}/follow", users.Follow)
		r.Delete("/{id}/follow", users.Unfollow)
	})

	// Paths used by earlier client builds.
	r.Route("/users", func(r chi.Router) {
		r.With(middleware.RateLimit(deps.SearchLimiter, "search")).Get("/search", users.Suggestions)
		r.Get("/validate", users.Validate)
	})

	if deps.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media/", deps.Media))
	}

	return r
}
