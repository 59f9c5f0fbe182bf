// Package server assembles the HTTP surface: auth routes, avatar routes and
// the rpc procedures.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ayush/fitness-ai/backend/internal/auth"
	"github.com/ayush/fitness-ai/backend/internal/middleware"
	"github.com/ayush/fitness-ai/backend/internal/plans"
	"github.com/ayush/fitness-ai/backend/internal/rpc"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the long-lived handles the routes are built from.
type Deps struct {
	Log         *zap.Logger
	Users       auth.UserStore
	Sessions    *auth.SessionStore
	Avatars     auth.AvatarStore // nil disables avatar routes
	Plans       *plans.Service
	Health      map[string]HealthCheck
	CORSOrigins []string
}

// NewRouter returns the root handler.
func NewRouter(d Deps) http.Handler {
	authHandler := auth.NewHandler(d.Users, d.Sessions, d.Avatars, d.Log.Named("auth"))

	procedures := rpc.NewRouter(d.Log.Named("rpc"), plans.MapError)
	plans.Register(procedures, d.Plans)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Log.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(d.Health))

	// Auth routes
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(d.Sessions))
			r.Get("/me", authHandler.Me)
			r.Put("/me/avatar", authHandler.UploadAvatar)
		})
	})

	r.Get("/api/users/{id}/avatar", authHandler.Avatar)

	// Procedures see the caller when there is one; plans.create rejects
	// anonymous calls itself.
	r.Route("/api/rpc", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(d.Sessions))
		r.Mount("/", procedures)
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeHealth(w, "degraded", failed)
			return
		}
		writeHealth(w, "ok", nil)
	}
}

func writeHealth(w http.ResponseWriter, status string, failed map[string]string) {
	body := map[string]any{"status": status}
	if len(failed) > 0 {
		body["failed"] = failed
	}
	json.NewEncoder(w).Encode(body)
}
