package controllerd

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gridforge/jobcore/internal/controllerd/handlers"
	authMw "github.com/gridforge/jobcore/internal/controllerd/mw"
)

// SetupRouter configures and returns the controller daemon's HTTP router.
func SetupRouter(authToken string, store *Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	heartbeatHandler := handlers.NewHeartbeatHandler(store)
	feedHandler := handlers.NewFeedHandler(store)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMw.BearerAuth(authToken))

		r.Post("/heartbeat", heartbeatHandler.Heartbeat)
		r.Post("/jobparameters", heartbeatHandler.SetJobParameters)
		r.Post("/renewproxy", heartbeatHandler.RenewProxy)

		r.Get("/feed", feedHandler.Handle)
	})

	return r
}
