package www

import (
	"net/http"

	"gantry/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	sessions *sessionStore
	eventHub *EventHub
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: NewEventHub(),
	}

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE (no auth — read-only event stream)
	r.Get("/events", h.eventHub.HandleSSE)

	// Core protocol (no auth — the scheduler is the caller)
	r.Get("/fingerprint", h.handleFingerprint)
	r.Post("/reserve", h.handleReserve)
	r.Post("/release", h.handleRelease)
	r.Get("/stats", h.handleStats)
	r.Get("/reservations", h.handleReservations)
	r.Get("/status", h.handleStatus)

	// Login/logout
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	// Admin API (config mutations and history)
	r.Route("/api", func(r chi.Router) {
		r.Use(h.adminMiddleware)

		r.Get("/config/bridge", h.apiGetBridge)
		r.Put("/config/bridge", h.apiUpdateBridge)
		r.Put("/config/messaging", h.apiUpdateMessaging)
		r.Post("/config/password", h.apiChangePassword)

		r.Get("/history/{deviceID}", h.apiDeviceHistory)
		r.Get("/samples/{deviceID}", h.apiDeviceSamples)
	})

	return r, func() {
		h.eventHub.Stop()
	}
}

func (h *Handlers) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := h.sessions.getUser(r)
		if !ok || username == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
