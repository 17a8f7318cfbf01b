// Package server exposes a running simulation over HTTP and WebSocket: state
// queries, traffic control, clock control, the GTFS-Realtime feed and a live
// stream of move logs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/feed"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// DefaultPickRadius bounds /api/streets/nearest when no radius is given.
const DefaultPickRadius = 25.0

// Server is the HTTP front end of a Driver.
type Server struct {
	driver  *Driver
	hub     *Hub
	feed    feed.Builder
	origins []string
	router  *mux.Router
	log     *log.Entry
	now     func() time.Time
}

// New builds the router. origins lists the allowed CORS origins.
func New(d *Driver, hub *Hub, fb feed.Builder, origins []string) *Server {
	s := &Server{
		driver:  d,
		hub:     hub,
		feed:    fb,
		origins: origins,
		router:  mux.NewRouter(),
		log:     log.WithField("component", "server"),
		now:     time.Now,
	}
	s.routes()
	return s
}

// routes registers every endpoint on the root router. Subrouters answer a
// method mismatch with 404, so the /api prefix is spelled out per route to
// keep 405 responses.
func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles", s.handleVehicles).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/{id}", s.handleVehicle).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/lines", s.handleLines).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{index}/alternate", s.handleAlternate).Methods(http.MethodPost)
	r.HandleFunc("/api/streets", s.handleStreets).Methods(http.MethodGet)
	r.HandleFunc("/api/streets/nearest", s.handleNearest).Methods(http.MethodGet)
	r.HandleFunc("/api/streets/{id}/traffic", s.handleTraffic).Methods(http.MethodPut)
	r.HandleFunc("/api/time", s.handleSetTime).Methods(http.MethodPost)
	r.HandleFunc("/api/step", s.handleStep).Methods(http.MethodPost)
	r.HandleFunc("/api/restart", s.handleRestart).Methods(http.MethodPost)
	r.HandleFunc("/api/feed/vehicle-positions", s.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/ws/moves", s.handleMoves)
}

// Handler returns the router wrapped with CORS. Access logging is added by
// ListenAndServe.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return cors(s.router)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	access := s.log.WithField("component", "http").WriterLevel(log.InfoLevel)
	defer access.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.CombinedLoggingHandler(access, s.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.WithField("addr", addr).Info("listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("writing response")
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, simerr.ErrHalted), errors.Is(err, simerr.ErrDuplicateID):
		return http.StatusInternalServerError
	case errors.Is(err, simerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simerr.ErrInvalidInput),
		errors.Is(err, simerr.ErrInvalidDuration),
		errors.Is(err, simerr.ErrInvalidSchedule),
		errors.Is(err, simerr.ErrInvalidTraffic):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
