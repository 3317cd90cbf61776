package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
	"github.com/groundlink-io/groundlink/pkg/log"
	"github.com/groundlink-io/groundlink/pkg/options"
)

// Server exposes the mission state over HTTP: health and metrics probes,
// the REST snapshot API and the websocket event feed.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
	sess    *session.Session
}

func NewServer(opts *options.HttpOptions, sess *session.Session) *Server {
	s := &Server{
		options: opts,
		sess:    sess,
	}

	r := mux.NewRouter()

	// Liveness probe.
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness follows the session lifecycle: not ready until active.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if sess.State() != session.StateActive {
			http.Error(w, sess.State(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", s.handleVehicle).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", s.handleRegister).Methods(http.MethodPut)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/geofence", s.handleGeofenceGet).Methods(http.MethodGet)
	api.HandleFunc("/geofence", s.handleGeofencePut).Methods(http.MethodPut)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: 0, // the websocket feed holds connections open
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	id := telemetry.VehicleID(mux.Vars(r)["id"])
	view, ok := s.sess.Vehicle(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown vehicle")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := telemetry.VehicleID(mux.Vars(r)["id"])
	if _, ok := s.sess.Vehicle(id); !ok {
		writeError(w, http.StatusNotFound, "unknown vehicle")
		return
	}
	writeJSON(w, http.StatusOK, s.sess.History(id))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	id := telemetry.VehicleID(mux.Vars(r)["id"])
	if err := s.sess.RegisterVehicle(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    s.sess.State(),
		"vehicles": len(s.sess.Snapshot()),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Start(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.sess.State()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Stop(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.sess.State()})
}

func (s *Server) handleGeofenceGet(w http.ResponseWriter, _ *http.Request) {
	def := s.sess.Geofence()
	if def == nil {
		writeError(w, http.StatusNotFound, "no geofence configured")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleGeofencePut(w http.ResponseWriter, r *http.Request) {
	var def geofence.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid geofence payload: "+err.Error())
		return
	}
	transitions, err := s.sess.SwapGeofence(&def)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

func statusFor(err error) int {
	if errors.Is(err, session.ErrSessionNotActive) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
