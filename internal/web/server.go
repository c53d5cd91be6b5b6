// Package web serves the browser UI and integration endpoints: a
// connection form, HTML and JSON report endpoints, a liveness probe,
// and an SVG status badge fed from saved history.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/history"
)

const defaultAddr = ":8767"

// RunFunc produces a health report for a connection string. The server
// never builds reports itself, so handler tests inject fakes.
type RunFunc func(ctx context.Context, connString string) (*health.Report, error)

// LatestFunc looks up the newest saved history entry for a database;
// nil means the database has no history.
type LatestFunc func(ctx context.Context, database string) (*history.Entry, error)

type Server struct {
	Addr   string
	Run    RunFunc
	Latest LatestFunc

	router *mux.Router
	http   *http.Server
}

// NewServer wires the route table. An empty addr means :8767. latest
// may be nil, in which case badges always read "unknown".
func NewServer(addr string, run RunFunc, latest LatestFunc) *Server {
	if addr == "" {
		addr = defaultAddr
	}
	s := &Server{Addr: addr, Run: run, Latest: latest}

	s.router = mux.NewRouter()
	s.router.Use(requestLogger)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost)
	s.router.HandleFunc("/api/check", s.handleAPICheck).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/badge/{database}.svg", s.handleBadge).Methods(http.MethodGet)
	return s
}

// Handler exposes the route table so tests can drive it through
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs until ctx is cancelled, then drains in-flight
// requests with a five second grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("web server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("web server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		log.Error().Err(err).Msg("rendering index")
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	connString := r.FormValue("connection_string")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if connString == "" {
		w.WriteHeader(http.StatusBadRequest)
		renderError(w, "connection string is required")
		return
	}

	report, err := s.Run(r.Context(), connString)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		renderError(w, err.Error())
		return
	}
	if err := reportTemplate.Execute(w, newReportView(report)); err != nil {
		log.Error().Err(err).Msg("rendering report")
	}
}

// handleAPICheck takes the same connection_string form field as the UI
// and returns the raw report JSON.
func (s *Server) handleAPICheck(w http.ResponseWriter, r *http.Request) {
	connString := r.FormValue("connection_string")
	if connString == "" {
		writeJSONError(w, http.StatusBadRequest, "connection string is required")
		return
	}

	report, err := s.Run(r.Context(), connString)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.Error().Err(err).Msg("encoding report")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	database := mux.Vars(r)["database"]

	status := "unknown"
	if s.Latest != nil {
		entry, err := s.Latest(r.Context(), database)
		if err != nil {
			log.Warn().Err(err).Str("database", database).Msg("badge lookup failed")
		} else if entry != nil {
			status = entry.WorstSeverity
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(badgeSVG(database, status)))
}

func renderError(w http.ResponseWriter, msg string) {
	if err := errorTemplate.Execute(w, struct{ Error string }{Error: msg}); err != nil {
		log.Error().Err(err).Msg("rendering error page")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
