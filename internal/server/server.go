// Package server exposes the notification subsystem over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"agri-price-notify/internal/dispatch"
	"agri-price-notify/internal/notify"
	"agri-price-notify/internal/storage"
)

// Server routes API requests to the notification service and stores.
type Server struct {
	router    *chi.Mux
	notify    *notify.Service
	history   storage.HistoryStore
	templates storage.TemplateStore
	logger    zerolog.Logger
}

// New wires the HTTP router. history and templates may be nil when the
// database is not configured; the affected endpoints then answer 503.
func New(notifySvc *notify.Service, history storage.HistoryStore, templates storage.TemplateStore, logger zerolog.Logger) *Server {
	s := &Server{
		notify:    notifySvc,
		history:   history,
		templates: templates,
		logger:    logger.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/sms", s.handleSMSPost)
	r.Get("/sms", s.handleSMSGet)
	r.Post("/whatsapp_trends", s.handleTrendsPost)
	r.Get("/whatsapp_trends", s.handleTrendsGet)

	s.router = r
	return s
}

// Handler returns the root http handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// respond flattens v's JSON fields into the top-level success envelope, so
// dispatch outcomes come back as {success, sms_id, status, sent, ...} rather
// than nested under a wrapper key.
func (s *Server) respond(w http.ResponseWriter, v any, extra map[string]any) {
	payload := map[string]any{"success": true}
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response body")
			s.fail(w, http.StatusInternalServerError, "internal error")
			return
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err == nil {
			for key, value := range fields {
				payload[key] = value
			}
		}
	}
	for key, value := range extra {
		payload[key] = value
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// failErr maps domain errors to HTTP status codes: validation failures are
// the caller's fault, missing rows are 404, everything else is a 500.
func (s *Server) failErr(w http.ResponseWriter, err error) {
	switch {
	case dispatch.IsValidationError(err):
		s.fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrNotConfigured), errors.Is(err, dispatch.ErrStoreRequired):
		s.fail(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.fail(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes the request body, tolerating unknown fields so older
// and newer clients can talk to the same endpoint.
func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// parseScheduleTime accepts RFC 3339 and the plain datetime form the web
// clients submit.
func parseScheduleTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts, nil
		}
	}
	return nil, errors.New("unrecognized schedule_time format")
}
