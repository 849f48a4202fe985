package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string    `json:"error"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Details string    `json:"details,omitempty"`
}

// Server exposes the HTTP surface of the proxy.
type Server struct {
	forwarder *Forwarder
	logger    *zap.Logger
}

func NewServer(forwarder *Forwarder, logger *zap.Logger) *Server {
	return &Server{forwarder: forwarder, logger: logger}
}

// Routes returns the router for /ping, /health and /convert.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ping", s.handlePing)
	r.Get("/health", s.handleHealth)
	r.Post("/convert", s.handleConvert)

	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "pong"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()
	logger := requestLogger(s.logger, requestID)
	w.Header().Set("X-Request-Id", requestID)

	upstream, err := s.forwarder.Handle(r, logger)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	if err := Relay(w, upstream, logger); err != nil {
		// Headers are already sent; abort so the caller sees a broken
		// response rather than a short one.
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var re *RequestError
	if !errors.As(err, &re) {
		re = &RequestError{Kind: KindUpstreamTransport, Message: "internal error", Err: err}
	}

	logger.Warn("convert failed",
		zap.String("kind", string(re.Kind)),
		zap.Int("status", re.StatusCode()),
		zap.Error(err))

	writeJSON(w, re.StatusCode(), errorResponse{
		Error:   re.Message,
		Kind:    re.Kind,
		Details: re.Details(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
