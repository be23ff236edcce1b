// Package server implements the HTTP API for timestamp generation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tidyoux/timestamper/internal/timestamps"
	"tidyoux/timestamper/internal/transcript"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 5 * time.Minute
	maxRequestBody      = 1 << 20
)

// Generator produces steps for a video id.
type Generator interface {
	Generate(ctx context.Context, videoID string) (*timestamps.Result, error)
}

// VideoResolver turns the video_id field into a YouTube video id.
type VideoResolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

// Server is the HTTP API server.
type Server struct {
	address      string
	gen          Generator
	resolver     VideoResolver
	debug        bool
	provider     transcript.Provider
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
	server       *http.Server
}

// Option customizes the server.
type Option func(*Server)

// WithResolver sets how video_id values are turned into ids. Without one
// the value is passed through transcript.ParseVideoID.
func WithResolver(r VideoResolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithDebug enables the transcript listing route and error diagnostics.
func WithDebug(provider transcript.Provider) Option {
	return func(s *Server) {
		s.debug = provider != nil
		s.provider = provider
	}
}

// WithTimeouts overrides the read and write timeouts; zero keeps the default.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// NewServer creates a new API server listening on address.
func NewServer(address string, gen Generator, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		address:      address,
		gen:          gen,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:         address,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /generate_timestamps", s.handleGenerate)
	if s.debug {
		mux.HandleFunc("GET /debug/transcripts/{video_id}", s.handleDebugTranscripts)
	}
	mux.HandleFunc("/", s.handleNotFound)

	return s.withRequestID(s.withLogging(mux))
}

// Start serves HTTP until Shutdown is called. It returns nil after a
// graceful shutdown. ctx only bounds binding the listener.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ln)
}

func (s *Server) serve(ln net.Listener) error {
	s.logger.Info("starting API server", "address", ln.Addr().String(), "debug", s.debug)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx expires. Calling it before Start makes Start return nil.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, v, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, detail string) {
	s.respond(w, code, errorBody{Detail: detail})
}

type errorBody struct {
	Detail      string       `json:"detail"`
	Diagnostics *diagnostics `json:"diagnostics,omitempty"`
}
