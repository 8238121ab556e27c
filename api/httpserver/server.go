// Package httpserver exposes digesting, registration and verification over
// HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/registrar"
	"xdao.co/memoproof/verify"
)

const (
	// SessionHeader groups verify requests; a newer request in the same
	// session cancels the older one.
	SessionHeader = "X-Session-ID"

	DefaultMaxUploadBytes = 64 << 20
	DefaultSessions       = 1024

	maxJSONBytes = 1 << 20
)

// Service is the registrar surface the API drives. *registrar.Service
// satisfies it.
type Service interface {
	Register(ctx context.Context, d digest.Digest, opts registrar.RegisterOptions) (registrar.Registration, error)
	Verify(ctx context.Context, d digest.Digest, opts registrar.VerifyOptions) verify.Outcome
	Receipt(ctx context.Context, d digest.Digest) (receipt.Receipt, error)
}

type Server struct {
	Service        Service
	Logger         *slog.Logger
	MaxUploadBytes int64

	once     sync.Once
	mu       sync.Mutex
	sessions *lru.Cache[string, *verify.Session]
}

func New(svc Service, logger *slog.Logger) *Server {
	return &Server{Service: svc, Logger: logger}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Handler returns a router with every route and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Use(requestID)
	r.Use(accessLog(s.logger()))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/digest", s.handleDigest)
		r.Post("/verify", s.handleVerify)
		r.Post("/register", s.handleRegister)
		r.Get("/receipts/{digest}", s.handleReceipt)
	})
}

// session returns the session for id, creating it on first use. Old
// sessions are evicted least-recently-used.
func (s *Server) session(id string) *verify.Session {
	s.once.Do(func() {
		s.sessions, _ = lru.New[string, *verify.Session](DefaultSessions)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(id); ok {
		return sess
	}
	sess := &verify.Session{}
	s.sessions.Add(id, sess)
	return sess
}

func (s *Server) maxUploadBytes() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
