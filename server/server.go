// Package server exposes the conversation engine over HTTP: one request/reply
// turn endpoint behind basic auth. The transport owns session resolution,
// per-session serialization, and persistence around each engine transition.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/fusionworks/supplier-intake-agent/agent/engine"
	"github.com/fusionworks/supplier-intake-agent/agent/state"
)

// singletonSessionID pins every conversation to one session when the
// deployment runs in single-conversation mode.
const singletonSessionID = "primary"

type Config struct {
	Addr     string `envconfig:"ADDR" split_words:"true" default:":8009"`
	Username string `envconfig:"USERNAME" split_words:"true" required:"true"`
	Password string `envconfig:"PASSWORD" split_words:"true" required:"true"`

	// SingletonSession switches session cardinality: true means one global
	// conversation regardless of the sessionId callers send, false keys
	// conversations by id (unknown or absent ids start fresh sessions).
	SingletonSession bool `envconfig:"SINGLETON_SESSION" split_words:"true" default:"false"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

type Server struct {
	engine *engine.Engine
	store  state.Store
	cfg    Config
	locks  *sessionLocks
	newID  func() string
	logger zerolog.Logger
}

func New(eng *engine.Engine, store state.Store, cfg Config) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("agent credentials are required")
	}
	return &Server{
		engine: eng,
		store:  store,
		cfg:    cfg,
		locks:  newSessionLocks(),
		newID:  uuid.NewString,
		logger: log.With().Str("component", "server").Logger(),
	}, nil
}

type turnRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

type turnResponse struct {
	Status    contract.TurnStatus `json:"status"`
	SessionID string              `json:"sessionId,omitempty"`
	Reply     string              `json:"reply"`
	Data      map[string]string   `json:"data,omitempty"`
	Details   any                 `json:"details,omitempty"`
}

// Handler builds the routed, authenticated, request-logged handler chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Supplier Agent is running."})
	})
	mux.Handle("POST /supplier-agent", s.requireAuth(http.HandlerFunc(s.handleTurn)))

	chain := hlog.NewHandler(log.Logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", duration).
				Msg("request")
		})(mux))
	return chain
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, turnResponse{
			Status: contract.StatusError,
			Reply:  "Invalid request body",
		})
		return
	}

	ctx := r.Context()
	sessionID, sess, unlock, err := s.resolveSession(ctx, req.SessionID)
	if err != nil {
		s.logger.Error().Err(err).Msg("session lookup failed")
		writeJSON(w, http.StatusInternalServerError, turnResponse{
			Status: contract.StatusError,
			Reply:  "Session lookup failed",
		})
		return
	}
	defer unlock()

	next, result := s.engine.HandleTurn(ctx, sessionID, sess, req.Message)

	if next != nil {
		err = s.store.Save(ctx, next)
	} else if sess != nil {
		// The turn ended an existing conversation; its id stops resolving.
		err = s.store.Delete(ctx, sessionID)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("session persistence failed")
		writeJSON(w, http.StatusInternalServerError, turnResponse{
			Status: contract.StatusError,
			Reply:  "Session persistence failed",
		})
		return
	}

	resp := turnResponse{
		Status:  result.Status,
		Reply:   result.Reply,
		Data:    result.Data,
		Details: result.Details,
	}
	if next != nil {
		resp.SessionID = next.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveSession maps the caller's sessionId to a locked session slot.
// Singleton mode ignores the caller's id entirely; keyed mode resumes known
// ids and mints a fresh id for absent or unknown ones.
func (s *Server) resolveSession(ctx context.Context, requested string) (string, *state.Session, func(), error) {
	if s.cfg.SingletonSession {
		unlock := s.locks.lock(singletonSessionID)
		sess, err := s.loadIfExists(ctx, singletonSessionID)
		if err != nil {
			unlock()
			return "", nil, nil, err
		}
		return singletonSessionID, sess, unlock, nil
	}

	if requested != "" {
		unlock := s.locks.lock(requested)
		sess, err := s.loadIfExists(ctx, requested)
		if err != nil {
			unlock()
			return "", nil, nil, err
		}
		if sess != nil {
			return requested, sess, unlock, nil
		}
		unlock()
	}

	id := s.newID()
	return id, nil, s.locks.lock(id), nil
}

func (s *Server) loadIfExists(ctx context.Context, id string) (*state.Session, error) {
	sess, err := s.store.Load(ctx, id)
	if errors.Is(err, contract.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="supplier-agent"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
