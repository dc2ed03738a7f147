// internal/httpserver/server.go
//
// HTTP server wiring for the Concentration backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game endpoints: POST /game/new, then /game/{id}/* gated by the session
//     token issued at creation.
//   - Results archive: GET /history (public), DELETE /history (admin).
//   - Daily leaderboard under /daily.
//   - Idle session janitor.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Engines run on the wall clock in production; tests inject a ManualClock.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/concentration/internal/config"
	"github.com/robalobadob/concentration/internal/game"
	"github.com/robalobadob/concentration/internal/history"
	"github.com/robalobadob/concentration/internal/store"
)

// Server bundles router, session registry and results archive.
type Server struct {
	r        *chi.Mux
	cfg      config.Config
	store    store.Store
	hist     *history.Store
	alphabet []game.Token
	sched    game.Scheduler
	validate *validator.Validate
	log      zerolog.Logger

	// sign issues session tokens; swapped out in tests.
	sign func(gameID, clientID string) (string, time.Time, error)

	dailyMu     sync.Mutex
	dailyStarts map[string]string // date|clientID → gameID
}

// Option customises a Server at construction.
type Option func(*Server)

// WithScheduler drives every engine (and session timestamps) from s.
func WithScheduler(s game.Scheduler) Option { return func(srv *Server) { srv.sched = s } }

// New constructs a Server, installs middleware, and registers routes.
// alphabet is the set of faces dealt on every board.
func New(cfg config.Config, st store.Store, hist *history.Store, alphabet []game.Token, opts ...Option) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		cfg:      cfg,
		store:    st,
		hist:     hist,
		alphabet: alphabet,
		sched:    game.WallClock{},
		validate: validator.New(),
		log:      log.Logger.With().Str("component", "http").Logger(),

		dailyStarts: make(map[string]string),
	}
	s.sign = s.signSession
	for _, opt := range opts {
		opt(s)
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"concentration","endpoints":["/health","POST /game/new","/game/{id}","/game/{id}/ws","/history","/daily/leaderboard"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Plain request/response routes are time-bounded; the websocket is not.
	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Post("/game/new", s.handleNewGame)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/game/{id}", s.handleSnapshot)
			r.Post("/game/{id}/select", s.handleSelect)
			r.Post("/game/{id}/reset", s.handleReset)
			r.Delete("/game/{id}", s.handleDelete)
		})
		s.mountHistory(r)
		s.mountDaily(r)
	})
	s.r.With(s.requireSession).Get("/game/{id}/ws", s.handleWS)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	})

	return s
}

// Start serves HTTP on addr until ctx is cancelled, sweeping idle sessions
// in the background.
func (s *Server) Start(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 5 * time.Second}

	go s.janitor(ctx)
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutCtx)
	}()

	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// Sweep drops sessions idle for longer than the configured TTL.
func (s *Server) Sweep() int {
	n := s.store.Sweep(s.sched.Now().Add(-s.cfg.SessionTTL()))
	if n > 0 {
		s.log.Info().Int("dropped", n).Int("live", s.store.Len()).Msg("idle sessions swept")
	}
	return n
}

func (s *Server) janitor(ctx context.Context) {
	every := s.cfg.SessionTTL() / 4
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
