// internal/httpserver/routes_game.go
//
// Game session endpoints.
//   - POST   /game/new          → deal a board (classic or today's daily deal;
//                                 one daily deal per client per date)
//   - GET    /game/{id}         → snapshot; face-down tokens are hidden
//   - POST   /game/{id}/select  → player picks a card
//   - POST   /game/{id}/reset   → "new game" button
//   - DELETE /game/{id}         → end the session and stop its timers
//
// Every session gets a listener that appends wins to the results archive.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/concentration/internal/daily"
	"github.com/robalobadob/concentration/internal/game"
	"github.com/robalobadob/concentration/internal/history"
	"github.com/robalobadob/concentration/internal/store"
)

const (
	modeClassic = "classic"
	modeDaily   = "daily"
)

type newGameReq struct {
	Mode string `json:"mode" validate:"omitempty,oneof=classic daily"`
}

type newGameRes struct {
	GameID string     `json:"gameId"`
	Token  string     `json:"token"`
	Mode   string     `json:"mode"`
	Date   string     `json:"date,omitempty"`
	State  game.State `json:"state"`
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, `{"error":"bad_mode"}`, http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = modeClassic
	}
	cid := s.ensureClientID(w, r)

	var sess *store.Session
	var err error
	if req.Mode == modeDaily {
		sess, err = s.dailySession(r.Context(), cid)
	} else {
		sess, err = s.createSession(r.Context(), modeClassic, cid)
	}
	switch {
	case errors.Is(err, errDailyPlayed):
		http.Error(w, `{"error":"daily_already_played"}`, http.StatusConflict)
		return
	case errors.Is(err, errDailyStarted):
		http.Error(w, `{"error":"daily_already_started"}`, http.StatusConflict)
		return
	case err != nil:
		s.log.Error().Err(err).Str("mode", req.Mode).Msg("new session")
		http.Error(w, `{"error":"create_failed"}`, http.StatusInternalServerError)
		return
	}

	tok, exp, err := s.sign(sess.ID, cid)
	if err != nil {
		s.log.Error().Err(err).Str("gameId", sess.ID).Msg("sign session")
		_ = s.store.Delete(r.Context(), sess.ID)
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	s.setSessionCookie(w, tok, exp)

	_ = json.NewEncoder(w).Encode(newGameRes{
		GameID: sess.ID,
		Token:  tok,
		Mode:   sess.Mode,
		Date:   sess.Date,
		State:  sess.Engine.Snapshot(),
	})
}

var (
	errDailyPlayed  = errors.New("daily already played")
	errDailyStarted = errors.New("daily already started")
)

// dailySession hands a client its one daily deal for today. A live session
// is reused; a finished or abandoned one is not dealt again.
func (s *Server) dailySession(ctx context.Context, cid string) (*store.Session, error) {
	date := daily.DateKey(s.sched.Now())
	played, err := s.hist.DailyPlayed(ctx, cid, date)
	if err != nil {
		return nil, err
	}
	if played {
		return nil, errDailyPlayed
	}

	s.dailyMu.Lock()
	defer s.dailyMu.Unlock()
	key := date + "|" + cid
	if gid, ok := s.dailyStarts[key]; ok {
		if sess, err := s.store.Get(ctx, gid); err == nil {
			return sess, nil
		}
		return nil, errDailyStarted
	}

	sess, err := s.createSession(ctx, modeDaily, cid)
	if err != nil {
		return nil, err
	}
	for k := range s.dailyStarts {
		if !strings.HasPrefix(k, date+"|") {
			delete(s.dailyStarts, k)
		}
	}
	s.dailyStarts[key] = sess.ID
	return sess, nil
}

// createSession builds and registers a fresh session.
func (s *Server) createSession(ctx context.Context, mode, cid string) (*store.Session, error) {
	sess, err := s.newSession(mode, cid)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sess); err != nil {
		sess.Engine.Close()
		return nil, err
	}
	s.log.Info().Str("gameId", sess.ID).Str("mode", mode).Msg("game created")
	return sess, nil
}

// newSession builds an engine for mode and hooks up the archive listener.
func (s *Server) newSession(mode, cid string) (*store.Session, error) {
	now := s.sched.Now()
	id := uuid.NewString()
	sess := &store.Session{ID: id, ClientID: cid, Mode: mode, CreatedAt: now}

	opts := []game.Option{
		game.WithScheduler(s.sched),
		game.WithDelays(s.cfg.Delays()),
		game.WithLogger(log.Logger.With().Str("component", "game").Str("gameId", id).Logger()),
	}
	if mode == modeDaily {
		sess.Date = daily.DateKey(now)
		opts = append(opts, game.WithDealer(game.SeededDealer(daily.Seed(now, s.cfg.DailySalt))))
	}

	eng, err := game.New(s.alphabet, opts...)
	if err != nil {
		return nil, err
	}
	sess.Engine = eng
	sess.FirstGeneration = eng.Snapshot().Generation
	eng.Subscribe(s.archiveListener(sess))
	return sess, nil
}

// archiveListener records each announced victory. A daily session only
// counts its first deal; replays after a reset are practice. The insert runs
// on its own goroutine so the engine's timer never waits on the database.
func (s *Server) archiveListener(sess *store.Session) game.Listener {
	return func(ev game.Event) {
		if ev.Type != game.EventVictory || ev.Summary == nil {
			return
		}
		if sess.Mode == modeDaily && ev.Generation != sess.FirstGeneration {
			s.log.Debug().Str("gameId", sess.ID).Uint64("generation", ev.Generation).Msg("daily replay not archived")
			return
		}
		now := s.sched.Now()
		date := sess.Date
		if date == "" {
			date = daily.DateKey(now)
		}
		res := history.Result{
			GameID:         sess.ID,
			ClientID:       sess.ClientID,
			Generation:     ev.Generation,
			Mode:           sess.Mode,
			Date:           date,
			Pairs:          len(s.alphabet),
			Moves:          ev.Summary.Moves,
			ElapsedSeconds: ev.Summary.ElapsedSeconds,
			FinishedAt:     now,
		}
		go s.record(res)
	}
}

func (s *Server) record(res history.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.hist.Insert(ctx, res); err != nil {
		s.log.Warn().Err(err).Str("gameId", res.GameID).Msg("archive result")
		return
	}
	s.log.Info().
		Str("gameId", res.GameID).
		Int("moves", res.Moves).
		Int("elapsed", res.ElapsedSeconds).
		Msg("result archived")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	_ = json.NewEncoder(w).Encode(sess.Engine.Snapshot())
}

type selectReq struct {
	Position *int `json:"position" validate:"required,gte=0"`
}

type selectRes struct {
	Accepted bool       `json:"accepted"`
	State    game.State `json:"state"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, `{"error":"bad_position"}`, http.StatusBadRequest)
		return
	}
	ok := sess.Engine.Select(*req.Position)
	_ = json.NewEncoder(w).Encode(selectRes{Accepted: ok, State: sess.Engine.Snapshot()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.Engine.Reset()
	_ = json.NewEncoder(w).Encode(sess.Engine.Snapshot())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if err := s.store.Delete(r.Context(), sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"delete_failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
