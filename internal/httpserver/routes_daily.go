// internal/httpserver/routes_daily.go
//
// Daily deal leaderboard.
//   - GET /daily/leaderboard → top 20 daily results for today (or ?date=)
//
// The daily deal itself is created through POST /game/new {"mode":"daily"}:
// every player gets the same layout for a given UTC date.

package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/concentration/internal/daily"
	"github.com/robalobadob/concentration/internal/history"
)

func (s *Server) mountDaily(r chi.Router) {
	r.Get("/daily/leaderboard", s.handleLeaderboard)
}

type lbRes struct {
	Date string          `json:"date"`
	Top  []history.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(s.sched.Now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, `{"error":"bad_date"}`, http.StatusBadRequest)
		return
	}
	rows, err := s.hist.Leaderboard(r.Context(), date, 20)
	if err != nil {
		s.log.Error().Err(err).Msg("leaderboard")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Date: date, Top: rows})
}
