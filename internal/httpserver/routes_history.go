// internal/httpserver/routes_history.go
//
// Results archive endpoints.
//   - GET    /history?limit=n → most recent wins, newest first
//   - DELETE /history         → purge (admin basic auth)

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) mountHistory(r chi.Router) {
	r.Get("/history", s.handleHistory)
	r.With(s.requireAdmin).Delete("/history", s.handlePurge)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, `{"error":"bad_limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := s.hist.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("history")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.hist.Purge(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("purge history")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	s.log.Warn().Int64("rows", n).Msg("history purged")
	_ = json.NewEncoder(w).Encode(map[string]int64{"deleted": n})
}
