// internal/history/store.go
//
// Results archive backed by SQLite.
// One row per won game (per game generation, so a replayed classic session
// records each win). Daily results are unique per game and per client and
// date. Nothing about an in-progress game is ever written here.

package history

import (
	"context"
	"database/sql"
	"time"
)

// Result is a finished game.
type Result struct {
	GameID         string    `json:"gameId"`
	ClientID       string    `json:"-"`
	Generation     uint64    `json:"generation"`
	Mode           string    `json:"mode"`
	Date           string    `json:"date"` // YYYY-MM-DD (UTC) of the win
	Pairs          int       `json:"pairs"`
	Moves          int       `json:"moves"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// LBRow is one leaderboard entry.
type LBRow struct {
	GameID         string `json:"gameId"`
	Moves          int    `json:"moves"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Insert records a result. A duplicate (game, generation) is ignored, as is
// a second daily result for the same game or the same client and date.
func (s *Store) Insert(ctx context.Context, r Result) error {
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO results
			(game_id, client_id, generation, mode, date, pairs, moves, elapsed_seconds, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.GameID, r.ClientID, r.Generation, r.Mode, r.Date, r.Pairs, r.Moves, r.ElapsedSeconds,
		finished.UTC().Format(time.RFC3339),
	)
	return err
}

// DailyPlayed reports whether clientID already has a daily result for date.
func (s *Store) DailyPlayed(ctx context.Context, clientID, date string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM results
		WHERE mode = 'daily' AND client_id = ? AND date = ?`, clientID, date).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Recent returns the latest results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, generation, mode, date, pairs, moves, elapsed_seconds, finished_at
		FROM results
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Result{}
	for rows.Next() {
		var r Result
		var finished string
		if err := rows.Scan(&r.GameID, &r.Generation, &r.Mode, &r.Date, &r.Pairs,
			&r.Moves, &r.ElapsedSeconds, &finished); err != nil {
			return nil, err
		}
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Leaderboard ranks daily results for date: fewest moves, then fastest,
// then earliest.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, moves, elapsed_seconds
		FROM results
		WHERE mode = 'daily' AND date = ?
		ORDER BY moves ASC, elapsed_seconds ASC, finished_at ASC
		LIMIT ?`, date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.GameID, &r.Moves, &r.ElapsedSeconds); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Purge deletes every result and reports how many rows went.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
