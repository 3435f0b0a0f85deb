package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Lyrian/pkg/markov"
)

const usageSchema = `
CREATE TABLE IF NOT EXISTS stats_generation (
    model_name    TEXT PRIMARY KEY,
    requests      INTEGER NOT NULL DEFAULT 0,
    failures      INTEGER NOT NULL DEFAULT 0,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);
`

// ModelUsage counts the generation requests served for one model.
type ModelUsage struct {
	Model     string    `json:"model"`
	Requests  int64     `json:"requests"`
	Failures  int64     `json:"failures"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// StatsSummary combines the store statistics with generation usage.
type StatsSummary struct {
	*markov.DBStats
	TotalRequests int64        `json:"total_requests"`
	TotalFailures int64        `json:"total_failures"`
	Usage         []ModelUsage `json:"usage"`
}

func setupUsageSchema(db *sql.DB) error {
	_, err := db.Exec(usageSchema)
	return err
}

// UsageLog records generation requests per model name.
type UsageLog struct {
	db         *sql.DB
	stmtRecord *sql.Stmt
	logger     *slog.Logger
}

// NewUsageLog prepares the usage statements on db. setupUsageSchema must have
// been called on db.
func NewUsageLog(db *sql.DB, logger *slog.Logger) (*UsageLog, error) {
	stmt, err := db.Prepare(`
INSERT INTO stats_generation (model_name, requests, failures, first_seen, last_seen) VALUES (?, 1, ?, ?, ?)
ON CONFLICT(model_name) DO UPDATE SET requests = requests + 1, failures = failures + excluded.failures, last_seen = excluded.last_seen;`)
	if err != nil {
		return nil, fmt.Errorf("could not prepare statement: %w", err)
	}
	return &UsageLog{db: db, stmtRecord: stmt, logger: logger}, nil
}

// Record counts one generation request. Failures to write are logged and
// otherwise ignored; usage never fails a request.
func (u *UsageLog) Record(ctx context.Context, model string, ok bool) {
	failed := 0
	if !ok {
		failed = 1
	}
	now := time.Now().UTC()
	if _, err := u.stmtRecord.ExecContext(context.WithoutCancel(ctx), model, failed, now, now); err != nil {
		u.logger.Warn("Failed to record generation usage", "model", model, "error", err)
	}
}

// Usage returns the usage of every model, busiest first.
func (u *UsageLog) Usage(ctx context.Context) ([]ModelUsage, error) {
	rows, err := u.db.QueryContext(ctx, `
SELECT model_name, requests, failures, first_seen, last_seen
FROM stats_generation ORDER BY requests DESC, model_name LIMIT 100;`)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	usage := []ModelUsage{}
	for rows.Next() {
		var mu ModelUsage
		if err = rows.Scan(&mu.Model, &mu.Requests, &mu.Failures, &mu.FirstSeen, &mu.LastSeen); err != nil {
			return nil, err
		}
		usage = append(usage, mu)
	}
	return usage, rows.Err()
}

// Close releases the prepared statement.
func (u *UsageLog) Close() {
	_ = u.stmtRecord.Close()
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store  *markov.Store
	usage  *UsageLog
	logger *slog.Logger
}

func NewStatsAPI(store *markov.Store, usage *UsageLog, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:  store,
		usage:  usage,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", s.handleSummary)
	mux.HandleFunc("GET /api/stats/usage", s.handleUsage)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeStatsRead) {
		return
	}
	dbStats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("Failed to get store stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	usage, err := s.usage.Usage(r.Context())
	if err != nil {
		s.logger.Error("Failed to get usage stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	summary := StatsSummary{DBStats: dbStats, Usage: usage}
	for _, u := range usage {
		summary.TotalRequests += u.Requests
		summary.TotalFailures += u.Failures
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleUsage(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeStatsRead) {
		return
	}
	usage, err := s.usage.Usage(r.Context())
	if err != nil {
		s.logger.Error("Failed to query usage", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, usage)
}
