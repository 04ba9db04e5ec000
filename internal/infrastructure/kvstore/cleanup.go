package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor abstracts ExecContext so the job accepts *sql.DB or *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob deletes expired kv_entries rows. TTL enforcement happens at read
// time; this job only reclaims dead rows so the table stays small. Idempotent.
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob creates the periodic reclaim job.
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{db: db, logger: logger}
}

// Run deletes every row whose expiry has passed.
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at <= NOW()`)
	if err != nil {
		return fmt.Errorf("cleanup expired entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cleanup rows affected: %w", err)
	}

	if j.logger != nil {
		j.logger.Info("kv cleanup finished",
			slog.Int64("deleted", deleted),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return nil
}

// RunEvery executes the job on an interval until the context is cancelled.
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && j.logger != nil {
				j.logger.Error("kv cleanup failed", "error", err)
			}
		}
	}
}
