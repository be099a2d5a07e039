package jobs

import (
	"log/slog"
	"time"

	"funnelscope/internal/config"
	"funnelscope/internal/database"
	"funnelscope/internal/sessions"
)

// CleanupJob handles cleanup of stage events past the retention window
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes stage events older than the retention period, then drops
// sessions left with no events at all. This keeps storage bounded and the
// recompute snapshot focused on recent traffic.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.EventsRetentionDays
	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old stage events",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	// Delete in batches to avoid locking the database for too long
	deleted, err := sessions.DeleteEventsBefore(db, cutoffDate, 1000)
	if err != nil {
		j.logger.Error("Failed to delete old stage events",
			slog.Any("error", err),
			slog.Int64("deleted_so_far", deleted))
		return err
	}

	if deleted == 0 {
		j.logger.Debug("No old stage events to clean up")
		return nil
	}

	// Sessions stripped of every event carry no funnel signal anymore
	withEvents := db.Model(&sessions.StageEvent{}).Select("DISTINCT session_id")
	result := db.Where("started_at < ? AND id NOT IN (?)", cutoffDate, withEvents).
		Delete(&sessions.Session{})
	if result.Error != nil {
		j.logger.Error("Failed to delete orphaned sessions", slog.Any("error", result.Error))
		return result.Error
	}

	j.logger.Info("Cleaned up old stage events",
		slog.Int64("deleted_events", deleted),
		slog.Int64("deleted_sessions", result.RowsAffected),
		slog.Int("retention_days", retentionDays))

	return nil
}
