package sessions

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"funnelscope/internal/funnel"
	"funnelscope/internal/timeframe"
)

// LoadJourneys builds the immutable engine input from the current snapshot.
// Every stored session appears exactly once; a nil time frame loads all
// events, otherwise only events inside the frame count toward reach. The
// result is ordered by session ID so repeated loads over an unchanged
// snapshot are identical.
func LoadJourneys(db *gorm.DB, tf *timeframe.TimeFrame) ([]funnel.Journey, error) {
	var storedSessions []Session
	if err := db.Order("id").Find(&storedSessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	type eventRow struct {
		SessionID string
		Stage     int
	}
	query := db.Model(&StageEvent{}).Select("session_id", "stage")
	if tf != nil {
		query = query.Where("timestamp BETWEEN ? AND ?", tf.From, tf.To)
	}
	var rows []eventRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load stage events: %w", err)
	}

	stagesBySession := make(map[string][]funnel.Stage, len(storedSessions))
	for _, row := range rows {
		stage, ok := funnel.StageFromRank(row.Stage)
		if !ok {
			// Collection rejects these, so an out-of-range rank can only
			// come from outside writers. Skip it; reach ignores it anyway.
			continue
		}
		stagesBySession[row.SessionID] = append(stagesBySession[row.SessionID], stage)
	}

	journeys := make([]funnel.Journey, 0, len(storedSessions))
	for _, s := range storedSessions {
		journeys = append(journeys, funnel.Journey{
			SessionID: s.ID,
			Device:    s.Device,
			Source:    s.Source,
			Stages:    stagesBySession[s.ID],
		})
	}
	return journeys, nil
}

// CountSessions returns the number of stored sessions.
func CountSessions(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&Session{}).Count(&count).Error
	return count, err
}

// CountEvents returns the number of stage events, optionally restricted to
// a time frame.
func CountEvents(db *gorm.DB, tf *timeframe.TimeFrame) (int64, error) {
	query := db.Model(&StageEvent{})
	if tf != nil {
		query = query.Where("timestamp BETWEEN ? AND ?", tf.From, tf.To)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// DeleteEventsBefore removes stage events older than the cutoff in batches
// of batchSize, returning the number of rows deleted. Batched deletes keep
// individual write transactions short.
func DeleteEventsBefore(db *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
	totalDeleted := int64(0)
	for {
		result := db.Where("timestamp < ?", cutoff).
			Limit(batchSize).
			Delete(&StageEvent{})
		if result.Error != nil {
			return totalDeleted, result.Error
		}
		totalDeleted += result.RowsAffected
		if result.RowsAffected < int64(batchSize) {
			break
		}
	}
	return totalDeleted, nil
}

// Reset drops all stored sessions and events. Used by the CLI reset
// command.
func Reset(db *gorm.DB) error {
	if err := db.Where("1 = 1").Delete(&StageEvent{}).Error; err != nil {
		return fmt.Errorf("failed to delete stage events: %w", err)
	}
	if err := db.Where("1 = 1").Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
