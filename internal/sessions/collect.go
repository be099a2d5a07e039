package sessions

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"funnelscope/internal/funnel"
)

// CollectEventInput defines one funnel event submitted for collection.
// Stage carries the machine key, e.g. "add_to_cart".
type CollectEventInput struct {
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

// CollectSessionInput defines one session and its events submitted for
// collection.
type CollectSessionInput struct {
	SessionID string              `json:"session_id"`
	Device    string              `json:"device"`
	Source    string              `json:"source"`
	StartedAt time.Time           `json:"started_at"`
	Events    []CollectEventInput `json:"events"`
}

// UnknownStageError reports a collection payload naming a stage outside the
// funnel vocabulary. The whole batch is rejected so producers notice broken
// instrumentation instead of silently losing events.
type UnknownStageError struct {
	SessionID string
	Stage     string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown funnel stage %q in session %s", e.Stage, e.SessionID)
}

// NewUnknownStageError creates a new UnknownStageError.
func NewUnknownStageError(sessionID, stage string) *UnknownStageError {
	return &UnknownStageError{SessionID: sessionID, Stage: stage}
}

// Batch holds validated, storable records built from collection inputs.
type Batch struct {
	Sessions []*Session
	Events   []StageEvent
}

// BuildBatch validates and normalizes collection inputs into storable
// records. Unrecognized device or source values are kept as sentinels and
// logged as data-quality warnings; an unknown stage key fails the batch.
func BuildBatch(logger *slog.Logger, inputs []CollectSessionInput) (*Batch, error) {
	batch := &Batch{
		Sessions: make([]*Session, 0, len(inputs)),
	}

	for _, input := range inputs {
		sessionID := input.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		device := NormalizeDevice(input.Device)
		if device == UnknownDevice {
			logger.Warn("Unrecognized device category",
				slog.String("session_id", sessionID),
				slog.String("device", input.Device))
		}
		source := NormalizeSource(input.Source)
		if source == UnknownSource {
			logger.Warn("Unrecognized traffic source",
				slog.String("session_id", sessionID),
				slog.String("source", input.Source))
		}

		startedAt := input.StartedAt
		events := make([]StageEvent, 0, len(input.Events))
		for _, ev := range input.Events {
			stage, ok := funnel.StageFromKey(ev.Stage)
			if !ok {
				return nil, NewUnknownStageError(sessionID, ev.Stage)
			}
			ts := ev.Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			if startedAt.IsZero() || ts.Before(startedAt) {
				startedAt = ts
			}
			events = append(events, StageEvent{
				SessionID: sessionID,
				Stage:     stage.Rank(),
				Timestamp: ts,
				Metadata:  ev.Metadata,
			})
		}
		if startedAt.IsZero() {
			startedAt = time.Now().UTC()
		}

		batch.Sessions = append(batch.Sessions, &Session{
			ID:        sessionID,
			Device:    device,
			Source:    source,
			StartedAt: startedAt,
		})
		batch.Events = append(batch.Events, events...)
	}

	return batch, nil
}

// InsertBatch persists a validated batch inside the caller's transaction.
func InsertBatch(tx *gorm.DB, batch *Batch) error {
	if len(batch.Sessions) > 0 {
		if err := tx.Create(batch.Sessions).Error; err != nil {
			return fmt.Errorf("failed to insert sessions: %w", err)
		}
	}
	if len(batch.Events) > 0 {
		if err := tx.Create(batch.Events).Error; err != nil {
			return fmt.Errorf("failed to insert stage events: %w", err)
		}
	}
	return nil
}
