package v1

import (
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"funnelscope/internal/database"
	"funnelscope/internal/funnel"
	"funnelscope/internal/jobs"
	"funnelscope/internal/sessions"
)

const (
	msgSessionsAdded  = "Sessions added successfully"
	errInvalidRequest = "Invalid request"
)

// CreateSessionsParams is the POST /api/v1/sessions payload: a batch of
// sessions with their funnel events.
type CreateSessionsParams struct {
	Sessions []sessions.CollectSessionInput `json:"sessions"`
}

// CreateSessionsHandler ingests a batch of sessions and their stage events.
// The whole batch is stored in one transaction; a payload naming an unknown
// funnel stage rejects the batch. A successful store triggers a cached
// report refresh in the background.
func CreateSessionsHandler(db *gorm.DB, scheduler *jobs.Scheduler, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logger.Info("Received collection request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()))

		var params CreateSessionsParams
		if err := c.BodyParser(&params); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": errInvalidRequest,
			})
		}
		if len(params.Sessions) == 0 {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "No sessions in payload",
			})
		}

		batch, err := sessions.BuildBatch(logger, params.Sessions)
		if err != nil {
			var unknownStage *sessions.UnknownStageError
			if errors.As(err, &unknownStage) {
				return c.Status(http.StatusBadRequest).JSON(fiber.Map{
					"error": unknownStage.Error(),
					"code":  "UNKNOWN_STAGE",
				})
			}
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": errInvalidRequest,
			})
		}

		err = database.PerformWrite(logger, db, func(tx *gorm.DB) error {
			return sessions.InsertBatch(tx, batch)
		})
		if err != nil {
			logger.Error("Failed to store session batch", slog.Any("error", err))
			if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
				return c.Status(599).JSON(fiber.Map{}) // custom status code
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to store sessions",
				"code":  "COLLECTION_ERROR",
			})
		}

		logger.Info("Collected session batch",
			slog.Int("sessions", len(batch.Sessions)),
			slog.Int("events", len(batch.Events)))

		if scheduler != nil {
			go func() {
				if err := scheduler.Recompute(); err != nil {
					logger.Error("Post-collection recompute failed", slog.Any("error", err))
				}
			}()
		}

		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"message":  msgSessionsAdded,
			"status":   http.StatusAccepted,
			"sessions": len(batch.Sessions),
			"events":   len(batch.Events),
		})
	}
}

func handleError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	var corrupt *funnel.CorruptCountsError
	if errors.As(err, &corrupt) {
		logger.Error("Funnel counts corrupted", slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Funnel counts corrupted",
			"code":  "CORRUPT_COUNTS",
		})
	}

	logger.Error("Failed to build report", slog.Any("error", err))
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to build report",
		"code":  "REPORT_ERROR",
	})
}
