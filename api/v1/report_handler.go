package v1

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"funnelscope/internal/analytics"
	"funnelscope/internal/funnel"
	"funnelscope/internal/jobs"
	"funnelscope/internal/timeframe"
)

// FunnelResponse is the GET /api/v1/funnel payload: the global funnel
// report plus snapshot metadata.
type FunnelResponse struct {
	Stages      []funnel.StageMetric `json:"stages"`
	Transitions []funnel.Transition  `json:"transitions"`
	Bottlenecks []funnel.Transition  `json:"bottlenecks"`
	Sessions    int64                `json:"sessions"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// SegmentsResponse is the GET /api/v1/funnel/segments payload.
type SegmentsResponse struct {
	Axis        string                          `json:"axis"`
	Segments    map[string]*funnel.FunnelReport `json:"segments"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// BottlenecksResponse is the GET /api/v1/bottlenecks payload: transitions
// ranked by drop-off, worst first.
type BottlenecksResponse struct {
	Bottlenecks []funnel.Transition `json:"bottlenecks"`
	Sessions    int64               `json:"sessions"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// GetFunnelHandler serves the global funnel report. Requests without a
// time filter are answered from the scheduler's cached report when one is
// available; everything else is computed from the live snapshot.
func GetFunnelHandler(db *gorm.DB, scheduler *jobs.Scheduler, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := resolveReport(c, db, scheduler)
		if err != nil {
			return handleError(c, logger, err)
		}

		return c.JSON(FunnelResponse{
			Stages:      report.Global.Stages,
			Transitions: report.Global.Transitions,
			Bottlenecks: report.Global.Bottlenecks,
			Sessions:    report.Sessions,
			GeneratedAt: report.GeneratedAt,
		})
	}
}

// GetSegmentsHandler serves the per-device or per-source breakdown,
// selected with the by query param.
func GetSegmentsHandler(db *gorm.DB, scheduler *jobs.Scheduler, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		axis := c.Query("by", analytics.AxisDevice)

		report, err := resolveReport(c, db, scheduler)
		if err != nil {
			return handleError(c, logger, err)
		}

		segments, err := analytics.AxisSegments(report, axis)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
				"code":  "UNKNOWN_AXIS",
			})
		}

		return c.JSON(SegmentsResponse{
			Axis:        axis,
			Segments:    segments,
			GeneratedAt: report.GeneratedAt,
		})
	}
}

// GetBottlenecksHandler serves just the ranked bottleneck list.
func GetBottlenecksHandler(db *gorm.DB, scheduler *jobs.Scheduler, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := resolveReport(c, db, scheduler)
		if err != nil {
			return handleError(c, logger, err)
		}

		return c.JSON(BottlenecksResponse{
			Bottlenecks: report.Global.Bottlenecks,
			Sessions:    report.Sessions,
			GeneratedAt: report.GeneratedAt,
		})
	}
}

// GetSummaryHandler serves the headline KPIs for the requested range.
func GetSummaryHandler(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tf, err := parseTimeFrame(c)
		if err != nil {
			return handleError(c, logger, err)
		}

		summary, err := analytics.GetSummary(db, analytics.NewReportParams(tf))
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(summary)
	}
}

func parseTimeFrame(c *fiber.Ctx) (*timeframe.TimeFrame, error) {
	tf, err := timeframe.NewParser().Parse(timeframe.ParserParams{
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
	})
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return tf, nil
}

// resolveReport picks the cached report for unfiltered requests and falls
// back to computing one from the current snapshot.
func resolveReport(c *fiber.Ctx, db *gorm.DB, scheduler *jobs.Scheduler) (*analytics.FullReport, error) {
	tf, err := parseTimeFrame(c)
	if err != nil {
		return nil, err
	}

	if tf == nil && scheduler != nil {
		if report, ok := scheduler.LatestReport(); ok {
			return report, nil
		}
	}
	return analytics.BuildReport(c.UserContext(), db, analytics.NewReportParams(tf))
}
