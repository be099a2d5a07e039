package analytics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"funnelscope/internal/funnel"
	"funnelscope/internal/pkg/async"
	"funnelscope/internal/sessions"
)

// Segmentation axes
const (
	AxisDevice = "device"
	AxisSource = "source"
)

// FullReport bundles one analysis run: the global funnel report plus the
// per-device and per-source breakdowns, all computed from the same
// immutable journey snapshot.
type FullReport struct {
	Global      *funnel.FunnelReport            `json:"global"`
	ByDevice    map[string]*funnel.FunnelReport `json:"by_device"`
	BySource    map[string]*funnel.FunnelReport `json:"by_source"`
	Sessions    int64                           `json:"sessions"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// DeviceKey extracts a journey's device segment; sessions with an
// unrecognized device stay out of the device breakdown.
func DeviceKey(j funnel.Journey) (string, bool) {
	return j.Device, sessions.IsKnownDevice(j.Device)
}

// SourceKey extracts a journey's traffic source segment; sessions with an
// unrecognized source stay out of the source breakdown.
func SourceKey(j funnel.Journey) (string, bool) {
	return j.Source, sessions.IsKnownSource(j.Source)
}

// BuildReport loads the current snapshot and computes the global report
// and both segment breakdowns. The three computations are independent and
// run in parallel; each one reads the shared journey slice and returns
// fresh structures, so reruns over an unchanged snapshot are identical.
func BuildReport(ctx context.Context, db *gorm.DB, params ReportParams) (*FullReport, error) {
	journeys, err := sessions.LoadJourneys(db, params.TimeFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to load journeys: %w", err)
	}
	return ComputeFullReport(ctx, journeys)
}

// ComputeFullReport computes the global and per-axis reports over an
// already loaded snapshot.
func ComputeFullReport(ctx context.Context, journeys []funnel.Journey) (*FullReport, error) {
	const globalTask = "global"

	tasks := []async.Task{
		{
			Name: globalTask,
			Execute: func() (interface{}, error) {
				return funnel.ComputeMetrics(funnel.Aggregate(journeys))
			},
		},
		{
			Name: AxisDevice,
			Execute: func() (interface{}, error) {
				return funnel.SegmentReports(journeys, DeviceKey)
			},
		},
		{
			Name: AxisSource,
			Execute: func() (interface{}, error) {
				return funnel.SegmentReports(journeys, SourceKey)
			},
		},
	}

	pool := async.NewPool(len(tasks))
	results := pool.Execute(ctx, tasks)
	if len(results) != len(tasks) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("report computation cancelled: %w", err)
		}
		return nil, fmt.Errorf("report computation incomplete: got %d of %d results", len(results), len(tasks))
	}
	for name, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("failed to compute %s report: %w", name, result.Err)
		}
	}

	return &FullReport{
		Global:      results[globalTask].Data.(*funnel.FunnelReport),
		ByDevice:    results[AxisDevice].Data.(map[string]*funnel.FunnelReport),
		BySource:    results[AxisSource].Data.(map[string]*funnel.FunnelReport),
		Sessions:    int64(len(journeys)),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// AxisSegments picks one axis breakdown out of an already computed report.
func AxisSegments(report *FullReport, axis string) (map[string]*funnel.FunnelReport, error) {
	switch axis {
	case AxisDevice:
		return report.ByDevice, nil
	case AxisSource:
		return report.BySource, nil
	default:
		return nil, fmt.Errorf("unknown segmentation axis: %q", axis)
	}
}

// SegmentsByAxis returns the breakdown for one axis name, for callers that
// only need a single segmentation.
func SegmentsByAxis(db *gorm.DB, params ReportParams, axis string) (map[string]*funnel.FunnelReport, error) {
	var keyFn funnel.SegmentKeyFunc
	switch axis {
	case AxisDevice:
		keyFn = DeviceKey
	case AxisSource:
		keyFn = SourceKey
	default:
		return nil, fmt.Errorf("unknown segmentation axis: %q", axis)
	}

	journeys, err := sessions.LoadJourneys(db, params.TimeFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to load journeys: %w", err)
	}
	return funnel.SegmentReports(journeys, keyFn)
}
