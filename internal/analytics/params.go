package analytics

import (
	"funnelscope/internal/timeframe"
)

// ReportParams contains common parameters for report queries. A nil
// TimeFrame means the whole stored snapshot.
type ReportParams struct {
	TimeFrame *timeframe.TimeFrame
}

// NewReportParams creates report params for the given time frame; pass nil
// for an all-time report.
func NewReportParams(tf *timeframe.TimeFrame) ReportParams {
	return ReportParams{TimeFrame: tf}
}
