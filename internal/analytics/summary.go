package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"funnelscope/internal/funnel"
	"funnelscope/internal/sessions"
)

// Summary holds the headline KPIs shown next to the funnel breakdown.
type Summary struct {
	TotalEvents       int64   `json:"total_events"`
	TotalSessions     int64   `json:"total_sessions"`
	FunnelEntries     int64   `json:"funnel_entries"`
	Purchases         int64   `json:"purchases"`
	OverallConversion float64 `json:"overall_conversion"`
	TotalRevenue      float64 `json:"total_revenue"`
	AverageOrderValue float64 `json:"average_order_value"`
}

// GetSummary computes the KPI summary. Funnel entries are sessions with at
// least one event in range; overall conversion is purchasing sessions over
// entries, 0 when there are no entries. Revenue comes from order_total in
// purchase event metadata.
func GetSummary(db *gorm.DB, params ReportParams) (*Summary, error) {
	tf := params.TimeFrame

	totalEvents, err := sessions.CountEvents(db, tf)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	totalSessions, err := sessions.CountSessions(db)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	entriesQuery := db.Model(&sessions.StageEvent{}).Distinct("session_id")
	if tf != nil {
		entriesQuery = entriesQuery.Where("timestamp BETWEEN ? AND ?", tf.From, tf.To)
	}
	var entries int64
	if err := entriesQuery.Count(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to count funnel entries: %w", err)
	}

	purchasesQuery := db.Model(&sessions.StageEvent{}).
		Distinct("session_id").
		Where("stage = ?", funnel.StagePurchase.Rank())
	if tf != nil {
		purchasesQuery = purchasesQuery.Where("timestamp BETWEEN ? AND ?", tf.From, tf.To)
	}
	var purchases int64
	if err := purchasesQuery.Count(&purchases).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}

	revenue, err := purchaseRevenue(db, params)
	if err != nil {
		return nil, err
	}

	overallConversion := 0.0
	if entries > 0 {
		overallConversion = float64(purchases) / float64(entries)
	}

	averageOrderValue := 0.0
	if purchases > 0 {
		averageOrderValue = revenue / float64(purchases)
	}

	return &Summary{
		TotalEvents:       totalEvents,
		TotalSessions:     totalSessions,
		FunnelEntries:     entries,
		Purchases:         purchases,
		OverallConversion: overallConversion,
		TotalRevenue:      revenue,
		AverageOrderValue: averageOrderValue,
	}, nil
}

// purchaseRevenue sums order_total across purchase events with valid JSON
// metadata.
func purchaseRevenue(db *gorm.DB, params ReportParams) (float64, error) {
	var result struct {
		TotalRevenue float64
	}

	query := `
		SELECT
			COALESCE(SUM(
				CASE
					WHEN json_valid(metadata) = 1 AND json_extract(metadata, '$.order_total') IS NOT NULL
					THEN CAST(json_extract(metadata, '$.order_total') AS REAL)
					ELSE 0
				END
			), 0) AS total_revenue
		FROM stage_events
		WHERE stage = ?
	`
	args := []interface{}{funnel.StagePurchase.Rank()}
	if params.TimeFrame != nil {
		query += " AND timestamp BETWEEN ? AND ?"
		args = append(args, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC())
	}

	if err := db.Raw(query, args...).Scan(&result).Error; err != nil {
		return 0, fmt.Errorf("error calculating purchase revenue: %w", err)
	}

	return result.TotalRevenue, nil
}
