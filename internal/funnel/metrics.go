package funnel

import (
	"fmt"
	"sort"
)

// Severity classifies how badly a transition leaks sessions.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Drop-off fractions above these thresholds mark a transition as a high or
// medium severity bottleneck.
const (
	highDropoffThreshold   = 0.30
	mediumDropoffThreshold = 0.15
)

// StageMetric is one row of the per-stage report.
type StageMetric struct {
	Stage          string  `json:"stage"`
	Rank           int     `json:"rank"`
	Count          int64   `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Transition describes session loss between two adjacent stages.
type Transition struct {
	From         string   `json:"from"`
	To           string   `json:"to"`
	FromRank     int      `json:"from_rank"`
	DropoffRate  float64  `json:"dropoff_rate"`
	SessionsLost int64    `json:"sessions_lost"`
	Severity     Severity `json:"severity"`
}

// FunnelReport is the full output of one analysis run: per-stage counts and
// conversion rates, per-transition drop-off, and the bottleneck ranking.
// Reports are fresh structures on every run and never mutated afterwards.
type FunnelReport struct {
	Stages      []StageMetric `json:"stages"`
	Transitions []Transition  `json:"transitions"`
	Bottlenecks []Transition  `json:"bottlenecks"`
}

// CorruptCountsError reports a later stage count exceeding an earlier one.
// Aggregation cannot produce that shape, so it signals corrupted counts
// rather than a data-quality problem, and is never clamped away.
type CorruptCountsError struct {
	Stage     Stage
	NextStage Stage
	Count     int64
	NextCount int64
}

func (e *CorruptCountsError) Error() string {
	return fmt.Sprintf("corrupt stage counts: %q has %d sessions but later stage %q has %d",
		e.Stage.Label(), e.Count, e.NextStage.Label(), e.NextCount)
}

// NewCorruptCountsError creates a new CorruptCountsError for the transition
// between adjacent stages from and from+1.
func NewCorruptCountsError(from Stage, count, nextCount int64) *CorruptCountsError {
	return &CorruptCountsError{
		Stage:     from,
		NextStage: from + 1,
		Count:     count,
		NextCount: nextCount,
	}
}

// ComputeMetrics derives the full report from cumulative stage counts.
//
// Zero denominators are not errors: conversion is 0 when stage 1 is empty
// and drop-off is 0 from an empty stage, so an empty snapshot yields a
// valid all-zero report with no bottleneck ranking. A count that grows
// between adjacent stages fails with CorruptCountsError before any rate is
// computed.
func ComputeMetrics(counts StageCounts) (*FunnelReport, error) {
	for i := 0; i < NumStages-1; i++ {
		if counts[i+1] > counts[i] {
			return nil, NewCorruptCountsError(Stage(i+1), counts[i], counts[i+1])
		}
	}

	report := &FunnelReport{
		Stages:      make([]StageMetric, 0, NumStages),
		Transitions: make([]Transition, 0, NumStages-1),
		Bottlenecks: []Transition{},
	}

	base := counts[0]
	for i, stage := range Stages() {
		rate := 0.0
		if base > 0 {
			rate = clampRate(float64(counts[i]) / float64(base))
		}
		report.Stages = append(report.Stages, StageMetric{
			Stage:          stage.Label(),
			Rank:           stage.Rank(),
			Count:          counts[i],
			ConversionRate: rate,
		})
	}

	for i := 0; i < NumStages-1; i++ {
		drop := 0.0
		if counts[i] > 0 {
			drop = clampRate(1 - float64(counts[i+1])/float64(counts[i]))
		}
		from := Stage(i + 1)
		report.Transitions = append(report.Transitions, Transition{
			From:         from.Label(),
			To:           (from + 1).Label(),
			FromRank:     from.Rank(),
			DropoffRate:  drop,
			SessionsLost: counts[i] - counts[i+1],
			Severity:     severityFor(drop),
		})
	}

	if base > 0 {
		report.Bottlenecks = rankBottlenecks(report.Transitions)
	}

	return report, nil
}

func severityFor(dropoff float64) Severity {
	switch {
	case dropoff > highDropoffThreshold:
		return SeverityHigh
	case dropoff > mediumDropoffThreshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}

// rankBottlenecks orders transitions by descending drop-off. The sort is
// stable over an input already in stage order, so equal rates keep the
// earlier transition first; early losses cost the most traffic.
func rankBottlenecks(transitions []Transition) []Transition {
	ranked := make([]Transition, len(transitions))
	copy(ranked, transitions)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].DropoffRate > ranked[b].DropoffRate
	})
	return ranked
}
