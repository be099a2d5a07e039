package timeframe

import (
	"fmt"
	"time"
)

// TimeFrame represents a period between two points in time, stored in UTC.
// A nil *TimeFrame means "all time" everywhere one is accepted.
type TimeFrame struct {
	From time.Time
	To   time.Time
}

// NewTimeFrame builds a validated time frame.
func NewTimeFrame(from, to time.Time) (*TimeFrame, error) {
	if from.After(to) {
		return nil, fmt.Errorf("fromTime must be before toTime")
	}
	return &TimeFrame{From: from.UTC(), To: to.UTC()}, nil
}

// Contains reports whether t falls inside the frame, boundaries included.
func (tf *TimeFrame) Contains(t time.Time) bool {
	return !t.Before(tf.From) && !t.After(tf.To)
}

// Duration returns the length of the frame.
func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// LastDays returns a frame covering the n days ending at now.
func LastDays(n int, now time.Time) *TimeFrame {
	now = now.UTC()
	return &TimeFrame{From: now.AddDate(0, 0, -n), To: now}
}
