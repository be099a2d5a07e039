package timeframe

import (
	"fmt"
	"time"
)

// ParserParams carries the raw from/to values taken from a request.
type ParserParams struct {
	FromDate string
	ToDate   string
}

// TimeProvider abstracts the clock so parsing is testable.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// Parser turns raw from/to date strings into a TimeFrame.
type Parser struct {
	timeProvider TimeProvider
}

func NewParser(timeProvider ...TimeProvider) *Parser {
	var provider TimeProvider = DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Parser{timeProvider: provider}
}

// Parse builds a time frame from date strings in 2006-01-02 form. Both
// empty means no filter and returns nil. A missing from opens the frame at
// the beginning of history; a missing to closes it at the current moment.
// End dates extend to the end of their day so a single-day range covers the
// whole day.
func (p *Parser) Parse(params ParserParams) (*TimeFrame, error) {
	if params.FromDate == "" && params.ToDate == "" {
		return nil, nil
	}

	from := time.Time{}
	if params.FromDate != "" {
		parsed, err := time.Parse("2006-01-02", params.FromDate)
		if err != nil {
			return nil, fmt.Errorf("invalid 'from' date: %w", err)
		}
		from = parsed
	}

	to := p.timeProvider.Now()
	if params.ToDate != "" {
		parsed, err := time.Parse("2006-01-02", params.ToDate)
		if err != nil {
			return nil, fmt.Errorf("invalid 'to' date: %w", err)
		}
		to = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 999999999, time.UTC)
	}

	return NewTimeFrame(from, to)
}
