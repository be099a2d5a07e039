package sessions

import "time"

// Session represents one customer visit. Device and source are assigned
// when the session is created and never change for its lifetime.
type Session struct {
	ID        string `gorm:"primaryKey;size:36"`
	Device    string `gorm:"index;not null"`
	Source    string `gorm:"index;not null"`
	StartedAt time.Time
	CreatedAt time.Time `gorm:"index"`
}

// StageEvent represents one funnel event recorded during a session. Stage
// holds the 1-based funnel rank; Metadata carries optional JSON such as
// order_total on purchase events.
type StageEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"index:idx_session_timestamp;size:36;not null"`
	Stage     int       `gorm:"index;not null"`
	Timestamp time.Time `gorm:"index:idx_session_timestamp;not null"`
	Metadata  string    `gorm:"type:text"`
	CreatedAt time.Time
}
