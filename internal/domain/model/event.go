// Package model contains domain models passed between layers.
package model

import "time"

// ScoreTypeCommunityGame tags points awarded for playing the event's game.
const ScoreTypeCommunityGame = "COMMUNITY_GAME"

// Lan is a LAN party. Reconciliation runs for every active LAN.
type Lan struct {
	ID     int64  `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null" json:"name"`
	Active bool   `gorm:"not null;default:false;index" json:"active"`
}

// Attendee links a user to a LAN.
type Attendee struct {
	ID     int64 `gorm:"primaryKey"`
	LanID  int64 `gorm:"not null;uniqueIndex:idx_attendee_lan_user"`
	UserID int64 `gorm:"not null;uniqueIndex:idx_attendee_lan_user"`
}

// Event is a scheduled activity. Only events linked to a game take part in
// community scoring.
type Event struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	LanID           int64      `gorm:"not null;index" json:"lan_id"`
	Name            string     `json:"name"`
	GameID          *int64     `gorm:"index" json:"game_id,omitempty"`
	StartTime       time.Time  `gorm:"not null" json:"start_time"`
	DurationMinutes int        `gorm:"not null" json:"duration_minutes"`
	Points          int        `gorm:"not null;default:0" json:"points"`
	IsProcessed     bool       `gorm:"not null;default:false" json:"is_processed"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	Timeslots       []Timeslot `gorm:"foreignKey:EventID" json:"timeslots,omitempty"`
}

// Duration returns the scheduled length of the event.
func (e *Event) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// End returns the scheduled end of the event, ignoring cancellation.
func (e *Event) End() time.Time {
	return e.StartTime.Add(e.Duration())
}

// HasGame reports whether the event is linked to a game.
func (e *Event) HasGame() bool {
	return e.GameID != nil
}

// Timeslot is a fixed-width subdivision of an event's elapsed duration.
type Timeslot struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	EventID     int64     `gorm:"not null;uniqueIndex:idx_timeslot_event_time" json:"event_id"`
	Time        time.Time `gorm:"not null;uniqueIndex:idx_timeslot_event_time" json:"time"`
	IsProcessed bool      `gorm:"not null;default:false" json:"is_processed"`
}

// GameActivity is an observed interval of a user playing a game.
// A nil EndedAt means the session is still running.
type GameActivity struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	GameID    int64      `gorm:"not null;index" json:"game_id"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Score is an awarded-points record. At most one exists per (timeslot, user).
type Score struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	EventID    int64     `gorm:"not null;index" json:"event_id"`
	TimeslotID int64     `gorm:"not null;uniqueIndex:idx_score_timeslot_user" json:"timeslot_id"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_score_timeslot_user" json:"user_id"`
	LanID      int64     `gorm:"not null;index" json:"lan_id"`
	Points     int       `gorm:"not null" json:"points"`
	Type       string    `gorm:"not null" json:"type"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// ScoreBatch is the set of scores created by one reconciliation pass.
type ScoreBatch struct {
	PassID string    `json:"pass_id"`
	Scores []Score   `json:"scores"`
	SentAt time.Time `json:"sent_at"`
}
