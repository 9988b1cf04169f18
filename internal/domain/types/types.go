// Package types contains common types used across the application
package types

// Entry represents a community leaderboard entry
type Entry struct {
	Rank   int   `json:"rank"`
	UserID int64 `json:"user_id"`
	Points int64 `json:"points"`
}
