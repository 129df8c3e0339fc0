package models

import "time"

// DuelRating 사용자별 듀얼 레이팅 및 전적
type DuelRating struct {
	UserID      string    `json:"userId" db:"user_id"`
	Rating      int       `json:"rating" db:"rating"`
	DuelsPlayed int       `json:"duelsPlayed" db:"duels_played"`
	Wins        int       `json:"wins" db:"wins"`
	Losses      int       `json:"losses" db:"losses"`
	Draws       int       `json:"draws" db:"draws"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
