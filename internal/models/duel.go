package models

import "time"

type DuelStatus string

const (
	DuelStatusPending     DuelStatus = "pending"
	DuelStatusOngoing     DuelStatus = "ongoing"
	DuelStatusComplete    DuelStatus = "complete"
	DuelStatusDraw        DuelStatus = "draw"
	DuelStatusDeclined    DuelStatus = "declined"
	DuelStatusExpired     DuelStatus = "expired"
	DuelStatusInvalidated DuelStatus = "invalidated"
)

// IsTerminal 종료 상태 여부 확인
func (s DuelStatus) IsTerminal() bool {
	switch s {
	case DuelStatusComplete, DuelStatusDraw, DuelStatusDeclined, DuelStatusExpired, DuelStatusInvalidated:
		return true
	}
	return false
}

type Duel struct {
	ID              string      `json:"id" db:"id"`
	ChallengerID    string      `json:"challengerId" db:"challenger_id"`
	ChallengedID    string      `json:"challengedId" db:"challenged_id"`
	Problem         *Problem    `json:"problem,omitempty"`
	Status          DuelStatus  `json:"status" db:"status"`
	IsRated         bool        `json:"isRated" db:"is_rated"`
	WinnerID        *string     `json:"winnerId,omitempty" db:"winner_id"`
	ChallengerDelta *int        `json:"challengerDelta,omitempty" db:"challenger_delta"`
	ChallengedDelta *int        `json:"challengedDelta,omitempty" db:"challenged_delta"`
	CreatedAt       time.Time   `json:"createdAt" db:"created_at"`
	AcceptBy        time.Time   `json:"acceptBy" db:"accept_by"`
	StartedAt       *time.Time  `json:"startedAt,omitempty" db:"started_at"`
	FinishesAt      *time.Time  `json:"finishesAt,omitempty" db:"finishes_at"`
	FinishedAt      *time.Time  `json:"finishedAt,omitempty" db:"finished_at"`
}

// Participants 듀얼 참가자 ID 목록
func (d *Duel) Participants() []string {
	return []string{d.ChallengerID, d.ChallengedID}
}

// Opponent returns the other participant, or "" when userID is not in the duel.
func (d *Duel) Opponent(userID string) string {
	switch userID {
	case d.ChallengerID:
		return d.ChallengedID
	case d.ChallengedID:
		return d.ChallengerID
	}
	return ""
}

type ChallengeRequest struct {
	ChallengedID string `json:"challengedId" binding:"required"`
	IsRated      bool   `json:"isRated"`
}
