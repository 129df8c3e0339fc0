package repository

import (
	"database/sql"
	"fmt"

	"github.com/iampjeetsingh/TLE/internal/models"
	"github.com/iampjeetsingh/TLE/pkg/database"
)

type RatingRepository struct {
	db   *database.DB
	seed int
}

func NewRatingRepository(db *database.DB, seed int) *RatingRepository {
	return &RatingRepository{db: db, seed: seed}
}

// GetRating 사용자 듀얼 레이팅 조회 (기록이 없으면 시드 레이팅 반환)
func (r *RatingRepository) GetRating(userID string) (*models.DuelRating, error) {
	query := `
		SELECT user_id, rating, duels_played, wins, losses, draws, updated_at
		FROM duel_ratings
		WHERE user_id = $1
	`

	rating := &models.DuelRating{}
	err := r.db.QueryRow(query, userID).Scan(
		&rating.UserID,
		&rating.Rating,
		&rating.DuelsPlayed,
		&rating.Wins,
		&rating.Losses,
		&rating.Draws,
		&rating.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		// 아직 듀얼한 적 없는 사용자
		return &models.DuelRating{UserID: userID, Rating: r.seed}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}

	return rating, nil
}

// SetRatings 두 참가자의 레이팅과 전적을 하나의 트랜잭션으로 갱신
func (r *RatingRepository) SetRatings(challenger, challenged *models.DuelRating) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO duel_ratings (user_id, rating, duels_played, wins, losses, draws, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET rating = $2, duels_played = $3, wins = $4, losses = $5, draws = $6, updated_at = NOW()
	`

	for _, rating := range []*models.DuelRating{challenger, challenged} {
		if _, err := tx.Exec(query,
			rating.UserID,
			rating.Rating,
			rating.DuelsPlayed,
			rating.Wins,
			rating.Losses,
			rating.Draws,
		); err != nil {
			return fmt.Errorf("failed to set rating for %s: %w", rating.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ratings: %w", err)
	}

	return nil
}

// Leaderboard 레이팅 상위 사용자 조회
func (r *RatingRepository) Leaderboard(limit int) ([]models.DuelRating, error) {
	query := `
		SELECT user_id, rating, duels_played, wins, losses, draws, updated_at
		FROM duel_ratings
		ORDER BY rating DESC, duels_played DESC
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	ratings := []models.DuelRating{}
	for rows.Next() {
		var rating models.DuelRating
		if err := rows.Scan(
			&rating.UserID,
			&rating.Rating,
			&rating.DuelsPlayed,
			&rating.Wins,
			&rating.Losses,
			&rating.Draws,
			&rating.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		ratings = append(ratings, rating)
	}

	return ratings, rows.Err()
}
