package repository

import (
	"database/sql"
	"fmt"

	"github.com/iampjeetsingh/TLE/internal/models"
	"github.com/iampjeetsingh/TLE/pkg/database"
)

type DuelRepository struct {
	db *database.DB
}

func NewDuelRepository(db *database.DB) *DuelRepository {
	return &DuelRepository{db: db}
}

// AppendHistory 종료된 듀얼을 히스토리에 기록 (append-only)
func (r *DuelRepository) AppendHistory(duel *models.Duel) error {
	query := `
		INSERT INTO duels (
			id, challenger_id, challenged_id,
			problem_id, problem_name, problem_rating, problem_url,
			status, is_rated, winner_id,
			challenger_delta, challenged_delta,
			created_at, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`

	var problemID, problemName, problemURL *string
	var problemRating *int
	if duel.Problem != nil {
		problemID = &duel.Problem.ID
		problemName = &duel.Problem.Name
		problemRating = &duel.Problem.Rating
		problemURL = &duel.Problem.URL
	}

	_, err := r.db.Exec(query,
		duel.ID,
		duel.ChallengerID,
		duel.ChallengedID,
		problemID,
		problemName,
		problemRating,
		problemURL,
		duel.Status,
		duel.IsRated,
		duel.WinnerID,
		duel.ChallengerDelta,
		duel.ChallengedDelta,
		duel.CreatedAt,
		duel.StartedAt,
		duel.FinishedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append duel history: %w", err)
	}

	return nil
}

// HistoryByUser 사용자가 참가한 종료 듀얼 조회 (최신순)
func (r *DuelRepository) HistoryByUser(userID string, limit int) ([]models.Duel, error) {
	query := `
		SELECT id, challenger_id, challenged_id,
		       problem_id, problem_name, problem_rating, problem_url,
		       status, is_rated, winner_id,
		       challenger_delta, challenged_delta,
		       created_at, started_at, finished_at
		FROM duels
		WHERE challenger_id = $1 OR challenged_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query duel history: %w", err)
	}
	defer rows.Close()

	duels := []models.Duel{}
	for rows.Next() {
		var duel models.Duel
		var problemID, problemName, problemURL sql.NullString
		var problemRating sql.NullInt64

		if err := rows.Scan(
			&duel.ID,
			&duel.ChallengerID,
			&duel.ChallengedID,
			&problemID,
			&problemName,
			&problemRating,
			&problemURL,
			&duel.Status,
			&duel.IsRated,
			&duel.WinnerID,
			&duel.ChallengerDelta,
			&duel.ChallengedDelta,
			&duel.CreatedAt,
			&duel.StartedAt,
			&duel.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan duel row: %w", err)
		}

		if problemID.Valid {
			duel.Problem = &models.Problem{
				ID:     problemID.String,
				Name:   problemName.String,
				Rating: int(problemRating.Int64),
				URL:    problemURL.String,
			}
		}

		duels = append(duels, duel)
	}

	return duels, rows.Err()
}
