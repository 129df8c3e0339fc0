package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iampjeetsingh/TLE/pkg/logger"
	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

// Connect 데이터베이스 연결
func Connect(databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 연결 풀 설정
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 연결 테스트
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected successfully")

	return &DB{db}, nil
}

// Migrate 듀얼 엔진 테이블 생성 (존재하지 않는 경우)
func (db *DB) Migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS duel_ratings (
			user_id      TEXT PRIMARY KEY,
			rating       INTEGER NOT NULL,
			duels_played INTEGER NOT NULL DEFAULT 0,
			wins         INTEGER NOT NULL DEFAULT 0,
			losses       INTEGER NOT NULL DEFAULT 0,
			draws        INTEGER NOT NULL DEFAULT 0,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS duels (
			id               TEXT PRIMARY KEY,
			challenger_id    TEXT NOT NULL,
			challenged_id    TEXT NOT NULL,
			problem_id       TEXT,
			problem_name     TEXT,
			problem_rating   INTEGER,
			problem_url      TEXT,
			status           TEXT NOT NULL,
			is_rated         BOOLEAN NOT NULL,
			winner_id        TEXT,
			challenger_delta INTEGER,
			challenged_delta INTEGER,
			created_at       TIMESTAMPTZ NOT NULL,
			started_at       TIMESTAMPTZ,
			finished_at      TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_duels_challenger ON duels (challenger_id);
		CREATE INDEX IF NOT EXISTS idx_duels_challenged ON duels (challenged_id);
		CREATE INDEX IF NOT EXISTS idx_duel_ratings_rating ON duel_ratings (rating DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close 데이터베이스 연결 종료
func (db *DB) Close() error {
	return db.DB.Close()
}
