package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/iampjeetsingh/TLE/internal/models"
	"go.uber.org/zap"
)

// ProblemCatalog 저지의 문제 카탈로그 (외부 협력자)
type ProblemCatalog interface {
	QueryProblems(ctx context.Context, minRating, maxRating int, excludeIDs map[string]struct{}) ([]models.Problem, error)
	HasSolved(ctx context.Context, userID, problemID string) (bool, error)
}

// ProblemUsageStore 페어별 최근 출제 문제 집합
type ProblemUsageStore interface {
	UsedProblems(ctx context.Context, userA, userB string) (map[string]struct{}, error)
	MarkUsed(ctx context.Context, userA, userB, problemID string) error
}

// SelectorService 듀얼 문제 선택 서비스
type SelectorService struct {
	catalog ProblemCatalog
	usage   ProblemUsageStore
	logger  *zap.Logger

	bucket       int
	spread       int
	widenStep    int
	maxWidenings int

	// injected so tests can run deterministically
	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewSelectorService(
	catalog ProblemCatalog,
	usage ProblemUsageStore,
	bucket, spread, widenStep, maxWidenings int,
	rnd *rand.Rand,
) *SelectorService {
	logger, _ := zap.NewProduction()

	return &SelectorService{
		catalog:      catalog,
		usage:        usage,
		logger:       logger,
		bucket:       bucket,
		spread:       spread,
		widenStep:    widenStep,
		maxWidenings: maxWidenings,
		rnd:          rnd,
	}
}

// Select picks an unused, appropriately-rated problem for the pair, or
// returns ErrNoProblemAvailable when the window search is exhausted.
// 선택된 문제는 페어의 최근 사용 집합에 기록된다.
func (s *SelectorService) Select(ctx context.Context, userA, userB string, ratingA, ratingB int) (*models.Problem, error) {
	used, err := s.usage.UsedProblems(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("failed to load used problems: %w", err)
	}

	minRating, maxRating := ratingA, ratingB
	if maxRating < minRating {
		minRating, maxRating = maxRating, minRating
	}

	lo := roundDown(minRating, s.bucket)
	hi := roundDown(maxRating, s.bucket) + s.spread

	for attempt := 0; attempt <= s.maxWidenings; attempt++ {
		problem, err := s.pickFromWindow(ctx, userA, userB, lo, hi, used)
		if err != nil {
			return nil, err
		}

		if problem != nil {
			if err := s.usage.MarkUsed(ctx, userA, userB, problem.ID); err != nil {
				// Reuse avoidance is best-effort; the duel still gets its problem.
				s.logger.Warn("Failed to mark problem as used",
					zap.String("problemId", problem.ID),
					zap.Error(err))
			}

			s.logger.Info("Problem selected",
				zap.String("problemId", problem.ID),
				zap.Int("problemRating", problem.Rating),
				zap.Int("windowLo", lo),
				zap.Int("windowHi", hi),
				zap.Int("widenings", attempt))

			return problem, nil
		}

		lo -= s.widenStep
		hi += s.widenStep
		if lo < 0 {
			lo = 0
		}
	}

	return nil, ErrNoProblemAvailable
}

// pickFromWindow 윈도우 내 후보를 무작위 순서로 검사하여 첫 적합 문제 반환
func (s *SelectorService) pickFromWindow(
	ctx context.Context,
	userA, userB string,
	lo, hi int,
	used map[string]struct{},
) (*models.Problem, error) {
	candidates, err := s.catalog.QueryProblems(ctx, lo, hi, used)
	if err != nil {
		return nil, fmt.Errorf("failed to query problem catalog: %w", err)
	}

	// The catalog's ordering is not under our control; shuffle so selection
	// is uniform regardless of how the judge happens to return problems.
	s.rndMu.Lock()
	s.rnd.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	s.rndMu.Unlock()

	for i := range candidates {
		problem := &candidates[i]

		solvedA, err := s.catalog.HasSolved(ctx, userA, problem.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check solved status: %w", err)
		}
		if solvedA {
			continue
		}

		solvedB, err := s.catalog.HasSolved(ctx, userB, problem.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check solved status: %w", err)
		}
		if solvedB {
			continue
		}

		return problem, nil
	}

	return nil, nil
}

func roundDown(value, bucket int) int {
	if bucket <= 0 {
		return value
	}
	return (value / bucket) * bucket
}
