package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProblemUsageRepository 듀얼 페어별 최근 출제 문제 집합 (Redis)
type ProblemUsageRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProblemUsageRepository(client *redis.Client, ttl time.Duration) *ProblemUsageRepository {
	return &ProblemUsageRepository{client: client, ttl: ttl}
}

// pairKey 참가자 순서와 무관하게 같은 키를 만든다.
func pairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("duel:used:%s:%s", userA, userB)
}

// UsedProblems 페어에게 최근 출제된 문제 ID 집합 조회
func (r *ProblemUsageRepository) UsedProblems(ctx context.Context, userA, userB string) (map[string]struct{}, error) {
	ids, err := r.client.SMembers(ctx, pairKey(userA, userB)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read used problems: %w", err)
	}

	used := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		used[id] = struct{}{}
	}

	return used, nil
}

// MarkUsed 출제된 문제를 페어의 최근 사용 집합에 기록
func (r *ProblemUsageRepository) MarkUsed(ctx context.Context, userA, userB, problemID string) error {
	key := pairKey(userA, userB)

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, problemID)
	pipe.Expire(ctx, key, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark problem as used: %w", err)
	}

	return nil
}
