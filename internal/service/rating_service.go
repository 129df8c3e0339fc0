package service

import "math"

// RatingService 듀얼 레이팅 계산 서비스 (ELO)
type RatingService struct {
	kFactor float64
	floor   int
}

// NewRatingService 레이팅 서비스 생성
func NewRatingService(kFactor float64, floor int) *RatingService {
	return &RatingService{
		kFactor: kFactor,
		floor:   floor,
	}
}

// Delta computes the rating deltas for a finished duel.
// isDraw: 무승부 시 양쪽 모두 0.5점 처리
// Deltas are symmetric up to integer rounding: deltaWinner + deltaLoser is 0 or ±1.
func (s *RatingService) Delta(ratingWinner, ratingLoser int, isDraw bool) (deltaWinner, deltaLoser int) {
	expectedWinner := s.expectedScore(float64(ratingWinner), float64(ratingLoser))
	expectedLoser := 1.0 - expectedWinner

	scoreWinner, scoreLoser := 1.0, 0.0
	if isDraw {
		scoreWinner, scoreLoser = 0.5, 0.5
	}

	deltaWinner = int(math.Round(s.kFactor * (scoreWinner - expectedWinner)))
	deltaLoser = int(math.Round(s.kFactor * (scoreLoser - expectedLoser)))

	return deltaWinner, deltaLoser
}

// Apply adds a delta to a rating, clamped at the configured floor.
func (s *RatingService) Apply(rating, delta int) int {
	next := rating + delta
	if next < s.floor {
		return s.floor
	}
	return next
}

// expectedScore ELO에 기반한 기대 승률 계산
func (s *RatingService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
