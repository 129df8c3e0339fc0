package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iampjeetsingh/TLE/internal/models"
	"go.uber.org/zap"
)

// VerdictPoller 저지 제출 판정 조회 (외부 협력자)
type VerdictPoller interface {
	FirstAcceptedAfter(ctx context.Context, userID, problemID string, since time.Time) (*time.Time, error)
}

// RatingStore 듀얼 레이팅 저장소
type RatingStore interface {
	GetRating(userID string) (*models.DuelRating, error)
	SetRatings(challenger, challenged *models.DuelRating) error
}

// HistoryStore 종료 듀얼 히스토리 저장소
type HistoryStore interface {
	AppendHistory(duel *models.Duel) error
	HistoryByUser(userID string, limit int) ([]models.Duel, error)
}

// ProblemSelector 듀얼 문제 선택기
type ProblemSelector interface {
	Select(ctx context.Context, userA, userB string, ratingA, ratingB int) (*models.Problem, error)
}

// DuelNotifier 듀얼 이벤트 알림 (WebSocket 허브 등)
type DuelNotifier interface {
	NotifyDuel(userIDs []string, event string, duel *models.Duel)
}

// Duel lifecycle events pushed to notifiers.
const (
	EventChallenged  = "duel_challenged"
	EventStarted     = "duel_started"
	EventDeclined    = "duel_declined"
	EventExpired     = "duel_expired"
	EventCompleted   = "duel_completed"
	EventDraw        = "duel_draw"
	EventInvalidated = "duel_invalidated"
)

// duelEntry 듀얼별 단일 기록 + 뮤텍스
type duelEntry struct {
	mu        sync.Mutex
	duel      models.Duel
	accepting bool // an Accept is in its out-of-lock selection phase
	polling   bool // a PollOutcome is in its out-of-lock verdict phase
}

// snapshotLocked caller must hold e.mu.
func (e *duelEntry) snapshotLocked() *models.Duel {
	snap := e.duel
	return &snap
}

// DuelService 듀얼 상태 머신 관리자.
// 활성 듀얼과 사용자 인덱스는 메모리에 보관하고, 종료된 듀얼은
// HistoryStore에 기록한다. 사용자당 활성 듀얼은 최대 하나다.
type DuelService struct {
	selector ProblemSelector
	verdicts VerdictPoller
	ratings  *RatingService
	store    RatingStore
	history  HistoryStore
	notifier DuelNotifier
	logger   *zap.Logger

	acceptDeadline  time.Duration
	ongoingDeadline time.Duration
	allowSelfDuel   bool

	// mu guards duels and active; per-duel mutation happens under duelEntry.mu.
	// Lock order: duelEntry.mu before mu, never the reverse.
	mu     sync.Mutex
	duels  map[string]*duelEntry
	active map[string]string // userID -> duelID

	nowFn func() time.Time
}

func NewDuelService(
	selector ProblemSelector,
	verdicts VerdictPoller,
	ratings *RatingService,
	store RatingStore,
	history HistoryStore,
	acceptDeadline, ongoingDeadline time.Duration,
	allowSelfDuel bool,
) *DuelService {
	logger, _ := zap.NewProduction()

	return &DuelService{
		selector:        selector,
		verdicts:        verdicts,
		ratings:         ratings,
		store:           store,
		history:         history,
		logger:          logger,
		acceptDeadline:  acceptDeadline,
		ongoingDeadline: ongoingDeadline,
		allowSelfDuel:   allowSelfDuel,
		duels:           make(map[string]*duelEntry),
		active:          make(map[string]string),
		nowFn:           time.Now,
	}
}

// SetNotifier 듀얼 이벤트 알림 대상 설정 (선택)
func (s *DuelService) SetNotifier(notifier DuelNotifier) {
	s.notifier = notifier
}

// Challenge 새 듀얼 도전 생성 (PENDING)
func (s *DuelService) Challenge(challengerID, challengedID string, isRated bool) (*models.Duel, error) {
	if challengerID == challengedID && !s.allowSelfDuel {
		return nil, ErrSelfChallenge
	}

	now := s.nowFn()

	s.mu.Lock()
	if _, busy := s.active[challengerID]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInDuel
	}
	if _, busy := s.active[challengedID]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInDuel
	}

	duel := models.Duel{
		ID:           uuid.NewString(),
		ChallengerID: challengerID,
		ChallengedID: challengedID,
		Status:       models.DuelStatusPending,
		IsRated:      isRated,
		CreatedAt:    now,
		AcceptBy:     now.Add(s.acceptDeadline),
	}

	entry := &duelEntry{duel: duel}
	s.duels[duel.ID] = entry
	s.active[challengerID] = duel.ID
	s.active[challengedID] = duel.ID
	s.mu.Unlock()

	s.logger.Info("Duel challenge created",
		zap.String("duelId", duel.ID),
		zap.String("challenger", challengerID),
		zap.String("challenged", challengedID),
		zap.Bool("isRated", isRated))

	snap := duel
	s.notify(EventChallenged, &snap)

	return &snap, nil
}

// Accept 도전 수락: 문제를 선택하고 듀얼을 ONGOING으로 전환
func (s *DuelService) Accept(ctx context.Context, duelID, byUserID string) (*models.Duel, error) {
	entry, err := s.entry(duelID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	if entry.duel.Status.IsTerminal() {
		snap := entry.snapshotLocked()
		entry.mu.Unlock()
		return snap, nil
	}
	if entry.duel.Status != models.DuelStatusPending || entry.accepting {
		entry.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	if byUserID != entry.duel.ChallengedID {
		entry.mu.Unlock()
		return nil, ErrNotChallenged
	}
	if s.nowFn().After(entry.duel.AcceptBy) {
		snap := s.terminateLocked(entry, models.DuelStatusExpired)
		entry.mu.Unlock()
		s.finishTerminal(snap, EventExpired)
		return nil, ErrExpiredChallenge
	}

	entry.accepting = true
	challengerID := entry.duel.ChallengerID
	challengedID := entry.duel.ChallengedID
	entry.mu.Unlock()

	defer func() {
		entry.mu.Lock()
		entry.accepting = false
		entry.mu.Unlock()
	}()

	// Ratings and problem selection hit postgres and the judge API; both stay
	// outside the duel lock, and the transition is re-validated afterwards.
	challengerRating, err := s.store.GetRating(challengerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenger rating: %w", err)
	}
	challengedRating, err := s.store.GetRating(challengedID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenged rating: %w", err)
	}

	problem, err := s.selector.Select(ctx, challengerID, challengedID, challengerRating.Rating, challengedRating.Rating)
	if err != nil {
		if errors.Is(err, ErrNoProblemAvailable) {
			entry.mu.Lock()
			if entry.duel.Status != models.DuelStatusPending {
				entry.mu.Unlock()
				return nil, ErrInvalidTransition
			}
			snap := s.terminateLocked(entry, models.DuelStatusExpired)
			entry.mu.Unlock()

			s.logger.Warn("No problem available for duel, expiring",
				zap.String("duelId", duelID))
			s.finishTerminal(snap, EventExpired)
			return nil, ErrNoProblemAvailable
		}
		// Transient judge/storage failure: the duel stays PENDING and the
		// accept can simply be retried.
		return nil, err
	}

	entry.mu.Lock()
	if entry.duel.Status != models.DuelStatusPending {
		entry.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	now := s.nowFn()
	if now.After(entry.duel.AcceptBy) {
		snap := s.terminateLocked(entry, models.DuelStatusExpired)
		entry.mu.Unlock()
		s.finishTerminal(snap, EventExpired)
		return nil, ErrExpiredChallenge
	}

	finishesAt := now.Add(s.ongoingDeadline)
	entry.duel.Problem = problem
	entry.duel.StartedAt = &now
	entry.duel.FinishesAt = &finishesAt
	entry.duel.Status = models.DuelStatusOngoing
	snap := entry.snapshotLocked()
	entry.mu.Unlock()

	s.logger.Info("Duel started",
		zap.String("duelId", duelID),
		zap.String("problemId", problem.ID),
		zap.Int("problemRating", problem.Rating))

	s.notify(EventStarted, snap)

	return snap, nil
}

// Decline 도전 거절 (PENDING에서만, 피도전자만)
func (s *DuelService) Decline(duelID, byUserID string) (*models.Duel, error) {
	entry, err := s.entry(duelID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	if entry.duel.Status.IsTerminal() {
		snap := entry.snapshotLocked()
		entry.mu.Unlock()
		return snap, nil
	}
	if entry.duel.Status != models.DuelStatusPending {
		entry.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	if byUserID != entry.duel.ChallengedID {
		entry.mu.Unlock()
		return nil, ErrNotChallenged
	}

	snap := s.terminateLocked(entry, models.DuelStatusDeclined)
	entry.mu.Unlock()

	s.logger.Info("Duel declined",
		zap.String("duelId", duelID),
		zap.String("by", byUserID))

	s.finishTerminal(snap, EventDeclined)

	return snap, nil
}

// CheckExpiry 수락/진행 기한 경과 시 EXPIRED로 전환.
// 이미 종료된 듀얼에는 아무 것도 하지 않는다 (스윕에서 반복 호출됨).
func (s *DuelService) CheckExpiry(duelID string) (*models.Duel, error) {
	entry, err := s.entry(duelID)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()

	entry.mu.Lock()
	expired := false
	switch entry.duel.Status {
	case models.DuelStatusPending:
		expired = now.After(entry.duel.AcceptBy)
	case models.DuelStatusOngoing:
		expired = entry.duel.FinishesAt != nil && now.After(*entry.duel.FinishesAt)
	}

	if !expired {
		snap := entry.snapshotLocked()
		entry.mu.Unlock()
		return snap, nil
	}

	snap := s.terminateLocked(entry, models.DuelStatusExpired)
	entry.mu.Unlock()

	s.logger.Info("Duel expired",
		zap.String("duelId", duelID),
		zap.String("challenger", snap.ChallengerID),
		zap.String("challenged", snap.ChallengedID))

	s.finishTerminal(snap, EventExpired)

	return snap, nil
}

// PollOutcome queries the judge for both participants' verdicts and, when an
// outcome exists, adjudicates the duel (COMPLETE or DRAW) and applies the
// rating update for rated duels. Safe to call repeatedly; a duel that is not
// ONGOING is left untouched and concurrent polls of the same duel coalesce.
func (s *DuelService) PollOutcome(ctx context.Context, duelID string) (*models.Duel, error) {
	entry, err := s.entry(duelID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	if entry.duel.Status != models.DuelStatusOngoing || entry.polling {
		snap := entry.snapshotLocked()
		entry.mu.Unlock()
		return snap, nil
	}

	entry.polling = true
	challengerID := entry.duel.ChallengerID
	challengedID := entry.duel.ChallengedID
	problemID := entry.duel.Problem.ID
	since := *entry.duel.StartedAt
	isRated := entry.duel.IsRated
	entry.mu.Unlock()

	defer func() {
		entry.mu.Lock()
		entry.polling = false
		entry.mu.Unlock()
	}()

	// Verdict lookups are slow network calls; hold no locks here. Errors are
	// transient and simply retried on the next sweep cycle.
	acceptedChallenger, err := s.verdicts.FirstAcceptedAfter(ctx, challengerID, problemID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to poll challenger verdict: %w", err)
	}
	acceptedChallenged, err := s.verdicts.FirstAcceptedAfter(ctx, challengedID, problemID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to poll challenged verdict: %w", err)
	}

	if acceptedChallenger == nil && acceptedChallenged == nil {
		entry.mu.Lock()
		snap := entry.snapshotLocked()
		entry.mu.Unlock()
		return snap, nil
	}

	isDraw := acceptedChallenger != nil && acceptedChallenged != nil &&
		acceptedChallenger.Equal(*acceptedChallenged)

	challengerWon := !isDraw &&
		(acceptedChallenged == nil ||
			(acceptedChallenger != nil && acceptedChallenger.Before(*acceptedChallenged)))

	var challengerRating, challengedRating *models.DuelRating
	if isRated {
		if challengerRating, err = s.store.GetRating(challengerID); err != nil {
			return nil, fmt.Errorf("failed to load challenger rating: %w", err)
		}
		if challengedRating, err = s.store.GetRating(challengedID); err != nil {
			return nil, fmt.Errorf("failed to load challenged rating: %w", err)
		}
	}

	entry.mu.Lock()
	if entry.duel.Status != models.DuelStatusOngoing {
		// Lost a race against expiry or invalidation; the verdict is moot.
		snap := entry.snapshotLocked()
		entry.mu.Unlock()
		return snap, nil
	}

	event := EventCompleted
	if isDraw {
		entry.duel.Status = models.DuelStatusDraw
		event = EventDraw
	} else {
		entry.duel.Status = models.DuelStatusComplete
		winnerID := challengedID
		if challengerWon {
			winnerID = challengerID
		}
		entry.duel.WinnerID = &winnerID
	}

	if isRated {
		s.applyRatingsLocked(entry, challengerRating, challengedRating, isDraw, challengerWon)
	}

	now := s.nowFn()
	entry.duel.FinishedAt = &now
	s.releaseUsers(&entry.duel)
	snap := entry.snapshotLocked()
	entry.mu.Unlock()

	s.logger.Info("Duel adjudicated",
		zap.String("duelId", duelID),
		zap.String("status", string(snap.Status)),
		zap.Stringp("winnerId", snap.WinnerID))

	if isRated {
		if err := s.store.SetRatings(challengerRating, challengedRating); err != nil {
			// The duel outcome stands; the history row still carries the deltas.
			s.logger.Error("Failed to persist rating update",
				zap.String("duelId", duelID),
				zap.Error(err))
		}
	}

	s.appendHistory(snap)
	s.notify(event, snap)

	return snap, nil
}

// applyRatingsLocked 결과에 따라 델타 계산 및 레이팅/전적 반영 (entry.mu 보유 상태)
func (s *DuelService) applyRatingsLocked(
	entry *duelEntry,
	challengerRating, challengedRating *models.DuelRating,
	isDraw, challengerWon bool,
) {
	var deltaChallenger, deltaChallenged int

	switch {
	case isDraw:
		deltaChallenger, deltaChallenged = s.ratings.Delta(challengerRating.Rating, challengedRating.Rating, true)
		challengerRating.Draws++
		challengedRating.Draws++
	case challengerWon:
		deltaChallenger, deltaChallenged = s.ratings.Delta(challengerRating.Rating, challengedRating.Rating, false)
		challengerRating.Wins++
		challengedRating.Losses++
	default:
		deltaChallenged, deltaChallenger = s.ratings.Delta(challengedRating.Rating, challengerRating.Rating, false)
		challengedRating.Wins++
		challengerRating.Losses++
	}

	challengerRating.Rating = s.ratings.Apply(challengerRating.Rating, deltaChallenger)
	challengedRating.Rating = s.ratings.Apply(challengedRating.Rating, deltaChallenged)
	challengerRating.DuelsPlayed++
	challengedRating.DuelsPlayed++

	entry.duel.ChallengerDelta = &deltaChallenger
	entry.duel.ChallengedDelta = &deltaChallenged
}

// Invalidate 운영자 강제 종료. 권한 확인은 호출자(핸들러) 책임.
func (s *DuelService) Invalidate(duelID string) (*models.Duel, error) {
	entry, err := s.entry(duelID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	if entry.duel.Status.IsTerminal() {
		snap := entry.snapshotLocked()
		entry.mu.Unlock()
		return snap, nil
	}

	snap := s.terminateLocked(entry, models.DuelStatusInvalidated)
	entry.mu.Unlock()

	s.logger.Warn("Duel invalidated by moderator",
		zap.String("duelId", duelID))

	s.finishTerminal(snap, EventInvalidated)

	return snap, nil
}

// GetActiveDuel 사용자의 활성 듀얼 조회 (없으면 nil)
func (s *DuelService) GetActiveDuel(userID string) *models.Duel {
	s.mu.Lock()
	duelID, ok := s.active[userID]
	entry := s.duels[duelID]
	s.mu.Unlock()

	if !ok || entry == nil {
		return nil
	}

	entry.mu.Lock()
	snap := entry.snapshotLocked()
	entry.mu.Unlock()

	return snap
}

// GetDuel ID로 듀얼 조회 (메모리에 남아있는 경우)
func (s *DuelService) GetDuel(duelID string) (*models.Duel, error) {
	entry, err := s.entry(duelID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	snap := entry.snapshotLocked()
	entry.mu.Unlock()

	return snap, nil
}

// GetHistory 사용자의 종료 듀얼 히스토리 조회
func (s *DuelService) GetHistory(userID string, limit int) ([]models.Duel, error) {
	return s.history.HistoryByUser(userID, limit)
}

// LiveDuelIDs 스윕 대상이 되는 비종료 듀얼 ID 목록
func (s *DuelService) LiveDuelIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.active))
	seen := make(map[string]struct{}, len(s.active))
	for _, duelID := range s.active {
		if _, dup := seen[duelID]; dup {
			continue
		}
		seen[duelID] = struct{}{}
		ids = append(ids, duelID)
	}

	return ids
}

// PruneTerminal drops in-memory records of duels that finished more than
// keepFor ago. Their history lives in postgres; the in-memory record only
// backs the idempotent no-op behavior for stragglers.
func (s *DuelService) PruneTerminal(keepFor time.Duration) int {
	cutoff := s.nowFn().Add(-keepFor)

	// Inspect entries without holding mu; entry.mu must never be taken
	// while mu is held.
	s.mu.Lock()
	entries := make(map[string]*duelEntry, len(s.duels))
	for id, entry := range s.duels {
		entries[id] = entry
	}
	s.mu.Unlock()

	stale := make([]string, 0)
	for id, entry := range entries {
		entry.mu.Lock()
		if entry.duel.Status.IsTerminal() &&
			entry.duel.FinishedAt != nil &&
			entry.duel.FinishedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		entry.mu.Unlock()
	}

	// Terminal is a final state, so a stale entry stays stale.
	s.mu.Lock()
	pruned := 0
	for _, id := range stale {
		if _, ok := s.duels[id]; ok {
			delete(s.duels, id)
			pruned++
		}
	}
	s.mu.Unlock()

	return pruned
}

// entry 듀얼 엔트리 조회
func (s *DuelService) entry(duelID string) (*duelEntry, error) {
	s.mu.Lock()
	entry, ok := s.duels[duelID]
	s.mu.Unlock()

	if !ok {
		return nil, ErrDuelNotFound
	}

	return entry, nil
}

// terminateLocked 종료 상태로 전환하고 참가자를 인덱스에서 해제.
// caller must hold entry.mu; 전환 자체는 호출 전에 검증되어 있어야 한다.
func (s *DuelService) terminateLocked(entry *duelEntry, status models.DuelStatus) *models.Duel {
	now := s.nowFn()
	entry.duel.Status = status
	entry.duel.FinishedAt = &now
	s.releaseUsers(&entry.duel)
	return entry.snapshotLocked()
}

// releaseUsers frees both participants from the active index, but only the
// entries still pointing at this duel.
func (s *DuelService) releaseUsers(duel *models.Duel) {
	s.mu.Lock()
	for _, userID := range duel.Participants() {
		if s.active[userID] == duel.ID {
			delete(s.active, userID)
		}
	}
	s.mu.Unlock()
}

// finishTerminal 종료 듀얼의 히스토리 기록 및 알림 (락 없이 호출)
func (s *DuelService) finishTerminal(snap *models.Duel, event string) {
	s.appendHistory(snap)
	s.notify(event, snap)
}

func (s *DuelService) appendHistory(snap *models.Duel) {
	if err := s.history.AppendHistory(snap); err != nil {
		s.logger.Error("Failed to append duel history",
			zap.String("duelId", snap.ID),
			zap.Error(err))
	}
}

func (s *DuelService) notify(event string, snap *models.Duel) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyDuel(snap.Participants(), event, snap)
}
