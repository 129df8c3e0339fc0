package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/iampjeetsingh/TLE/internal/models"
	"go.uber.org/zap"
)

// testClock 테스트용 주입 시계
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubSelector ProblemSelector returning a fixed problem or error
type stubSelector struct {
	mu      sync.Mutex
	problem *models.Problem
	err     error
}

func (s *stubSelector) Select(context.Context, string, string, int, int) (*models.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.problem, nil
}

func (s *stubSelector) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// stubVerdicts VerdictPoller with per-user accepted timestamps
type stubVerdicts struct {
	mu       sync.Mutex
	accepted map[string]time.Time
	err      error
}

func newStubVerdicts() *stubVerdicts {
	return &stubVerdicts{accepted: make(map[string]time.Time)}
}

func (v *stubVerdicts) FirstAcceptedAfter(_ context.Context, userID, _ string, since time.Time) (*time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	t, ok := v.accepted[userID]
	if !ok || t.Before(since) {
		return nil, nil
	}
	accepted := t
	return &accepted, nil
}

func (v *stubVerdicts) accept(userID string, at time.Time) {
	v.mu.Lock()
	v.accepted[userID] = at
	v.mu.Unlock()
}

func (v *stubVerdicts) setErr(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
}

// memRatingStore in-memory RatingStore
type memRatingStore struct {
	mu       sync.Mutex
	ratings  map[string]models.DuelRating
	seed     int
	setCalls int
}

func newMemRatingStore(seed int) *memRatingStore {
	return &memRatingStore{ratings: make(map[string]models.DuelRating), seed: seed}
}

func (s *memRatingStore) GetRating(userID string) (*models.DuelRating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[userID]; ok {
		copied := r
		return &copied, nil
	}
	return &models.DuelRating{UserID: userID, Rating: s.seed}, nil
}

func (s *memRatingStore) SetRatings(challenger, challenged *models.DuelRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[challenger.UserID] = *challenger
	s.ratings[challenged.UserID] = *challenged
	s.setCalls++
	return nil
}

func (s *memRatingStore) rating(userID string) models.DuelRating {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[userID]; ok {
		return r
	}
	return models.DuelRating{UserID: userID, Rating: s.seed}
}

func (s *memRatingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCalls
}

// memHistory in-memory HistoryStore
type memHistory struct {
	mu    sync.Mutex
	duels []models.Duel
}

func (h *memHistory) AppendHistory(duel *models.Duel) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.duels = append(h.duels, *duel)
	return nil
}

func (h *memHistory) HistoryByUser(userID string, limit int) ([]models.Duel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result []models.Duel
	for i := len(h.duels) - 1; i >= 0 && len(result) < limit; i-- {
		d := h.duels[i]
		if d.ChallengerID == userID || d.ChallengedID == userID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (h *memHistory) countByID(duelID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, d := range h.duels {
		if d.ID == duelID {
			count++
		}
	}
	return count
}

type duelFixture struct {
	svc      *DuelService
	clock    *testClock
	selector *stubSelector
	verdicts *stubVerdicts
	store    *memRatingStore
	history  *memHistory
}

func newDuelFixture() *duelFixture {
	clock := newTestClock()
	selector := &stubSelector{problem: &models.Problem{ID: "1700A", Name: "Two Friends", Rating: 1600}}
	verdicts := newStubVerdicts()
	store := newMemRatingStore(1500)
	history := &memHistory{}

	svc := NewDuelService(
		selector,
		verdicts,
		NewRatingService(32, 0),
		store,
		history,
		5*time.Minute,
		time.Hour,
		false,
	)
	svc.logger = zap.NewNop()
	svc.nowFn = clock.Now

	return &duelFixture{
		svc:      svc,
		clock:    clock,
		selector: selector,
		verdicts: verdicts,
		store:    store,
		history:  history,
	}
}

// startDuel challenge + accept 단축 헬퍼
func (f *duelFixture) startDuel(t *testing.T, challenger, challenged string, rated bool) *models.Duel {
	t.Helper()

	duel, err := f.svc.Challenge(challenger, challenged, rated)
	if err != nil {
		t.Fatalf("challenge failed: %v", err)
	}

	duel, err = f.svc.Accept(context.Background(), duel.ID, challenged)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	return duel
}

func TestDuelService_Challenge(t *testing.T) {
	f := newDuelFixture()

	duel, err := f.svc.Challenge("alice", "bob", true)
	if err != nil {
		t.Fatalf("challenge failed: %v", err)
	}

	if duel.Status != models.DuelStatusPending {
		t.Errorf("status = %s, want pending", duel.Status)
	}
	if duel.IsRated != true {
		t.Error("duel should be rated")
	}
	if want := f.clock.Now().Add(5 * time.Minute); !duel.AcceptBy.Equal(want) {
		t.Errorf("acceptBy = %v, want %v", duel.AcceptBy, want)
	}
	if duel.Problem != nil {
		t.Error("pending duel must not have a problem bound")
	}

	if active := f.svc.GetActiveDuel("alice"); active == nil || active.ID != duel.ID {
		t.Error("challenger should have the duel as active")
	}
	if active := f.svc.GetActiveDuel("bob"); active == nil || active.ID != duel.ID {
		t.Error("challenged should have the duel as active")
	}
}

func TestDuelService_ChallengeWhileBusy(t *testing.T) {
	f := newDuelFixture()

	if _, err := f.svc.Challenge("alice", "bob", true); err != nil {
		t.Fatalf("challenge failed: %v", err)
	}

	// Either participant being in a duel blocks further challenges.
	cases := [][2]string{
		{"alice", "carol"},
		{"carol", "alice"},
		{"bob", "carol"},
		{"carol", "bob"},
		{"alice", "bob"},
	}
	for _, pair := range cases {
		if _, err := f.svc.Challenge(pair[0], pair[1], true); !errors.Is(err, ErrAlreadyInDuel) {
			t.Errorf("Challenge(%s, %s) error = %v, want ErrAlreadyInDuel", pair[0], pair[1], err)
		}
	}

	// Unrelated users are unaffected.
	if _, err := f.svc.Challenge("carol", "dave", false); err != nil {
		t.Errorf("unrelated challenge failed: %v", err)
	}
}

func TestDuelService_SelfChallenge(t *testing.T) {
	f := newDuelFixture()

	if _, err := f.svc.Challenge("alice", "alice", true); !errors.Is(err, ErrSelfChallenge) {
		t.Errorf("error = %v, want ErrSelfChallenge", err)
	}

	f.svc.allowSelfDuel = true
	duel, err := f.svc.Challenge("alice", "alice", false)
	if err != nil {
		t.Fatalf("self challenge with policy enabled failed: %v", err)
	}
	if _, err := f.svc.Accept(context.Background(), duel.ID, "alice"); err != nil {
		t.Errorf("self accept failed: %v", err)
	}
}

func TestDuelService_Accept(t *testing.T) {
	f := newDuelFixture()

	duel, err := f.svc.Challenge("alice", "bob", true)
	if err != nil {
		t.Fatalf("challenge failed: %v", err)
	}

	// Only the challenged party may accept.
	if _, err := f.svc.Accept(context.Background(), duel.ID, "alice"); !errors.Is(err, ErrNotChallenged) {
		t.Errorf("accept by challenger error = %v, want ErrNotChallenged", err)
	}
	if _, err := f.svc.Accept(context.Background(), duel.ID, "carol"); !errors.Is(err, ErrNotChallenged) {
		t.Errorf("accept by stranger error = %v, want ErrNotChallenged", err)
	}

	started, err := f.svc.Accept(context.Background(), duel.ID, "bob")
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if started.Status != models.DuelStatusOngoing {
		t.Errorf("status = %s, want ongoing", started.Status)
	}
	if started.Problem == nil || started.Problem.ID != "1700A" {
		t.Error("problem should be bound on accept")
	}
	if started.StartedAt == nil || !started.StartedAt.Equal(f.clock.Now()) {
		t.Error("startedAt should be set to now")
	}
	if started.FinishesAt == nil || !started.FinishesAt.Equal(f.clock.Now().Add(time.Hour)) {
		t.Error("finishesAt should be one hour out")
	}

	// A second accept finds the duel no longer pending.
	if _, err := f.svc.Accept(context.Background(), duel.ID, "bob"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second accept error = %v, want ErrInvalidTransition", err)
	}

	if _, err := f.svc.Accept(context.Background(), "no-such-duel", "bob"); !errors.Is(err, ErrDuelNotFound) {
		t.Errorf("unknown duel error = %v, want ErrDuelNotFound", err)
	}
}

func TestDuelService_AcceptAfterDeadline(t *testing.T) {
	f := newDuelFixture()

	duel, _ := f.svc.Challenge("alice", "bob", true)
	f.clock.Advance(6 * time.Minute)

	if _, err := f.svc.Accept(context.Background(), duel.ID, "bob"); !errors.Is(err, ErrExpiredChallenge) {
		t.Fatalf("error = %v, want ErrExpiredChallenge", err)
	}

	expired, err := f.svc.GetDuel(duel.ID)
	if err != nil {
		t.Fatalf("get duel: %v", err)
	}
	if expired.Status != models.DuelStatusExpired {
		t.Errorf("status = %s, want expired", expired.Status)
	}

	// Both users are freed.
	if f.svc.GetActiveDuel("alice") != nil || f.svc.GetActiveDuel("bob") != nil {
		t.Error("participants should be freed after the challenge expires")
	}
	if _, err := f.svc.Challenge("alice", "bob", true); err != nil {
		t.Errorf("re-challenge after expiry failed: %v", err)
	}
}

func TestDuelService_AcceptNoProblemAvailable(t *testing.T) {
	f := newDuelFixture()
	f.selector.setErr(ErrNoProblemAvailable)

	duel, _ := f.svc.Challenge("alice", "bob", true)

	if _, err := f.svc.Accept(context.Background(), duel.ID, "bob"); !errors.Is(err, ErrNoProblemAvailable) {
		t.Fatalf("error = %v, want ErrNoProblemAvailable", err)
	}

	expired, _ := f.svc.GetDuel(duel.ID)
	if expired.Status != models.DuelStatusExpired {
		t.Errorf("status = %s, want expired", expired.Status)
	}
	if f.svc.GetActiveDuel("alice") != nil || f.svc.GetActiveDuel("bob") != nil {
		t.Error("participants should be freed")
	}
}

func TestDuelService_AcceptTransientSelectorFailure(t *testing.T) {
	f := newDuelFixture()
	f.selector.setErr(errors.New("judge timeout"))

	duel, _ := f.svc.Challenge("alice", "bob", true)

	if _, err := f.svc.Accept(context.Background(), duel.ID, "bob"); err == nil {
		t.Fatal("expected error from transient selector failure")
	}

	// The duel stays PENDING and the accept can be retried.
	pending, _ := f.svc.GetDuel(duel.ID)
	if pending.Status != models.DuelStatusPending {
		t.Fatalf("status = %s, want pending", pending.Status)
	}

	f.selector.setErr(nil)
	started, err := f.svc.Accept(context.Background(), duel.ID, "bob")
	if err != nil {
		t.Fatalf("retried accept failed: %v", err)
	}
	if started.Status != models.DuelStatusOngoing {
		t.Errorf("status = %s, want ongoing", started.Status)
	}
}

func TestDuelService_Decline(t *testing.T) {
	f := newDuelFixture()

	duel, _ := f.svc.Challenge("alice", "bob", true)

	if _, err := f.svc.Decline(duel.ID, "alice"); !errors.Is(err, ErrNotChallenged) {
		t.Errorf("decline by challenger error = %v, want ErrNotChallenged", err)
	}

	declined, err := f.svc.Decline(duel.ID, "bob")
	if err != nil {
		t.Fatalf("decline failed: %v", err)
	}
	if declined.Status != models.DuelStatusDeclined {
		t.Errorf("status = %s, want declined", declined.Status)
	}
	if f.svc.GetActiveDuel("alice") != nil || f.svc.GetActiveDuel("bob") != nil {
		t.Error("participants should be freed after decline")
	}

	// Declining again is a no-op returning the terminal snapshot.
	again, err := f.svc.Decline(duel.ID, "bob")
	if err != nil {
		t.Fatalf("repeat decline errored: %v", err)
	}
	if again.Status != models.DuelStatusDeclined {
		t.Errorf("repeat decline status = %s, want declined", again.Status)
	}

	// Decline is only valid from PENDING.
	ongoing := f.startDuel(t, "carol", "dave", true)
	if _, err := f.svc.Decline(ongoing.ID, "dave"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("decline of ongoing duel error = %v, want ErrInvalidTransition", err)
	}
}

func TestDuelService_CheckExpiry(t *testing.T) {
	f := newDuelFixture()

	pending, _ := f.svc.Challenge("alice", "bob", true)

	// Not yet due: no-op.
	duel, err := f.svc.CheckExpiry(pending.ID)
	if err != nil {
		t.Fatalf("check expiry: %v", err)
	}
	if duel.Status != models.DuelStatusPending {
		t.Errorf("status = %s, want pending", duel.Status)
	}

	f.clock.Advance(6 * time.Minute)

	duel, _ = f.svc.CheckExpiry(pending.ID)
	if duel.Status != models.DuelStatusExpired {
		t.Errorf("status = %s, want expired", duel.Status)
	}
	if f.svc.GetActiveDuel("alice") != nil {
		t.Error("participants should be freed")
	}

	// Ongoing duel past its deadline expires with no rating change.
	ongoing := f.startDuel(t, "carol", "dave", true)
	f.clock.Advance(2 * time.Hour)

	duel, _ = f.svc.CheckExpiry(ongoing.ID)
	if duel.Status != models.DuelStatusExpired {
		t.Errorf("ongoing status = %s, want expired", duel.Status)
	}
	if f.store.calls() != 0 {
		t.Error("expiry must never touch stored ratings")
	}
}

func TestDuelService_CheckExpiryConcurrentIdempotent(t *testing.T) {
	f := newDuelFixture()

	duel, _ := f.svc.Challenge("alice", "bob", true)
	f.clock.Advance(10 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CheckExpiry(duel.ID); err != nil {
				t.Errorf("concurrent check expiry errored: %v", err)
			}
		}()
	}
	wg.Wait()

	final, _ := f.svc.GetDuel(duel.ID)
	if final.Status != models.DuelStatusExpired {
		t.Fatalf("status = %s, want expired", final.Status)
	}

	// The transition happened exactly once.
	if count := f.history.countByID(duel.ID); count != 1 {
		t.Errorf("history rows = %d, want exactly 1", count)
	}
}

func TestDuelService_PollOutcomeNoVerdicts(t *testing.T) {
	f := newDuelFixture()
	duel := f.startDuel(t, "alice", "bob", true)

	polled, err := f.svc.PollOutcome(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if polled.Status != models.DuelStatusOngoing {
		t.Errorf("status = %s, want ongoing", polled.Status)
	}
}

func TestDuelService_PollOutcomeWinner(t *testing.T) {
	f := newDuelFixture()
	duel := f.startDuel(t, "alice", "bob", true)

	f.clock.Advance(10 * time.Minute)
	f.verdicts.accept("alice", f.clock.Now())

	polled, err := f.svc.PollOutcome(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	if polled.Status != models.DuelStatusComplete {
		t.Fatalf("status = %s, want complete", polled.Status)
	}
	if polled.WinnerID == nil || *polled.WinnerID != "alice" {
		t.Error("winner should be alice")
	}
	if polled.ChallengerDelta == nil || *polled.ChallengerDelta != 16 {
		t.Errorf("challenger delta = %v, want +16", polled.ChallengerDelta)
	}
	if polled.ChallengedDelta == nil || *polled.ChallengedDelta != -16 {
		t.Errorf("challenged delta = %v, want -16", polled.ChallengedDelta)
	}

	if got := f.store.rating("alice"); got.Rating != 1516 || got.Wins != 1 || got.DuelsPlayed != 1 {
		t.Errorf("alice rating = %+v, want 1516 with one win", got)
	}
	if got := f.store.rating("bob"); got.Rating != 1484 || got.Losses != 1 {
		t.Errorf("bob rating = %+v, want 1484 with one loss", got)
	}

	if f.svc.GetActiveDuel("alice") != nil || f.svc.GetActiveDuel("bob") != nil {
		t.Error("participants should be freed after completion")
	}
	if count := f.history.countByID(duel.ID); count != 1 {
		t.Errorf("history rows = %d, want 1", count)
	}

	// Further polls are no-ops on the terminal duel.
	again, err := f.svc.PollOutcome(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("repeat poll errored: %v", err)
	}
	if again.Status != models.DuelStatusComplete {
		t.Errorf("repeat poll status = %s", again.Status)
	}
	if count := f.history.countByID(duel.ID); count != 1 {
		t.Errorf("history rows after repeat poll = %d, want 1", count)
	}
}

func TestDuelService_PollOutcomeEarlierSubmissionWins(t *testing.T) {
	f := newDuelFixture()
	duel := f.startDuel(t, "alice", "bob", true)

	start := f.clock.Now()
	f.verdicts.accept("alice", start.Add(30*time.Minute))
	f.verdicts.accept("bob", start.Add(12*time.Minute))
	f.clock.Advance(40 * time.Minute)

	polled, err := f.svc.PollOutcome(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if polled.WinnerID == nil || *polled.WinnerID != "bob" {
		t.Error("bob submitted earlier and should win")
	}
}

func TestDuelService_PollOutcomeSimultaneousDraw(t *testing.T) {
	f := newDuelFixture()
	duel := f.startDuel(t, "alice", "bob", true)

	at := f.clock.Now().Add(20 * time.Minute)
	f.verdicts.accept("alice", at)
	f.verdicts.accept("bob", at)
	f.clock.Advance(30 * time.Minute)

	polled, err := f.svc.PollOutcome(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	if polled.Status != models.DuelStatusDraw {
		t.Fatalf("status = %s, want draw", polled.Status)
	}
	if polled.WinnerID != nil {
		t.Error("draw must not have a winner")
	}
	if polled.ChallengerDelta == nil || *polled.ChallengerDelta != 0 {
		t.Errorf("challenger delta = %v, want 0 for equal-rating draw", polled.ChallengerDelta)
	}
	if got := f.store.rating("alice"); got.Draws != 1 || got.Rating != 1500 {
		t.Errorf("alice = %+v, want one draw at 1500", got)
	}
}

func TestDuelService_UnratedDuelNeverTouchesRatings(t *testing.T) {
	f := newDuelFixture()
	duel := f.startDuel(t, "alice", "bob", false)

	f.verdicts.accept("alice", f.clock.Now().Add(5*time.Minute))
	f.clock.Advance(10 * time.Minute)

	polled, err := f.svc.PollOutcome(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	if polled.Status != models.DuelStatusComplete {
		t.Fatalf("status = %s, want complete", polled.Status)
	}
	if polled.ChallengerDelta != nil || polled.ChallengedDelta != nil {
		t.Error("unrated duel must not carry deltas")
	}
	if f.store.calls() != 0 {
		t.Error("unrated duel must not write ratings")
	}
}

func TestDuelService_PollOutcomeTransientFailure(t *testing.T) {
	f := newDuelFixture()
	duel := f.startDuel(t, "alice", "bob", true)

	f.verdicts.setErr(errors.New("judge unreachable"))
	if _, err := f.svc.PollOutcome(context.Background(), duel.ID); err == nil {
		t.Fatal("expected transient poll error")
	}

	// Still ongoing; the next sweep retries.
	current, _ := f.svc.GetDuel(duel.ID)
	if current.Status != models.DuelStatusOngoing {
		t.Fatalf("status = %s, want ongoing", current.Status)
	}

	f.verdicts.setErr(nil)
	f.verdicts.accept("bob", f.clock.Now().Add(time.Minute))
	f.clock.Advance(5 * time.Minute)

	polled, err := f.svc.PollOutcome(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("poll after recovery failed: %v", err)
	}
	if polled.Status != models.DuelStatusComplete || *polled.WinnerID != "bob" {
		t.Errorf("expected bob to win after recovery, got %s", polled.Status)
	}
}

func TestDuelService_Invalidate(t *testing.T) {
	f := newDuelFixture()

	// From PENDING.
	pending, _ := f.svc.Challenge("alice", "bob", true)
	duel, err := f.svc.Invalidate(pending.ID)
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if duel.Status != models.DuelStatusInvalidated {
		t.Errorf("status = %s, want invalidated", duel.Status)
	}
	if f.svc.GetActiveDuel("alice") != nil {
		t.Error("participants should be freed")
	}

	// From ONGOING, with no rating change.
	ongoing := f.startDuel(t, "carol", "dave", true)
	duel, err = f.svc.Invalidate(ongoing.ID)
	if err != nil {
		t.Fatalf("invalidate of ongoing duel failed: %v", err)
	}
	if duel.Status != models.DuelStatusInvalidated {
		t.Errorf("status = %s, want invalidated", duel.Status)
	}
	if f.store.calls() != 0 {
		t.Error("invalidate must never touch ratings")
	}

	// On a terminal duel it is a no-op.
	again, err := f.svc.Invalidate(ongoing.ID)
	if err != nil {
		t.Fatalf("repeat invalidate errored: %v", err)
	}
	if again.Status != models.DuelStatusInvalidated {
		t.Errorf("repeat invalidate status = %s", again.Status)
	}
}

func TestDuelService_GetHistory(t *testing.T) {
	f := newDuelFixture()

	duel := f.startDuel(t, "alice", "bob", true)
	f.verdicts.accept("alice", f.clock.Now().Add(time.Minute))
	f.clock.Advance(2 * time.Minute)
	if _, err := f.svc.PollOutcome(context.Background(), duel.ID); err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	history, err := f.svc.GetHistory("alice", 10)
	if err != nil {
		t.Fatalf("get history failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != duel.ID {
		t.Fatalf("history = %v, want the completed duel", history)
	}
}

func TestDuelService_PruneTerminal(t *testing.T) {
	f := newDuelFixture()

	duel, _ := f.svc.Challenge("alice", "bob", true)
	if _, err := f.svc.Decline(duel.ID, "bob"); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	if pruned := f.svc.PruneTerminal(time.Hour); pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	if _, err := f.svc.GetDuel(duel.ID); !errors.Is(err, ErrDuelNotFound) {
		t.Errorf("pruned duel lookup error = %v, want ErrDuelNotFound", err)
	}

	// History survives pruning.
	history, _ := f.svc.GetHistory("alice", 10)
	if len(history) != 1 {
		t.Errorf("history rows = %d, want 1", len(history))
	}
}

// TestDuelService_ActiveIndexInvariant hammers the service with random
// operations from many goroutines and then checks that no user is a
// participant in more than one live duel.
func TestDuelService_ActiveIndexInvariant(t *testing.T) {
	f := newDuelFixture()

	users := make([]string, 8)
	for i := range users {
		users[i] = fmt.Sprintf("user%d", i)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))

			for op := 0; op < 200; op++ {
				a := users[rnd.Intn(len(users))]
				b := users[rnd.Intn(len(users))]

				switch rnd.Intn(5) {
				case 0:
					_, _ = f.svc.Challenge(a, b, rnd.Intn(2) == 0)
				case 1:
					if duel := f.svc.GetActiveDuel(a); duel != nil {
						_, _ = f.svc.Accept(context.Background(), duel.ID, a)
					}
				case 2:
					if duel := f.svc.GetActiveDuel(a); duel != nil {
						_, _ = f.svc.Decline(duel.ID, a)
					}
				case 3:
					if duel := f.svc.GetActiveDuel(a); duel != nil {
						_, _ = f.svc.CheckExpiry(duel.ID)
					}
				case 4:
					if duel := f.svc.GetActiveDuel(a); duel != nil {
						_, _ = f.svc.Invalidate(duel.ID)
					}
				}
			}
		}(int64(w + 1))
	}
	wg.Wait()

	// Every user participates in at most one live duel, and every active
	// index entry points at a live duel they are actually part of.
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()

	liveCount := make(map[string]int)
	for _, entry := range f.svc.duels {
		entry.mu.Lock()
		if !entry.duel.Status.IsTerminal() {
			liveCount[entry.duel.ChallengerID]++
			if entry.duel.ChallengedID != entry.duel.ChallengerID {
				liveCount[entry.duel.ChallengedID]++
			}
		}
		entry.mu.Unlock()
	}
	for userID, count := range liveCount {
		if count > 1 {
			t.Errorf("user %s is in %d live duels, want at most 1", userID, count)
		}
	}

	for userID, duelID := range f.svc.active {
		entry, ok := f.svc.duels[duelID]
		if !ok {
			t.Errorf("active index for %s points at unknown duel %s", userID, duelID)
			continue
		}
		entry.mu.Lock()
		if entry.duel.Status.IsTerminal() {
			t.Errorf("active index for %s points at terminal duel %s", userID, duelID)
		}
		if entry.duel.ChallengerID != userID && entry.duel.ChallengedID != userID {
			t.Errorf("active index for %s points at a duel they are not part of", userID)
		}
		entry.mu.Unlock()
	}
}
