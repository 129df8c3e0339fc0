package service

import (
	"context"
	"sync"
	"time"

	"github.com/iampjeetsingh/TLE/internal/models"
	"go.uber.org/zap"
)

// terminalKeepFor 종료 듀얼을 메모리에 유지하는 기간
const terminalKeepFor = time.Hour

// SweeperService 주기적으로 모든 활성 듀얼의 기한과 판정을 확인
type SweeperService struct {
	duelService *DuelService
	logger      *zap.Logger
	interval    time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
	running     bool
	mu          sync.Mutex
}

func NewSweeperService(duelService *DuelService, interval time.Duration) *SweeperService {
	logger, _ := zap.NewProduction()

	return &SweeperService{
		duelService: duelService,
		logger:      logger,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start 스윕 시작
func (s *SweeperService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting SweeperService", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop 스윕 중지
func (s *SweeperService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping SweeperService")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("SweeperService stopped")
}

// sweepLoop 주기적 스윕 실행
func (s *SweeperService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 시작 시 한번 실행
	s.runSweep()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.stopChan:
			return
		}
	}
}

// runSweep 모든 활성 듀얼에 대해 기한 확인 후 판정 폴링.
// 개별 듀얼의 실패는 다음 사이클에서 재시도되므로 로그만 남긴다.
func (s *SweeperService) runSweep() {
	ctx := context.Background()

	ids := s.duelService.LiveDuelIDs()
	if len(ids) > 0 {
		s.logger.Debug("Sweeping live duels", zap.Int("count", len(ids)))
	}

	for _, duelID := range ids {
		select {
		case <-s.stopChan:
			return
		default:
		}

		duel, err := s.duelService.CheckExpiry(duelID)
		if err != nil {
			s.logger.Error("Failed to check duel expiry",
				zap.String("duelId", duelID),
				zap.Error(err))
			continue
		}

		if duel.Status != models.DuelStatusOngoing {
			continue
		}

		if _, err := s.duelService.PollOutcome(ctx, duelID); err != nil {
			s.logger.Warn("Failed to poll duel outcome",
				zap.String("duelId", duelID),
				zap.Error(err))
		}
	}

	if pruned := s.duelService.PruneTerminal(terminalKeepFor); pruned > 0 {
		s.logger.Debug("Pruned terminal duels", zap.Int("count", pruned))
	}
}
