package api

import (
	"math/rand"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/iampjeetsingh/TLE/internal/api/handlers"
	"github.com/iampjeetsingh/TLE/internal/api/middleware"
	"github.com/iampjeetsingh/TLE/internal/config"
	"github.com/iampjeetsingh/TLE/internal/repository"
	"github.com/iampjeetsingh/TLE/internal/service"
	"github.com/iampjeetsingh/TLE/internal/websocket"
	"github.com/iampjeetsingh/TLE/pkg/database"
	"github.com/iampjeetsingh/TLE/pkg/judge"
	"github.com/iampjeetsingh/TLE/pkg/logger"
	"github.com/iampjeetsingh/TLE/pkg/ratelimit"
)

// SetupRouter API 라우터 설정.
// 스위퍼는 호출자가 종료 시 Stop할 수 있도록 함께 반환한다.
func SetupRouter(cfg *config.Config, db *database.DB, redisClient *redis.Client) (*gin.Engine, *service.SweeperService) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg))

	// 저지 API 클라이언트 초기화
	judgeClient := judge.NewClient(cfg.JudgeURL, cfg.JudgeTimeout)

	// Repository 초기화
	ratingRepo := repository.NewRatingRepository(db, cfg.RatingSeed)
	duelRepo := repository.NewDuelRepository(db)
	usageRepo := repository.NewProblemUsageRepository(redisClient, cfg.ProblemReuseTTL)

	// Service 초기화
	ratingService := service.NewRatingService(cfg.KFactor, cfg.RatingFloor)
	selectorService := service.NewSelectorService(
		judgeClient,
		usageRepo,
		cfg.RatingBucket,
		cfg.RatingSpread,
		cfg.WidenStep,
		cfg.MaxWidenings,
		rand.New(rand.NewSource(time.Now().UnixNano())),
	)
	duelService := service.NewDuelService(
		selectorService,
		judgeClient,
		ratingService,
		ratingRepo,
		duelRepo,
		cfg.AcceptDeadline,
		cfg.OngoingDeadline,
		cfg.AllowSelfDuel,
	)

	// WebSocket Hub 초기화 및 시작
	wsHub := websocket.NewHub()
	go wsHub.Run()
	duelService.SetNotifier(wsHub)
	logger.Info("WebSocket Hub started")

	// Sweeper 초기화 및 시작
	sweeper := service.NewSweeperService(duelService, cfg.SweepInterval)
	sweeper.Start()
	logger.Info("SweeperService started", "interval", cfg.SweepInterval)

	// 분산 Rate Limiter
	redisLimiter := ratelimit.NewRedisRateLimiter(redisClient, "duel:ratelimit:")

	// Handler 초기화
	duelHandler := handlers.NewDuelHandler(duelService)
	leaderboardHandler := handlers.NewLeaderboardHandler(ratingRepo)
	wsHandler := handlers.NewWebSocketHandler(wsHub)

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(middleware.GeneralAPIRateLimit())
	{
		// WebSocket endpoint
		v1.GET("/ws", middleware.Auth(cfg), wsHandler.HandleWebSocket)

		// Duel routes
		duels := v1.Group("/duels", middleware.Auth(cfg))
		{
			duels.POST("", middleware.RedisChallengeRateLimit(redisLimiter), duelHandler.Challenge)
			duels.GET("/active", duelHandler.GetActiveDuel)
			duels.GET("/history", duelHandler.GetHistory)
			duels.GET("/:id", duelHandler.GetDuel)
			duels.POST("/:id/accept", duelHandler.Accept)
			duels.POST("/:id/decline", duelHandler.Decline)
			duels.POST("/:id/poll", middleware.RedisPollRateLimit(redisLimiter), duelHandler.Poll)
			duels.POST("/:id/invalidate", middleware.RequireModerator(), duelHandler.Invalidate)
		}

		// Leaderboard routes
		leaderboard := v1.Group("/leaderboard")
		{
			leaderboard.GET("", leaderboardHandler.GetLeaderboard)
			leaderboard.GET("/:userId", leaderboardHandler.GetRating)
		}
	}

	return router, sweeper
}
