package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"anoa.com/kudosfeed/internal/config"
	"anoa.com/kudosfeed/internal/gateway"
	"anoa.com/kudosfeed/internal/middleware"
	"anoa.com/kudosfeed/internal/model"
	"anoa.com/kudosfeed/internal/scheduler"
	"anoa.com/kudosfeed/pkg/storage"

	"anoa.com/kudosfeed/internal/modules/feed/cache"
	feedHttp "anoa.com/kudosfeed/internal/modules/feed/delivery/http"
	feedRepo "anoa.com/kudosfeed/internal/modules/feed/repository"
	feed "anoa.com/kudosfeed/internal/modules/feed/service"

	leaderboardHttp "anoa.com/kudosfeed/internal/modules/leaderboard/delivery/http"
	leaderboardRepo "anoa.com/kudosfeed/internal/modules/leaderboard/repository"
	leaderboardService "anoa.com/kudosfeed/internal/modules/leaderboard/service"

	notiHttp "anoa.com/kudosfeed/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/kudosfeed/internal/modules/notification/repository"
	notifService "anoa.com/kudosfeed/internal/modules/notification/service"

	profileHttp "anoa.com/kudosfeed/internal/modules/profile/delivery/http"
	profileRepo "anoa.com/kudosfeed/internal/modules/profile/repository"
	profileService "anoa.com/kudosfeed/internal/modules/profile/service"

	realtime "anoa.com/kudosfeed/internal/modules/realtime/service"
	searchService "anoa.com/kudosfeed/internal/modules/search/service"
	userRepo "anoa.com/kudosfeed/internal/modules/user/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const eventBuffer = 256

// Dependencies are the external clients the server is built on. Redis, Meili
// and Images may be nil; the matching features degrade.
type Dependencies struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Meili  meilisearch.ServiceManager
	Images storage.ImageStorage
	Clock  clockwork.Clock
}

// AppState is the process-wide state shared by handlers and background workers.
// It is built once in NewServer and passed by reference.
type AppState struct {
	Cache         *cache.FeedCache
	Paginator     *feed.Paginator
	Hub           *feed.Hub
	Kudos         feed.KudosService
	Notifications notifService.NotificationService
	Leaderboard   leaderboardService.LeaderboardService
	Profiles      profileService.ProfileService
	Merger        *realtime.Merger
	Events        chan model.ChangeEvent
}

type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	state      *AppState
	subscriber *realtime.Subscriber
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	gw := gateway.NewGateway(deps.DB)
	users := userRepo.NewUserRepository(gw)
	search := searchService.NewMeiliSearchService(deps.Meili, logger.Named("search"))

	state := &AppState{
		Cache:  cache.New(),
		Hub:    feed.NewHub(),
		Events: make(chan model.ChangeEvent, eventBuffer),
	}
	publisher := realtime.NewPublisher(deps.Redis, cfg.RealtimeChannel, state.Events)

	// Notification Module
	state.Notifications = notifService.NewNotificationService(notifRepo.NewNotificationRepository(gw), deps.Redis, publisher, clk, logger.Named("notification"))
	notificationHandler := notiHttp.NewNotificationHandler(state.Notifications, deps.Redis, logger.Named("notification"))

	// Feed Module
	kudosRepo := feedRepo.NewFeedRepository(gw)
	state.Paginator = feed.NewPaginator(feed.NewPageSource(kudosRepo, search, logger.Named("feed")), state.Cache, logger.Named("paginator"))
	state.Paginator.OnPage(state.Hub.Broadcast)
	state.Kudos = feed.NewKudosService(kudosRepo, state.Cache, users, state.Notifications, publisher, search, deps.Images, deps.Redis,
		feed.Limits{Global: cfg.RateLimitGlobal, Kudos: cfg.RateLimitKudos}, clk, logger.Named("kudos"))
	feedHandler := feedHttp.NewFeedHandler(state.Paginator, state.Kudos, state.Hub, deps.Images, cfg.CloudinaryUploadFolder, clk, cfg.SearchDebounce, logger.Named("feed"))

	state.Merger = realtime.NewMerger(kudosRepo, state.Cache, state.Notifications, state.Hub.Broadcast, cfg.RealtimeWorkers, logger.Named("realtime"))

	state.Leaderboard = leaderboardService.NewLeaderboardService(leaderboardRepo.NewLeaderboardRepository(gw), users, deps.Redis, cfg.LeaderboardCacheTTL, clk, logger.Named("leaderboard"))
	leaderboardHandler := leaderboardHttp.NewLeaderboardHandler(state.Leaderboard)

	state.Profiles = profileService.NewProfileService(profileRepo.NewProfileRepository(gw), users, clk, cfg.StreakLocation, logger.Named("profile"))
	profileHandler := profileHttp.NewProfileHandler(state.Profiles)

	s := &Server{cfg: cfg, state: state, logger: logger}
	if deps.Redis != nil {
		s.subscriber = realtime.NewSubscriber(deps.Redis, cfg.RealtimeChannel, logger.Named("realtime"))
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	setupCORS(router, cfg.AllowedOrigins)
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
	}))

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Feed routes
		protected.GET("/feed", feedHandler.GetFeed)
		protected.POST("/feed/refresh", feedHandler.RefreshFeed)
		protected.GET("/feed/ws", feedHandler.FeedSocket)

		// Kudos routes
		protected.POST("/kudos", feedHandler.CreateKudos)
		protected.PUT("/kudos/:id", feedHandler.UpdateKudos)
		protected.DELETE("/kudos/:id", feedHandler.DeleteKudos)
		protected.POST("/kudos/:id/reactions", feedHandler.React)
		protected.POST("/kudos/:id/comments", feedHandler.CreateComment)
		protected.PUT("/comments/:id", feedHandler.UpdateComment)
		protected.DELETE("/comments/:id", feedHandler.DeleteComment)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)

		// Other protected routes
		protected.GET("/leaderboard", leaderboardHandler.GetLeaderboard)
		protected.GET("/profile/:id/stats", profileHandler.GetStats)
		protected.POST("/upload", feedHandler.UploadImage)
	}
	s.engine = router

	return s, nil
}

// State exposes the shared application state.
func (s *Server) State() *AppState {
	return s.state
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on addr and runs the realtime workers and cron jobs until ctx
// is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	sched := scheduler.New(ctx, s.logger.Named("scheduler"))
	if err := sched.Register(scheduler.NewFeedResync(s.cfg.FeedResyncSchedule, s.state.Paginator, feed.ErrFetchInFlight, s.state.Hub.Broadcast, s.logger)); err != nil {
		return err
	}
	if err := sched.Register(scheduler.NewLeaderboardWarm(s.cfg.LeaderboardWarmSchedule, s.state.Leaderboard)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	g.Go(func() error {
		return s.state.Merger.Run(ctx, s.state.Events)
	})
	if s.subscriber != nil {
		g.Go(func() error {
			return s.subscriber.Run(ctx, s.state.Events, nil)
		})
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.state.Notifications.Wait()
		return err
	})

	return g.Wait()
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
