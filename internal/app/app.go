package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lingua_exam_backend/internal/config"
	"lingua_exam_backend/internal/controller"
	"lingua_exam_backend/internal/repository"
	"lingua_exam_backend/internal/service"
	"lingua_exam_backend/internal/session"
	"lingua_exam_backend/pkg/database"
	"lingua_exam_backend/pkg/logger"
	"lingua_exam_backend/pkg/monitoring"
	"lingua_exam_backend/pkg/security"
	"lingua_exam_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
	stop     chan struct{}
}

type repositories struct {
	user       *repository.UserRepository
	exam       *repository.ExamRepository
	attempt    *repository.AttemptRepository
	submission *repository.SubmissionRepository
}

type services struct {
	auth       *service.AuthService
	exam       *service.ExamService
	storage    *service.StorageService
	audio      *service.AudioService
	attempt    *service.AttemptService
	submission *service.SubmissionService
	sessions   *session.Manager
	streams    *service.StreamHub
}

type controllers struct {
	auth       *controller.AuthController
	exam       *controller.ExamController
	attempt    *controller.AttemptController
	submission *controller.SubmissionController
	review     *controller.ReviewController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		exam:       repository.NewExamRepository(db),
		attempt:    repository.NewAttemptRepository(db),
		submission: repository.NewSubmissionRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.exam = service.NewExamService(repos.exam)
	s.audio = service.NewAudioService(s.storage, logger.Log, cfg.Exam.MaxAudioUploadMB)
	s.sessions = session.NewManager()
	s.streams = service.NewStreamHub()
	s.attempt = service.NewAttemptService(
		repos.attempt,
		repos.submission,
		repos.exam,
		s.sessions,
		s.streams,
		s.audio,
		rdb,
		cfg,
		logger.Log,
	)
	s.submission = service.NewSubmissionService(repos.submission)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		exam:       controller.NewExamController(s.exam),
		attempt:    controller.NewAttemptController(s.attempt, s.streams),
		submission: controller.NewSubmissionController(s.attempt, s.submission, s.audio),
		review:     controller.NewReviewController(s.submission),
		health:     controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(func(c *gin.Context) {
		c.Set("config", cfg)
		c.Next()
	})
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 6000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks runs the periodic sweeps: reaping sessions that
// auto-submitted on timeout, and abandoning attempt rows orphaned by a crash.
func (a *App) startBackgroundTasks(s *services, repos *repositories) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.attempt.ReapSubmitted(context.Background())
			case <-a.stop:
				return
			}
		}
	}()

	go func() {
		// anything started before the process came up cannot have a live session
		n, err := repos.attempt.AbandonStale(time.Now())
		if err != nil {
			logger.Log.Error("abandon stale attempts", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Log.Info("stale attempts abandoned", zap.Int64("count", n))
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// attempt presence degrades to the in-process registry without Redis
		logger.Log.Warn("Redis unavailable, single-replica presence only", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		stop:   make(chan struct{}),
	}

	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("lingua-exam", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services, repos)

	return app
}

// ApplyConfig picks up reloadable settings from a config-file change. Only
// per-request limits move; live sessions keep the parameters they started
// with, and server/database settings need a restart.
func (a *App) ApplyConfig(newCfg *config.Config) {
	if a.services == nil {
		return
	}
	a.services.audio.MaxUploadBytes = int64(newCfg.Exam.MaxAudioUploadMB) << 20
	a.Config.Exam = newCfg.Exam
	logger.Log.Info("config reloaded",
		zap.Int("maxAudioUploadMB", newCfg.Exam.MaxAudioUploadMB),
		zap.Int("attemptPresenceTTLMinutes", newCfg.Exam.AttemptPresenceTTLMinutes))
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	close(a.stop)

	// drain every live attempt session before the process goes away
	if a.services != nil {
		a.services.sessions.CloseAll()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
