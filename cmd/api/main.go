package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/attendify/attendify-api/api/swagger"
	"github.com/attendify/attendify-api/internal/handler"
	"github.com/attendify/attendify-api/internal/middleware"
	"github.com/attendify/attendify-api/internal/models"
	"github.com/attendify/attendify-api/internal/repository"
	"github.com/attendify/attendify-api/internal/service"
	"github.com/attendify/attendify-api/pkg/cache"
	"github.com/attendify/attendify-api/pkg/config"
	"github.com/attendify/attendify-api/pkg/database"
	"github.com/attendify/attendify-api/pkg/logger"
	corsmiddleware "github.com/attendify/attendify-api/pkg/middleware/cors"
	reqidmiddleware "github.com/attendify/attendify-api/pkg/middleware/requestid"
	"github.com/attendify/attendify-api/pkg/qr"
)

// @title Attendify API
// @version 1.0.0
// @description QR-code attendance tracking for classrooms
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, qr view caching disabled", "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	classService := service.NewClassService(classRepo, studentRepo, validate, logr)
	sessionService := service.NewSessionService(sessionRepo, classRepo, cacheRepo,
		qr.NewPNGEncoder(cfg.Sessions.QRImageSize), metrics, validate, logr, service.SessionConfig{
			DefaultDuration: cfg.Sessions.DefaultDuration,
			QRViewCacheTTL:  cfg.Sessions.QRViewCacheTTL,
		})
	attendanceService := service.NewAttendanceService(attendanceRepo, studentRepo, sessionRepo, metrics, validate, logr)

	authHandler := handler.NewAuthHandler(authService)
	classHandler := handler.NewClassHandler(classService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := middleware.JWT(authService)
	teacherOnly := middleware.RequireRoles(models.RoleTeacher)
	studentOnly := middleware.RequireRoles(models.RoleStudent)
	scanLimiter := middleware.NewRateLimiter(cfg.Scan.RateLimitPerMinute, cfg.Scan.RateLimitBurst)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/me", auth, authHandler.Me)

		classes := api.Group("/classes", auth)
		{
			classes.GET("", classHandler.List)
			classes.POST("", teacherOnly, classHandler.Create)
			classes.GET("/mine", teacherOnly, classHandler.ListMine)
			classes.GET("/:classId/students", teacherOnly, classHandler.Roster)
			classes.POST("/:classId/students", teacherOnly, classHandler.AddStudent)
			classes.DELETE("/:classId/students/:studentId", teacherOnly, classHandler.RemoveStudent)
		}

		api.GET("/students/profile", auth, studentOnly, classHandler.Profile)

		sessions := api.Group("/sessions", auth)
		{
			sessions.POST("", teacherOnly, sessionHandler.Create)
			sessions.GET("/active/:classId", sessionHandler.Active)
			sessions.POST("/:token/end", teacherOnly, sessionHandler.End)
		}

		attendance := api.Group("/attendance", auth)
		{
			attendance.POST("/mark", studentOnly, scanLimiter.Middleware(), attendanceHandler.Mark)
			attendance.GET("/qr/:classId", sessionHandler.QRView)
			attendance.GET("/history", studentOnly, attendanceHandler.History)
			attendance.GET("/report", teacherOnly, attendanceHandler.Report)
			attendance.GET("/report/export", teacherOnly, attendanceHandler.Export)
			attendance.GET("/summary", teacherOnly, attendanceHandler.Summary)
			attendance.GET("/sessions/:token/average", teacherOnly, attendanceHandler.SessionAverage)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
