package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/dojaang-api/api/swagger"
	"github.com/noah-isme/dojaang-api/internal/handler"
	internalmiddleware "github.com/noah-isme/dojaang-api/internal/middleware"
	"github.com/noah-isme/dojaang-api/internal/models"
	"github.com/noah-isme/dojaang-api/internal/repository"
	"github.com/noah-isme/dojaang-api/internal/service"
	"github.com/noah-isme/dojaang-api/pkg/cache"
	"github.com/noah-isme/dojaang-api/pkg/config"
	"github.com/noah-isme/dojaang-api/pkg/database"
	"github.com/noah-isme/dojaang-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/dojaang-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/dojaang-api/pkg/middleware/requestid"
)

// @title Dojaang API
// @version 1.0.0
// @description Class scheduling, enrollment and attendance for martial-arts schools.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	var redisCheck handler.Pinger
	if cfg.Roster.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, roster cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			redisCheck = repo
		}
	}

	router := newRouter(cfg, logr, db, cacheRepo, redisCheck)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, cacheRepo service.CacheRepository, redisCheck handler.Pinger) *gin.Engine {
	validate := validator.New()
	metrics := service.NewMetricsService()

	classRepo := repository.NewTrainingClassRepository(db)
	slotRepo := repository.NewScheduleSlotRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	rosters := service.NewRosterCache(cacheRepo, metrics, cfg.Roster.CacheTTL, logr, cfg.Roster.CacheEnabled)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	classSvc := service.NewClassService(classRepo, slotRepo, enrollmentRepo, repository.NewCoachRepository(db), repository.NewDojaangRepository(db), db, rosters, metrics, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, repository.NewStudentRepository(db), classRepo, db, rosters, metrics, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, enrollmentSvc, classRepo, nil, metrics, service.AttendanceConfig{
		BatchMax:    cfg.Attendance.BatchMax,
		ExportTitle: cfg.Attendance.ExportTitle,
	}, validate, logr)

	classHandler := handler.NewClassHandler(classSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, enrollmentSvc)
	healthHandler := handler.NewHealthHandler(metrics, map[string]handler.Pinger{
		"postgres": handler.PingFunc(db.PingContext),
		"redis":    redisCheck,
	}, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", healthHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	adminOnly := internalmiddleware.RequireRoles(models.RoleAdmin)
	staff := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleCoach)
	anyone := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleCoach, models.RoleStudent)
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(auditRepo, logr, action, resource)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokens))

	classes := api.Group("/classes")
	classes.GET("", staff, classHandler.List)
	classes.GET("/:id", staff, classHandler.Get)
	classes.POST("", adminOnly, audit("CLASS_CREATE", "training_class"), classHandler.Create)
	classes.PUT("/:id", adminOnly, audit("CLASS_UPDATE", "training_class"), classHandler.Update)
	classes.DELETE("/:id", adminOnly, audit("CLASS_DELETE", "training_class"), classHandler.Delete)
	classes.POST("/:id/enrollments", staff, audit("ENROLL", "enrollment"), enrollmentHandler.Enroll)
	classes.GET("/:id/roster", staff, enrollmentHandler.Roster)
	classes.POST("/:id/attendance", staff, audit("ATTENDANCE_BATCH", "training_class"), attendanceHandler.RecordBatch)
	classes.GET("/:id/attendance", staff, attendanceHandler.ClassDay)
	classes.GET("/:id/attendance/export", staff, attendanceHandler.Export)

	api.GET("/coaches/:id/schedule", staff, classHandler.CoachSchedule)

	enrollments := api.Group("/enrollments")
	enrollments.GET("", staff, enrollmentHandler.List)
	enrollments.GET("/:id", staff, enrollmentHandler.Get)
	enrollments.POST("/:id/withdraw", staff, audit("WITHDRAW", "enrollment"), enrollmentHandler.Withdraw)
	enrollments.PUT("/:id/attendance", staff, audit("ATTENDANCE_RECORD", "enrollment"), attendanceHandler.Record)
	enrollments.GET("/:id/attendance", anyone, attendanceHandler.History)
	enrollments.GET("/:id/attendance/summary", anyone, attendanceHandler.Summary)

	return r
}
