package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/andalan-id/service-center-api/api/swagger"
	"github.com/andalan-id/service-center-api/internal/handler"
	"github.com/andalan-id/service-center-api/internal/middleware"
	"github.com/andalan-id/service-center-api/internal/repository"
	"github.com/andalan-id/service-center-api/internal/service"
	"github.com/andalan-id/service-center-api/pkg/cache"
	"github.com/andalan-id/service-center-api/pkg/config"
	"github.com/andalan-id/service-center-api/pkg/database"
	"github.com/andalan-id/service-center-api/pkg/jobs"
	"github.com/andalan-id/service-center-api/pkg/logger"
	corsmiddleware "github.com/andalan-id/service-center-api/pkg/middleware/cors"
	reqidmiddleware "github.com/andalan-id/service-center-api/pkg/middleware/requestid"
)

// @title Service Center API
// @version 1.0.0
// @description Work item lifecycle engine: assignments, handoffs, SLA tickets
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, grants cache and response cache disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	workItemRepo := repository.NewWorkItemRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	userRepo := repository.NewUserRepository(db, cfg.Grants.Guard)
	grantsCache := repository.NewGrantsCache(redisClient, roleRepo, cfg.Grants.CacheTTL, logr)

	// Event queue consumes lifecycle notifications emitted after commits.
	eventQueue := jobs.NewQueue("lifecycle-events", func(ctx context.Context, job jobs.Job) error {
		logr.Sugar().Infow("lifecycle event", "type", job.Type, "subject_id", job.ID)
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr,
	})
	eventQueue.Start(ctx)
	defer eventQueue.Stop()

	// Services.
	metricsSvc := service.NewMetricsService()
	permissionSvc := service.NewPermissionService(grantsCache, cfg.Grants.Guard, logr)
	authSvc := service.NewAuthService(userRepo, activityRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "service-center-api",
	})
	workflowSvc := service.NewWorkflowService(
		db, workItemRepo, assignmentRepo, ticketRepo, activityRepo,
		permissionSvc, cfg.SLA, logr,
		service.WithWorkflowMetrics(metricsSvc),
		service.WithWorkflowEvents(eventQueue),
	)
	slaSvc := service.NewSlaService(
		db, ticketRepo, workItemRepo, assignmentRepo, activityRepo,
		permissionSvc, logr,
		service.WithSlaMetrics(metricsSvc),
		service.WithSlaEvents(eventQueue),
		service.WithSlaSweepBatch(cfg.SLA.SweepBatchSize),
	)
	workItemSvc := service.NewWorkItemService(
		db, workItemRepo, assignmentRepo, ticketRepo, activityRepo,
		permissionSvc, cfg.SLA, logr,
	)
	activitySvc := service.NewActivityService(activityRepo, permissionSvc)
	roleSvc := service.NewRoleService(roleRepo, grantsCache, permissionSvc, cfg.Grants.Guard, logr)
	exportSvc := service.NewExportService(workItemRepo, assignmentRepo, ticketRepo, permissionSvc, logr)

	sweeper := service.NewBreachSweeper(slaSvc, cfg.SLA, metricsSvc, logr)
	sweeper.Start(ctx)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	workItemHandler := handler.NewWorkItemHandler(workItemSvc, workflowSvc, activitySvc)
	assignmentHandler := handler.NewAssignmentHandler(workflowSvc)
	ticketHandler := handler.NewTicketHandler(slaSvc)
	roleHandler := handler.NewRoleHandler(roleSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.POST("/auth/change-password", authHandler.ChangePassword)
		protected.GET("/metrics/snapshot", metricsHandler.Snapshot)

		workItems := protected.Group("/work-items")
		{
			workItems.POST("", workItemHandler.Create)
			workItems.GET("", middleware.CacheGET(redisClient, cfg.Cache.ResponseTTL, logr), workItemHandler.List)
			workItems.GET("/:id", workItemHandler.Get)
			workItems.PUT("/:id", workItemHandler.Update)
			workItems.DELETE("/:id", workItemHandler.Delete)
			workItems.POST("/:id/complete", workItemHandler.Complete)
			workItems.POST("/:id/cancel", workItemHandler.Cancel)
			workItems.GET("/:id/history", workItemHandler.History)
			workItems.GET("/:id/activity", workItemHandler.Activity)
		}

		assignments := protected.Group("/assignments")
		{
			assignments.POST("", assignmentHandler.Create)
			assignments.GET("/:id", assignmentHandler.Get)
			assignments.POST("/:id/accept", assignmentHandler.Accept)
			assignments.POST("/:id/start", assignmentHandler.Start)
			assignments.POST("/:id/submit", assignmentHandler.Submit)
			assignments.POST("/:id/approve", assignmentHandler.Approve)
			assignments.POST("/:id/reject", assignmentHandler.Reject)
			assignments.POST("/:id/handoff", assignmentHandler.Handoff)
		}

		tickets := protected.Group("/sla-tickets")
		{
			tickets.POST("", ticketHandler.Open)
			tickets.GET("", ticketHandler.List)
			tickets.GET("/:id", ticketHandler.Get)
			tickets.POST("/:id/acknowledge", ticketHandler.Acknowledge)
			tickets.POST("/:id/resolve", ticketHandler.Resolve)
			tickets.POST("/sweep",
				middleware.RequireAbility(permissionSvc, service.AbilityResolveTicket),
				ticketHandler.Sweep)
		}

		roles := protected.Group("/roles")
		{
			roles.POST("", roleHandler.CreateRole)
			roles.GET("", roleHandler.ListRoles)
			roles.POST("/permissions", roleHandler.AttachPermission)
			roles.DELETE("/permissions", roleHandler.DetachPermission)
			roles.POST("/assign", roleHandler.AssignRole)
			roles.POST("/revoke", roleHandler.RevokeRole)
		}
		protected.POST("/permissions", roleHandler.CreatePermission)
		protected.GET("/permissions", roleHandler.ListPermissions)

		if cfg.Exports.Enabled {
			protected.GET("/exports/work-orders/:id", exportHandler.WorkOrder)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
