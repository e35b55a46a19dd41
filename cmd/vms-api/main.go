package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/gatewise/vms-api/internal/handler"
	"github.com/gatewise/vms-api/internal/middleware"
	"github.com/gatewise/vms-api/internal/repository"
	"github.com/gatewise/vms-api/internal/service"
	"github.com/gatewise/vms-api/pkg/cache"
	"github.com/gatewise/vms-api/pkg/config"
	"github.com/gatewise/vms-api/pkg/database"
	"github.com/gatewise/vms-api/pkg/jobs"
	"github.com/gatewise/vms-api/pkg/logger"
	"github.com/gatewise/vms-api/pkg/mailer"
	corsmiddleware "github.com/gatewise/vms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/gatewise/vms-api/pkg/middleware/requestid"
	"github.com/gatewise/vms-api/pkg/sms"
	"github.com/gatewise/vms-api/pkg/storage"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	approverRepo := repository.NewApproverRepository(db)
	visitorRepo := repository.NewVisitorRepository(db)
	cardRepo := repository.NewCardRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)

	var sender sms.Sender
	if cfg.SMS.Enabled {
		sender, err = sms.NewTwilioSender(sms.Config{
			AccountSID:          cfg.SMS.AccountSID,
			AuthToken:           cfg.SMS.AuthToken,
			FromNumber:          cfg.SMS.FromNumber,
			SenderID:            cfg.SMS.SenderID,
			MessagingServiceSID: cfg.SMS.MessagingServiceSID,
			Timeout:             cfg.SMS.Timeout,
		}, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to init sms sender", "error", err)
		}
	} else {
		logr.Info("sms delivery disabled, alerts will be logged only")
	}

	var mail *mailer.Mailer
	if cfg.Email.Enabled {
		mail, err = mailer.New(mailer.Config{
			Host:        cfg.Email.Host,
			Port:        cfg.Email.Port,
			Username:    cfg.Email.Username,
			Password:    cfg.Email.Password,
			From:        cfg.Email.From,
			DisplayName: cfg.Email.DisplayName,
		}, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to init mailer", "error", err)
		}
	}

	store, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	var pending service.PendingStore
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck
		pending = service.NewRedisPendingStore(redisClient, cfg.Webhook.PendingTTL)
	} else {
		pending = service.NewMemoryPendingStore(cfg.Webhook.PendingTTL)
	}

	metricsSvc := service.NewMetricsService()

	notifications := service.NewNotificationService(
		sender, mail, approverRepo, appointmentRepo, cfg.SMS.DashboardURL,
		jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: cfg.Notifications.BufferSize,
			MaxRetries: cfg.Notifications.MaxRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
			Logger:     logr,
		}, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	authSvc := service.NewAuthService(approverRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     "vms-api",
	})
	approverSvc := service.NewApproverService(approverRepo, validate, logr)
	visitorSvc := service.NewVisitorService(visitorRepo, approverRepo, appointmentRepo, notifications,
		store, signer, validate, logr, service.VisitorConfig{
			QRPrefix:       cfg.Appointments.QRPrefix,
			DecisionsFinal: cfg.Decisions.Final,
			MaxImageBytes:  cfg.Storage.MaxFileSizeBytes,
		})
	cardSvc := service.NewCardService(cardRepo, visitorRepo, validate, logr)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, logr)
	webhookSvc := service.NewWebhookService(visitorRepo, approverRepo, visitorSvc, pending, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	approverHandler := handler.NewApproverHandler(approverSvc)
	visitorHandler := handler.NewVisitorHandler(visitorSvc, metricsSvc)
	cardHandler := handler.NewCardHandler(cardSvc)
	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc)
	webhookHandler := handler.NewWebhookHandler(webhookSvc, metricsSvc)
	filesHandler := handler.NewFilesHandler(store, signer)
	dashboardHandler := handler.NewDashboardHandler(visitorSvc, cardSvc, metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	r.GET("/files/:token", filesHandler.Serve)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)

	api.GET("/approvers/list", approverHandler.ListSimple)

	api.POST("/visitors/check-in", visitorHandler.CheckIn)
	api.POST("/visitors/check-in-with-image", visitorHandler.CheckInWithImage)
	api.POST("/visitors/google-form", visitorHandler.FormIntake)

	api.GET("/sms/webhook", webhookHandler.Health)
	api.POST("/sms/webhook", webhookHandler.Receive)

	api.GET("/appointments/qr/:code", appointmentHandler.VerifyQR)

	auth := api.Group("", middleware.JWT(authSvc))
	{
		auth.GET("/auth/me", authHandler.Me)

		auth.GET("/approvers", approverHandler.List)
		auth.GET("/approvers/:username", approverHandler.Get)
		auth.POST("/approvers", middleware.RequireSuperuser(), approverHandler.Create)
		auth.PUT("/approvers/:username", approverHandler.Update)
		auth.DELETE("/approvers/:username", middleware.RequireSuperuser(), approverHandler.Delete)

		auth.GET("/visitors", visitorHandler.List)
		auth.GET("/visitors/stats", visitorHandler.Stats)
		auth.GET("/visitors/active", visitorHandler.Active)
		auth.GET("/visitors/export", visitorHandler.Export)
		auth.GET("/visitors/phone/:number", visitorHandler.ByPhone)
		auth.GET("/visitors/:id", visitorHandler.Get)
		auth.PUT("/visitors/:id", visitorHandler.Update)
		auth.PATCH("/visitors/:id/status", visitorHandler.Decide)
		auth.DELETE("/visitors/:id", visitorHandler.Delete)

		auth.GET("/cards", cardHandler.List)
		auth.GET("/cards/available", cardHandler.Available)
		auth.GET("/cards/stats", cardHandler.Stats)
		auth.GET("/cards/visitor/:visitor_id", cardHandler.ForVisitor)
		auth.GET("/cards/:id", cardHandler.Get)
		auth.POST("/cards", cardHandler.Create)
		auth.PUT("/cards/:id", cardHandler.Update)
		auth.DELETE("/cards/:id", cardHandler.Delete)
		auth.POST("/cards/:id/assign", cardHandler.Assign)
		auth.POST("/cards/:id/release", cardHandler.Release)

		auth.GET("/appointments", appointmentHandler.List)
		auth.GET("/appointments/visitor/:visitor_id", appointmentHandler.ByVisitor)

		auth.GET("/dashboard", dashboardHandler.Summary)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown error", "error", err)
	}
}
