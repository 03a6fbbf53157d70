package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adpilot/internal/api"
	"adpilot/internal/business"
	"adpilot/internal/campaign"
	"adpilot/internal/config"
	"adpilot/internal/conversation"
	"adpilot/internal/database"
	"adpilot/internal/generation"
	"adpilot/internal/intake"
	"adpilot/internal/logging"
	"adpilot/internal/meta"
	"adpilot/internal/organic"
	"adpilot/internal/poll"
	"adpilot/internal/runs"
	"adpilot/internal/state"
	"adpilot/internal/webhook"
	"adpilot/internal/whatsapp"
	"adpilot/internal/ws"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitGorm(cfg, logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	database.SyncConfig(db, cfg, logger)

	metaClient := meta.NewClient(cfg)
	directory := business.NewDirectory(db, metaClient, logger)

	var captions generation.TextGenerator = generation.NewMockText()
	if cfg.GeminiAPIKey != "" {
		gemini, err := generation.NewGeminiCaptioner(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Fatal("gemini client init failed", zap.Error(err))
		}
		captions = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, captions use the offline generator")
	}
	var images generation.ImageGenerator = generation.NewMockImage()
	if cfg.ImageAPIKey != "" {
		images = generation.NewImageClient(cfg.ImageAPIURL, cfg.ImageAPIKey, cfg.ImageModel)
	} else {
		logger.Warn("IMAGE_API_KEY not set, images use placeholder urls")
	}

	store := state.NewManager(state.NewGormStore(db))
	machine := intake.NewMachine(store, directory, captions, images, logger.Named("intake"))
	builder := campaign.NewBuilder(metaClient, logger.Named("campaign"), campaign.Options{
		CountryCode:   cfg.DefaultCountryCode,
		TargetCountry: cfg.TargetCountry,
	})
	publisher := organic.NewPublisher(metaClient, poll.Policy{
		MaxAttempts: cfg.PublishPollAttempts,
		Delay:       cfg.PublishPollDelay,
	}, organic.NewHTTPImageChecker(), logger.Named("organic"))
	recorder := runs.NewRecorder(db)

	hub := ws.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	router := conversation.NewRouter(machine, builder, publisher, directory, store, recorder, hub, conversation.Options{
		AutoExecute: cfg.AutoExecute,
		SystemToken: cfg.MetaSystemToken,
	}, logger.Named("conversation"))

	whatsappClient := whatsapp.NewClient(cfg, logger.Named("whatsapp"))
	webhookHandler := webhook.NewHandler(cfg, router, directory, whatsappClient, logger.Named("webhook"))
	conversationHandler := api.NewConversationHandler(router, recorder, logger.Named("api"))
	businessHandler := api.NewBusinessHandler(directory)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	// Dashboard events
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	api.Register(r.Group("/api"), conversationHandler, businessHandler)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("port", cfg.Port), zap.Bool("auto_execute", cfg.AutoExecute))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("failed to run server", zap.Error(err))
	}
	logger.Info("server stopped")
}
