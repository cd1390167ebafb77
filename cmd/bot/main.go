package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flexa/stylebot/internal/admin"
	"github.com/flexa/stylebot/internal/ai"
	"github.com/flexa/stylebot/internal/config"
	"github.com/flexa/stylebot/internal/database"
	"github.com/flexa/stylebot/internal/notify"
	"github.com/flexa/stylebot/internal/observability"
	"github.com/flexa/stylebot/internal/ocr"
	"github.com/flexa/stylebot/internal/repository"
	"github.com/flexa/stylebot/internal/service"
	"github.com/flexa/stylebot/internal/storage"
	"github.com/flexa/stylebot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()
	observability.Register()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	sink := notify.NewTelegramSink(botAPI, cfg.AdminManualGroupID, cfg.AdminPaymentGroupID, cfg.AdminNewUserGroupID)
	outbox := notify.NewOutbox(sink, 256, logr)
	go outbox.Run(ctx)

	aiClient := ai.NewClient(ai.Config{
		APIKey:   cfg.AIAPIKey,
		BaseURL:  cfg.AIBaseURL,
		Provider: cfg.AIProvider,
		Timeout:  cfg.RequestTimeout,
	}, logr)
	ocrClient := ocr.NewClient(cfg.OCRBaseURL, cfg.OCRAPIKey, cfg.RequestTimeout, logr)

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	styleRepo := repository.NewStyleRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	retry := service.NewRetryPolicy(cfg.AIMaxAttempts, cfg.AIRetryDelay)

	userService := service.NewUserService(cfg, logr, userRepo, outbox)
	styleService := service.NewStyleService(logr, styleRepo)
	ledgerService := service.NewLedgerService(logr, ledgerRepo)
	generationService := service.NewGenerationService(logr, generationRepo, userRepo, styleRepo, aiClient, retry, outbox)
	paymentService := service.NewPaymentService(cfg, logr, paymentRepo, userRepo, ocrClient, outbox)

	go sweepStaleGenerations(ctx, generationService, cfg, logr)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, cfg.IsAdmin(), logr,
		userService, styleService, paymentService, generationService, ledgerService, statsRepo, uploader)
	if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("admin server stopped", "err", err)
	}
}

// sweepStaleGenerations periodically moves pending and processing generations
// that never got a provider answer into the manual queue so an operator sees
// them.
func sweepStaleGenerations(ctx context.Context, generations *service.GenerationService, cfg config.Config, logr *slog.Logger) {
	ticker := time.NewTicker(cfg.StaleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := generations.QueueStale(ctx, cfg.StalePendingAfter); err != nil {
				logr.Error("stale generation sweep", "err", err)
			}
		}
	}
}
