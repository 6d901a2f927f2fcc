package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/axidi/photoai-bot/config"
	"github.com/axidi/photoai-bot/db"
	"github.com/axidi/photoai-bot/internal/cache"
	"github.com/axidi/photoai-bot/internal/notify"
	"github.com/axidi/photoai-bot/internal/repository"
	"github.com/axidi/photoai-bot/internal/service"
	"github.com/axidi/photoai-bot/internal/webhook"
	"github.com/axidi/photoai-bot/utils"
)

func main() {
	logger := utils.InitLogger()
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}

	if err := db.Migrate(database, true, logger); err != nil {
		logger.Fatal(err)
	}

	var invalidator cache.Invalidator = cache.Noop{}
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "photoai")
		if err != nil {
			logger.Fatal("Failed to connect to Redis: ", err)
		}
		invalidator = redisCache
		logger.Info("✅ Redis cache connected")
	} else {
		logger.Info("Redis not configured, cache invalidation is a no-op")
	}

	telegramBot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal("Failed to create bot API: ", err)
	}

	me, err := telegramBot.GetMe()
	if err != nil {
		logger.Fatal("Failed to get bot identity: ", err)
	}

	notifier := notify.NewNotifier(
		telegramBot,
		me.UserName,
		cfg.OperatorIDs(),
		cfg.CriticalOperatorIDs(),
		logger,
	)

	repo := repository.NewRepository(database, logger)
	paymentService := service.NewService(repo, config.DefaultCatalog(), notifier, invalidator, logger)

	notifier.Startup(context.Background())

	server := webhook.NewServer(paymentService, logger)
	go func() {
		if err := server.Start(cfg.WebhookAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Webhook server stopped: ", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutdown signal received, draining webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Webhook server shutdown: ", err)
	}
}
