package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/api/handler"
	"github.com/sanosuguru/go-event-ticketing/internal/api/router"
	"github.com/sanosuguru/go-event-ticketing/internal/application"
	"github.com/sanosuguru/go-event-ticketing/internal/config"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/credential"
	"github.com/sanosuguru/go-event-ticketing/internal/infrastructure/messaging"
	"github.com/sanosuguru/go-event-ticketing/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-event-ticketing/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-ticketing/internal/notification"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
	"github.com/sanosuguru/go-event-ticketing/internal/worker"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "設定ファイルのパス（YAML/TOML/JSON）")
	migrationsPath := pflag.String("migrations", "migrations", "マイグレーションファイルのディレクトリ")
	envFile := pflag.String("env", ".env", "読み込む .env ファイル")
	pflag.Parse()

	if err := run(*configFile, *migrationsPath, *envFile); err != nil {
		logger.Error("起動に失敗しました", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(configFile, migrationsPath, envFile string) error {
	// .env はローカル開発用。なくてもよい
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf(".env の読み込みに失敗: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Set(logger.NewLogger(cfg.Server.Env, cfg.Log.Level))
	defer func() { _ = logger.Sync() }()
	m := metrics.Init()

	loc, err := cfg.Ticketing.Location()
	if err != nil {
		return err
	}
	encoder, err := credential.NewEncoder([]byte(cfg.Ticketing.CredentialSecret))
	if err != nil {
		return err
	}

	// DB
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		return err
	}
	logger.Info("データベースに接続しました")

	// Redis は任意。無効なら購入ロックと在庫キャッシュなしで動く
	var (
		redisClient *redis.Client
		locker      redisinfra.Locker
		cache       application.AvailabilityCache
	)
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = redisinfra.Connect(ctx, &cfg.Redis)
		cancel()
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = redisinfra.NewLockManager(redisClient)
		cache = redisinfra.NewAvailabilityCache(redisClient)
		logger.Info("Redisに接続しました")
	}

	publisher, err := newPublisher(&cfg.Notification)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("通知送信先のクローズに失敗", zap.Error(err))
		}
	}()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	dispatcher := worker.NewNotificationDispatcher(publisher, worker.DispatcherConfig{
		Workers:      cfg.Notification.Workers,
		QueueSize:    cfg.Notification.QueueSize,
		MaxRetries:   cfg.Notification.MaxRetries,
		RetryBackoff: cfg.Notification.RetryBackoff,
	})
	dispatcher.Start(workerCtx)

	// サービス
	eventRepo := postgres.NewEventRepository(db)
	ticketRepo := postgres.NewTicketRepository(db)
	txManager := postgres.NewTxManager(db)

	inventory := application.NewInventoryService(eventRepo, cache, cfg.Ticketing.AvailabilityCacheTTL)
	eventService := application.NewEventService(eventRepo, inventory)
	issuance := application.NewIssuanceService(txManager, eventRepo, ticketRepo, encoder, inventory, locker, dispatcher, loc)
	issuance.SetPurchaseLockTTL(cfg.Ticketing.PurchaseLockTTL)
	ticketService := application.NewTicketService(txManager, eventRepo, ticketRepo, inventory)
	checkIn := application.NewCheckInService(txManager, eventRepo, ticketRepo, encoder, loc)

	var reconciler *worker.InventoryReconciler
	if cfg.Worker.ReconcileEnabled {
		reconciler = worker.NewInventoryReconciler(inventory, cfg.Worker.ReconcileInterval)
		go reconciler.Start(workerCtx)
	}

	e := router.New(router.Handlers{
		Event:   handler.NewEventHandler(eventService, inventory),
		Ticket:  handler.NewTicketHandler(issuance, ticketService),
		CheckIn: handler.NewCheckInHandler(checkIn),
		Health:  handler.NewHealthHandler(healthChecks(db, redisClient)),
	}, router.Options{
		Metrics:     m,
		MetricsAuth: cfg.Metrics,
		HideBanner:  true,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("サーバーを起動します", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}

	// 受付を止めてから送信待ちの通知を流し切る
	if reconciler != nil {
		reconciler.Stop()
	}
	dispatcher.Stop()

	logger.Info("サーバーが正常にシャットダウンしました")
	return nil
}

func newPublisher(cfg *config.NotificationConfig) (notification.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		logger.Info("購入通知をKafkaへ送信します", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "rabbitmq":
		logger.Info("購入通知をRabbitMQへ送信します", zap.String("queue", cfg.RabbitMQQueue))
		p, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return notification.NewLogPublisher(logger.Get()), nil
	}
}

func healthChecks(db *sqlx.DB, rc *redis.Client) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}
	return checks
}
