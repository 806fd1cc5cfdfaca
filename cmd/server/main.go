package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/config"
	"github.com/iliyamo/membership-ledger/internal/database"
	"github.com/iliyamo/membership-ledger/internal/handler"
	"github.com/iliyamo/membership-ledger/internal/logging"
	"github.com/iliyamo/membership-ledger/internal/middleware"
	"github.com/iliyamo/membership-ledger/internal/queue"
	"github.com/iliyamo/membership-ledger/internal/repository"
	"github.com/iliyamo/membership-ledger/internal/repository/memory"
	"github.com/iliyamo/membership-ledger/internal/router"
	"github.com/iliyamo/membership-ledger/internal/scheduler"
	"github.com/iliyamo/membership-ledger/internal/service"
)

// store is what the server needs from a storage driver: the service
// interfaces plus token registration for seeding.
type store interface {
	service.Store
	RegisterToken(ctx context.Context, tokenID uint64, holder string) error
}

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.IsDev(), cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st store
		db handler.Pinger
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; state is lost on restart")
		st = memory.New()
	default:
		dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err := database.Migrate(dsn); err != nil {
			logger.Fatal("migrate database", zap.Error(err))
		}
		sqlDB, err := database.Open(dsn)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		defer sqlDB.Close()
		st, db = repository.NewStore(sqlDB), sqlDB
	}
	for id, holder := range cfg.SeedTokens {
		if err := st.RegisterToken(ctx, id, holder); err != nil {
			logger.Fatal("seed token", zap.Uint64("token_id", id), zap.Error(err))
		}
	}

	notifiers := service.Notifiers{service.NewLogNotifier(logger)}
	if cfg.PublishEvents {
		pub := queue.NewPublisher(cfg.RabbitURL, logger)
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}
	if cfg.AuditConsumer {
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, queue.DefaultAuditLog, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	auth := service.NewRoleAuthorizer(cfg.AdminAddresses)
	opts := []service.Option{service.WithLogger(logger), service.WithNotifier(notifiers)}
	ledger := service.NewBenefitLedger(st, auth, opts...)
	registry := service.NewEventRegistry(st, auth, opts...)
	engine := service.NewBookingEngine(st, registry, auth, opts,
		service.WithDefaultEntrances(cfg.DefaultTokenEntrances),
		service.WithMaxCancellations(cfg.MaxCancellationsAllowed),
		service.WithCancellationCutoff(cfg.CancellationCutoff),
		service.WithAccessRedeemer(ledger),
	)

	job := scheduler.NewEventExpiryJob(registry, cfg.EventExpirySchedule, cfg.EventExpiryGrace, nil, logger)
	if err := job.Start(); err != nil {
		logger.Fatal("start event expiry job", zap.Error(err))
	}
	defer job.Stop()

	limit := middleware.NewTokenBucket(cfg.RateLimit, nil, logger)
	if rdb := config.NewRedisClient(ctx); rdb != nil {
		defer rdb.Close()
		limit = middleware.NewTokenBucket(cfg.RateLimit, rdb, logger)
	} else if cfg.RateLimit.Enabled {
		logger.Warn("redis unreachable; rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(logger))
	router.RegisterRoutes(e, db)
	router.RegisterAPI(e, handler.New(ledger, registry, engine, logger), cfg.JWTSecret, limit)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
