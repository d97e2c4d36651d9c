package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prasetya/receiptbot/internal"
	"github.com/prasetya/receiptbot/internal/core/events"
	"github.com/prasetya/receiptbot/internal/extraction"
	"github.com/prasetya/receiptbot/internal/filegate"
	"github.com/prasetya/receiptbot/internal/ratelimit"
	"github.com/prasetya/receiptbot/internal/receipt"
	receiptpg "github.com/prasetya/receiptbot/internal/receipt/postgres"
	"github.com/prasetya/receiptbot/internal/storage"
	"github.com/prasetya/receiptbot/internal/transport/rest"
	"github.com/prasetya/receiptbot/internal/user"
	userpg "github.com/prasetya/receiptbot/internal/user/postgres"
	"github.com/prasetya/receiptbot/internal/workflow"
	"github.com/prasetya/receiptbot/pkg/logger"
)

var serverCmd = &cobra.Command{
	RunE:  runServer,
	Use:   "server",
	Short: "run the receipt bot http server",
}

type dependencies struct {
	router   *chi.Mux
	db       *gorm.DB
	gemini   *extraction.Gemini
	uploader *storage.Uploader
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.L()

	deps, err := initializeDependencies(cfg)
	if err != nil {
		lg.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           deps.router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		lg.Info("starting http server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("http server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("server forced to shutdown", "error", err)
	}

	deps.uploader.Stop()
	deps.gemini.Close()

	if sqlDB, err := deps.db.DB(); err == nil {
		sqlDB.Close()
	}

	lg.Info("server exited")
	return nil
}

func initializeDependencies(cfg *internal.Config) (*dependencies, error) {
	lg := logger.L()

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	blobs, err := buildBlobStorage(cfg)
	if err != nil {
		return nil, err
	}

	userRepo := userpg.NewUserRepository(db)
	receiptRepo := receiptpg.NewReceiptRepository(db)

	bus := events.NewEventBus(lg)
	bus.Subscribe(user.EventUserPendingApproval, func(ctx context.Context, ev events.Event) error {
		// The chat frontend polls /admin/users/pending; this log line is the
		// server-side trace of the same signal.
		lg.Info("user awaiting approval", "event_id", ev.EventID(), "payload", ev.Payload())
		return nil
	})

	userService := user.NewService(userRepo, cfg.Admin.UserID, bus, lg)
	receiptService := receipt.NewService(receiptRepo, lg)

	limiter := ratelimit.NewLimiter(cfg.Limits.RateLimitRequests, cfg.Limits.RateLimitWindow, lg)
	gate := filegate.NewGate(cfg.Limits.MaxFileSizeBytes, cfg.Limits.TempDir, lg)

	gemini, err := extraction.NewGemini(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model, lg)
	if err != nil {
		return nil, fmt.Errorf("init gemini adapter: %w", err)
	}

	uploader := storage.NewUploader(blobs, 2, 64, lg)
	uploader.OnStored = func(ctx context.Context, receiptID int64, ref string) {
		if err := receiptRepo.UpdateMediaRef(ctx, receiptID, ref); err != nil {
			lg.Error("failed to record recovered media ref", "receipt_id", receiptID, "error", err)
		}
	}

	wf := workflow.New(
		userService,
		limiter,
		gate,
		gemini,
		receiptService,
		blobs,
		uploader,
		workflow.Config{AITimeout: cfg.Gemini.Timeout},
		lg,
	)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(
		router,
		sqlDB,
		workflow.NewHandler(wf),
		receipt.NewHandler(receiptService),
		user.NewHandler(userService),
		cfg.Admin.UserID,
		lg,
	)

	return &dependencies{
		router:   router,
		db:       db,
		gemini:   gemini,
		uploader: uploader,
	}, nil
}

func buildBlobStorage(cfg *internal.Config) (storage.BlobStorage, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		return storage.NewGCSStorage(context.Background(), cfg.Storage.GCSBucket)
	default:
		return storage.NewLocalStorage(cfg.Storage.LocalPath)
	}
}
