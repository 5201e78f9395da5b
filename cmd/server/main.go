package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"invoice-recon/internal/ai"
	"invoice-recon/internal/config"
	"invoice-recon/internal/matcher"
	"invoice-recon/internal/queue"
	"invoice-recon/internal/repository"
	"invoice-recon/internal/server"
	"invoice-recon/internal/storage"
	"invoice-recon/pkg/database"
	"invoice-recon/pkg/utils"
)

func main() {
	// Load .env before viper reads the environment
	_ = gotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice reconciliation API",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	blobs, err := newBlobStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	aiClient := ai.NewClient(ai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		MaxTokens:      cfg.OpenAI.MaxTokens,
	}, logger)

	enqueuer := queue.NewEnqueuer(cfg.Queue.RedisAddr, logger)
	defer enqueuer.Close()

	vendorRepo := repository.NewVendorRepository(db.DB, logger)
	contractRepo := repository.NewContractRepository(db.DB, logger)
	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	reportRepo := repository.NewReportRepository(db.DB, logger)

	handlers := server.NewHandlers(
		vendorRepo,
		contractRepo,
		invoiceRepo,
		reportRepo,
		blobs,
		enqueuer,
		matcher.New(aiClient, logger),
		logger,
	)
	srv := server.NewServer(cfg.Server, handlers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

// newBlobStore selects the configured storage backend.
func newBlobStore(cfg config.StorageConfig, logger *zap.Logger) (storage.BlobStore, error) {
	switch cfg.Backend {
	case "minio":
		return storage.NewMinioStore(context.Background(), storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		}, logger)
	case "local", "":
		return storage.NewLocalStore(cfg.LocalDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
