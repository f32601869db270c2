package container

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/application/service"
	infraLark "github.com/garyjia/invoice-reimbursement/internal/infrastructure/external/lark"
	"github.com/garyjia/invoice-reimbursement/internal/infrastructure/external/openai"
	"github.com/garyjia/invoice-reimbursement/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-reimbursement/internal/infrastructure/storage"
	"github.com/garyjia/invoice-reimbursement/internal/invoice"
	"github.com/garyjia/invoice-reimbursement/internal/report"
	"github.com/garyjia/invoice-reimbursement/pkg/database"
	"github.com/garyjia/invoice-reimbursement/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds the history store. Both fields are nil when history is disabled.
type DatabaseBundle struct {
	DB   *database.DB
	Repo port.BatchRepository
}

// PipelineBundle holds the components a batch flows through.
type PipelineBundle struct {
	Workspaces port.WorkspaceProvider
	Extractor  port.TextExtractor
	Unpacker   port.ArchiveUnpacker
	Analyzer   port.InvoiceAnalyzer
}

// ProvideDatabase opens the history database and applies embedded migrations.
// Returns an empty bundle when history is disabled.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if !cfg.Enabled {
		logger.Info("Batch history disabled")
		return &DatabaseBundle{}, nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:   db,
		Repo: repository.NewBatchRepository(db.DB, logger),
	}, nil
}

// ProvidePipeline creates the extractor, unpacker, workspace manager and analyzer.
func ProvidePipeline(cfg *Config, logger *zap.Logger) (*PipelineBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	extractor, err := invoice.NewTextExtractor(cfg.PDF.Engine, logger)
	if err != nil {
		return nil, err
	}

	analyzer, err := openai.NewAnalyzer(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		BaseURL:     cfg.OpenAI.BaseURL,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
		PromptsPath: cfg.OpenAI.PromptsPath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	logger.Info("Pipeline configured",
		zap.String("pdf_engine", extractor.Engine()),
		zap.String("model", cfg.OpenAI.Model),
		zap.Bool("custom_base_url", cfg.OpenAI.BaseURL != ""))

	return &PipelineBundle{
		Workspaces: storage.NewWorkspaceManager(cfg.Storage.TempRoot, logger),
		Extractor:  extractor,
		Unpacker:   invoice.NewUnpacker(logger),
		Analyzer:   analyzer,
	}, nil
}

// ProvideNotifier creates the Lark batch notifier, or nil when notifications are disabled.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) port.BatchNotifier {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	client := infraLark.NewMessageClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.BaseURL,
	}, logger)
	logger.Info("Lark batch notifications enabled", zap.String("chat_id", cfg.ChatID))
	return infraLark.NewNotifier(client, cfg.ChatID, logger)
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Pipeline *PipelineBundle
	Repo     port.BatchRepository
	Notifier port.BatchNotifier
	Logger   *zap.Logger
}

// ProvideServices creates the batch and history services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger)

	var opts []service.BatchOption
	if deps.Repo != nil {
		opts = append(opts, service.WithBatchRepository(deps.Repo))
	}
	if deps.Notifier != nil {
		opts = append(opts, service.WithBatchNotifier(deps.Notifier))
	}

	return &ServiceBundle{
		Batch: service.NewBatchService(
			deps.Pipeline.Workspaces,
			deps.Pipeline.Extractor,
			deps.Pipeline.Unpacker,
			deps.Pipeline.Analyzer,
			serviceLogger,
			opts...,
		),
		History: service.NewHistoryService(deps.Repo, serviceLogger),
	}, nil
}

// ProvideRenderer creates the XLSX report renderer.
func ProvideRenderer(cfg *ReportConfig, logger *zap.Logger) *report.Renderer {
	return report.NewRenderer(cfg.FilenamePrefix, logger)
}
