package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
	"github.com/kculturecat/stylist-api/internal/infra/alert/resend"
	"github.com/kculturecat/stylist-api/internal/infra/archive"
	"github.com/kculturecat/stylist-api/internal/infra/checkoutguard"
	"github.com/kculturecat/stylist-api/internal/infra/config"
	"github.com/kculturecat/stylist-api/internal/infra/httpretry"
	"github.com/kculturecat/stylist-api/internal/infra/ledger"
	"github.com/kculturecat/stylist-api/internal/infra/llm/openai"
	"github.com/kculturecat/stylist-api/internal/infra/payments/polar"
	httpiface "github.com/kculturecat/stylist-api/internal/interface/http"
	"github.com/kculturecat/stylist-api/pkg/metrics"
)

func provideStylistConfig(cfg *config.Config) stylist.Config {
	return stylist.Config{
		OutfitImageSize:    cfg.Stylist.OutfitImageSize,
		HairstyleImageSize: cfg.Stylist.HairstyleImageSize,
	}
}

func provideRetryCaller(cfg *config.Config, logger *slog.Logger) *httpretry.Caller {
	return httpretry.New(openai.NewHTTPClient(), cfg.LLM.RetryBackoff, logger)
}

func provideOpenAIClient(cfg *config.Config, caller *httpretry.Caller, logger *slog.Logger) (*openai.Client, error) {
	return openai.NewClient(openai.Config{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		TextModel:     cfg.LLM.TextModel,
		ImageModel:    cfg.LLM.ImageModel,
		Temperature:   cfg.LLM.Temperature,
		TextAttempts:  cfg.LLM.TextAttempts,
		ImageAttempts: cfg.LLM.ImageAttempts,
	}, caller, logger)
}

func providePolarClient(cfg *config.Config, logger *slog.Logger) *polar.Client {
	return polar.NewClient(polar.Config{
		AccessToken:      cfg.Payments.AccessToken,
		BaseURL:          cfg.Payments.BaseURL,
		ProductID:        cfg.Payments.ProductID,
		TerminalStatuses: cfg.Payments.TerminalStatuses,
		RefundReason:     cfg.Payments.RefundReason,
	}, logger)
}

func provideResendClient(cfg *config.Config, logger *slog.Logger) *resend.Client {
	return resend.NewClient(resend.Config{
		APIKey:         cfg.Alerts.APIKey,
		BaseURL:        cfg.Alerts.BaseURL,
		From:           cfg.Alerts.From,
		OperatorEmails: cfg.Alerts.OperatorEmails,
	}, logger)
}

func provideTokenCounter(cfg *config.Config) *metrics.TokenCounter {
	return metrics.NewTokenCounter(cfg.LLM.TextModel)
}

func provideJournal(cfg *config.Config, logger *slog.Logger) stylist.Journal {
	fallback := ledger.NewMemoryJournal()
	dsn := strings.TrimSpace(cfg.Ledger.Postgres.DSN)
	if dsn == "" {
		logger.Info("ledger postgres dsn not set, using memory journal")
		return fallback
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory journal", "error", err)
		return fallback
	}
	if cfg.Ledger.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Ledger.Postgres.MaxConns
	}
	if cfg.Ledger.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Ledger.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory journal", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory journal", "error", err)
		pool.Close()
		return fallback
	}
	logger.Info("ledger postgres journal enabled")
	return ledger.NewPostgresJournal(pool)
}

func provideCheckoutGuard(cfg *config.Config, logger *slog.Logger) stylist.CheckoutGuard {
	addr := strings.TrimSpace(cfg.Guard.ValkeyAddr)
	if addr == "" {
		logger.Info("guard valkey addr not set, using memory guard")
		return checkoutguard.NewMemoryGuard(cfg.Guard.TTL)
	}
	opt, err := buildValkeyOptions(addr)
	if err != nil {
		logger.Error("invalid valkey configuration, using memory guard", "error", err)
		return checkoutguard.NewMemoryGuard(cfg.Guard.TTL)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, using memory guard", "error", err)
		return checkoutguard.NewMemoryGuard(cfg.Guard.TTL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, using memory guard", "error", err)
		return checkoutguard.NewMemoryGuard(cfg.Guard.TTL)
	}
	logger.Info("valkey checkout guard enabled", "addr", addr)
	return checkoutguard.NewValkeyGuard(client, "checkout", cfg.Guard.TTL)
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func provideImageArchive(cfg *config.Config, logger *slog.Logger) stylist.ImageArchive {
	if !cfg.Archive.Enabled {
		return archive.NewNoopArchive()
	}
	store, err := archive.NewS3Archive(cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.Region, logger)
	if err != nil {
		logger.Error("failed to initialize image archive, archiving disabled", "error", err)
		return archive.NewNoopArchive()
	}
	logger.Info("image archive enabled", "bucket", cfg.Archive.Bucket)
	return store
}

func provideHandler(svc stylist.Service, payments *polar.Client, mailer *resend.Client, cfg *config.Config, logger *slog.Logger) *httpiface.Handler {
	return httpiface.NewHandler(svc, payments, mailer, cfg.Stylist.Timeout, logger)
}
