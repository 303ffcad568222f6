//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/kculturecat/stylist-api/internal/bootstrap"
	"github.com/kculturecat/stylist-api/internal/domain/stylist"
	"github.com/kculturecat/stylist-api/internal/infra/config"
	"github.com/kculturecat/stylist-api/internal/infra/llm/openai"
	"github.com/kculturecat/stylist-api/internal/infra/payments/polar"
	"github.com/kculturecat/stylist-api/internal/infra/alert/resend"
	httpiface "github.com/kculturecat/stylist-api/internal/interface/http"
	"github.com/kculturecat/stylist-api/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideStylistConfig,
		provideRetryCaller,
		provideOpenAIClient,
		providePolarClient,
		provideResendClient,
		provideTokenCounter,
		provideJournal,
		provideCheckoutGuard,
		provideImageArchive,
		stylist.NewService,
		wire.Bind(new(stylist.TextGenerator), new(*openai.Client)),
		wire.Bind(new(stylist.ImageGenerator), new(*openai.Client)),
		wire.Bind(new(stylist.PaymentVerifier), new(*polar.Client)),
		wire.Bind(new(stylist.Refunder), new(*polar.Client)),
		wire.Bind(new(stylist.Notifier), new(*resend.Client)),
		provideHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
