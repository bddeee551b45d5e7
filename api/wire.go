package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/advisor"
	"github.com/finvisor/finvisor/pkg/analytics"
	"github.com/finvisor/finvisor/pkg/appeal"
	"github.com/finvisor/finvisor/pkg/chat"
	"github.com/finvisor/finvisor/pkg/config"
	"github.com/finvisor/finvisor/pkg/documents"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/merkle"
	"github.com/finvisor/finvisor/pkg/payment"
	"github.com/finvisor/finvisor/pkg/provider/anthropic"
	"github.com/finvisor/finvisor/pkg/provider/browserbase"
	"github.com/finvisor/finvisor/pkg/provider/decagon"
	"github.com/finvisor/finvisor/pkg/provider/fetchai"
	"github.com/finvisor/finvisor/pkg/provider/gemini"
	"github.com/finvisor/finvisor/pkg/provider/httpjson"
	"github.com/finvisor/finvisor/pkg/provider/modal"
	"github.com/finvisor/finvisor/pkg/provider/openai"
	"github.com/finvisor/finvisor/pkg/provider/perplexity"
	"github.com/finvisor/finvisor/pkg/provider/zoom"
	"github.com/finvisor/finvisor/pkg/research"
	"github.com/finvisor/finvisor/pkg/sealed"
	"github.com/finvisor/finvisor/pkg/storage/dynamo"
	"github.com/finvisor/finvisor/pkg/strategy"
	"github.com/finvisor/finvisor/pkg/submit"
	"github.com/finvisor/finvisor/pkg/wizard"
)

// OpenStorer opens the ledger storage the config selects.
func OpenStorer(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (merkle.Storer, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		s, err := merkle.NewSQLiteStorer(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Info("using SQLite storage", zap.String("path", cfg.Path))
		return s, nil
	case config.StorageDynamoDB:
		s, err := dynamo.NewFromEnvironment(ctx, cfg.Region, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB storer: %w", err)
		}
		logger.Info("using DynamoDB storage", zap.String("table", cfg.Table))
		return s, nil
	default:
		logger.Info("using in-memory storage")
		return merkle.NewMemoryStorer(), nil
	}
}

// Build wires every service from cfg. Providers without a key are left
// unset, so their endpoints answer 503 while the rest keep working.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	keys, err := cfg.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve secrets: %w", err)
	}

	storer, err := OpenStorer(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	recorder := ledger.NewRecorder(storer, logger)

	sealer, err := sealed.New(cfg.Secrets.SealPassphrase)
	if err != nil {
		storer.Close()
		return nil, err
	}

	baseURL := func(u string) []httpjson.Option {
		if u == "" {
			return nil
		}
		return []httpjson.Option{httpjson.WithBaseURL(u)}
	}
	has := cfg.Configured

	var (
		chatModel llm.Completer
		writer    llm.Completer
		thinker   llm.Completer
		decagonC  *decagon.Client
		modalC    *modal.Client
		fetchaiC  *fetchai.Client
	)
	if has(config.OpenAI) {
		chatModel = openai.NewClient(keys.For(config.OpenAI), baseURL(cfg.OpenAI.BaseURL)...)
	}
	if has(config.Anthropic) {
		writer = anthropic.NewClient(keys.For(config.Anthropic), baseURL(cfg.Anthropic.BaseURL)...)
		thinker = writer
	} else if has(config.Gemini) {
		thinker = gemini.NewClient(keys.For(config.Gemini), cfg.Gemini.BaseURL)
	}
	if has(config.Decagon) {
		decagonC = decagon.NewClient(keys.For(config.Decagon), cfg.Decagon.BotID, baseURL(cfg.Decagon.BaseURL)...)
	}
	if has(config.Modal) {
		modalC = modal.NewClient(keys.For(config.Modal), baseURL(cfg.Modal.BaseURL)...)
	}
	if has(config.FetchAI) {
		fetchaiC = fetchai.NewClient(keys.For(config.FetchAI), cfg.FetchAI.AgentAddress, baseURL(cfg.FetchAI.BaseURL)...)
	}

	svc := &Services{
		Ledger:   recorder,
		Scripts:  wizard.MustLoad(),
		Advisor:  advisor.Demo{},
		Research: research.NewService(nil, logger),
		Submit:   submit.NewService(nil, nil, sealer, recorder, logger),
	}
	svc.Sessions = wizard.NewStore(svc.Scripts, recorder, wizard.DefaultSessionTTL, logger)

	// Interfaces get an untyped nil when their provider is missing.
	var (
		dec       chat.Decagon
		batch     documents.BatchParser
		predictor strategy.Predictor
		enhancer  appeal.Enhancer
		agent     payment.Agent
		agentSrc  analytics.AgentSource
		infraSrc  analytics.InfraSource
		convSrc   analytics.ConversationSource
	)
	if decagonC != nil {
		dec, convSrc = decagonC, decagonC
	}
	if modalC != nil {
		batch, predictor, enhancer, infraSrc = modalC, modalC, modalC, modalC
	}
	if fetchaiC != nil {
		agent, agentSrc = fetchaiC, fetchaiC
	}

	svc.Chat = chat.NewService(chatModel, dec, recorder, logger)
	svc.Documents = documents.NewService(chatModel, batch, logger)
	svc.Strategy = strategy.NewService(writer, thinker, predictor, logger)
	svc.Appeal = appeal.NewService(writer, enhancer, logger)
	svc.Payment = payment.NewService(agent, logger)
	svc.Analytics = analytics.NewService(agentSrc, infraSrc, convSrc, logger)

	if has(config.Perplexity) {
		svc.Research = research.NewService(perplexity.NewClient(keys.For(config.Perplexity), baseURL(cfg.Perplexity.BaseURL)...), logger)
	}
	if has(config.Browserbase) {
		bb := browserbase.NewClient(keys.For(config.Browserbase), cfg.Browserbase.ProjectID, baseURL(cfg.Browserbase.BaseURL)...)
		svc.Submit = submit.NewService(bb, browserbase.NewRodExecutor(), sealer, recorder, logger)
	}

	if cfg.Zoom.Mode == config.ZoomOAuth {
		meetings := zoom.NewClient(ctx, zoom.Credentials{
			AccountID:    cfg.Zoom.AccountID,
			ClientID:     cfg.Zoom.ClientID,
			ClientSecret: cfg.Zoom.ClientSecret,
			TokenURL:     cfg.Zoom.TokenURL,
		}, baseURL(cfg.Zoom.BaseURL)...)

		summariser := writer
		if summariser == nil {
			summariser = chatModel
		}
		svc.Advisor = advisor.NewZoom(meetings, summariser, cfg.Zoom.WebhookSecret, logger)
		logger.Info("using Zoom advisor")
	}

	return svc, nil
}

// NewFromConfig builds the services and the server in one step.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	svc, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return New(Config{
		ListenAddr:        cfg.Server.Listen,
		BodyLimit:         cfg.Server.MaxBodyBytes,
		LedgerToken:       cfg.Server.LedgerToken,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, *svc, logger), nil
}
