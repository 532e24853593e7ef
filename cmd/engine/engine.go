package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/config"
	"github.com/kairoslabs/derivatives-engine/internal/advisor"
	"github.com/kairoslabs/derivatives-engine/internal/ai/llm"
	"github.com/kairoslabs/derivatives-engine/internal/api"
	"github.com/kairoslabs/derivatives-engine/internal/auth"
	"github.com/kairoslabs/derivatives-engine/internal/cache"
	"github.com/kairoslabs/derivatives-engine/internal/classifier"
	"github.com/kairoslabs/derivatives-engine/internal/coordinator"
	"github.com/kairoslabs/derivatives-engine/internal/database"
	"github.com/kairoslabs/derivatives-engine/internal/exchange"
	"github.com/kairoslabs/derivatives-engine/internal/institutional"
	"github.com/kairoslabs/derivatives-engine/internal/marketdata"
	"github.com/kairoslabs/derivatives-engine/internal/position"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
	"github.com/kairoslabs/derivatives-engine/internal/safety"
	"github.com/kairoslabs/derivatives-engine/internal/sentiment"
	"github.com/kairoslabs/derivatives-engine/internal/sentinelloop"
	"github.com/kairoslabs/derivatives-engine/internal/signal"
	"github.com/kairoslabs/derivatives-engine/internal/vault"
)

// Engine owns every long-lived component the cmd/ entrypoint wires
// together, and the cleanup each of them needs on shutdown.
type Engine struct {
	logger      zerolog.Logger
	db          *database.DB
	redisCache  *cache.RedisCache
	coordinator *coordinator.Coordinator
	positions   *position.Manager
	api         *api.Server
}

// buildEngine wires every C1-C14 component from cfg. It connects to
// Postgres and (if enabled) Redis and Vault during this call. A failure to
// reach Postgres or Redis is fatal; a failure to read credentials from
// Vault is logged and the config-file credentials are used instead.
func buildEngine(cfg *config.Config) (*Engine, error) {
	logger := newLogger(cfg.Logging)

	credentials := exchange.Config{BaseURL: cfg.Gateway.BaseURL, APIKey: cfg.Gateway.APIKey,
		APISecret: cfg.Gateway.APISecret, Passphrase: cfg.Gateway.Passphrase}
	if cfg.Vault.Enabled {
		vaultClient, err := vault.NewClient(vault.Config{
			Enabled: cfg.Vault.Enabled, Address: cfg.Vault.Address, Token: cfg.Vault.Token, SecretPath: cfg.Vault.SecretPath,
		})
		if err != nil {
			return nil, fmt.Errorf("building vault client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		creds, err := vaultClient.GetCredentials(ctx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("vault credentials unavailable, falling back to config file credentials")
		} else {
			credentials.APIKey, credentials.APISecret, credentials.Passphrase = creds.APIKey, creds.APISecret, creds.Passphrase
		}
	}
	gateway := exchange.NewClient(credentials, logger)
	market := marketdata.New(gateway, logger)

	db, err := database.NewDB(database.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, Database: cfg.Database.Database, SSLMode: cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.RunMigrations(migrateCtx)
	cancel()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	repo := database.NewRepository(db)

	var sentimentCache sentiment.Cache = cache.NoopCache{}
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(cache.Config{Address: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		sentimentCache = redisCache
	}

	symbols := make([]string, 0, len(cfg.Symbols))
	groups := make(map[string]string, len(cfg.Symbols))
	requirements := make(map[string]safety.SymbolRequirements, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, s.Symbol)
		groups[s.Symbol] = s.CorrelationGroup
		requirements[s.Symbol] = safety.SymbolRequirements{MinQty: s.MinQty, MinNotional: s.MinNotional}
	}

	riskCfg := &risk.Config{
		RiskPerTrade: cfg.Risk.RiskPerTrade, MinATRMultiplier: cfg.Risk.MinATRMultiplier, MaxATRMultiplier: cfg.Risk.MaxATRMultiplier,
		DefaultRiskReward: cfg.Risk.DefaultRiskReward, MaxDailyLossPct: cfg.Risk.MaxDailyLossPct, MaxDrawdownPct: cfg.Risk.MaxDrawdownPct,
		MaxExposurePct: cfg.Risk.MaxExposurePct, MaxLeverage: cfg.Risk.MaxLeverage,
		MaxHold: time.Duration(cfg.Risk.MaxHoldHours) * time.Hour, MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
	}
	riskMgr := risk.NewManager(riskCfg, groups, logger)
	safetyLayer := safety.NewLayer(requirements, riskMgr, logger)

	positions := position.New(gateway, market, riskMgr, logger)
	positions.SetRecorder(database.NewPositionRecorder(repo, logger))

	sentimentProvider := sentiment.NewCryptoPanicProvider(cfg.Sentiment.CryptoPanicAPIKey)
	sentimentReader := sentiment.NewReader(sentimentCache, sentimentProvider)

	llmClient := llm.NewClient(&llm.ClientConfig{
		Provider: llm.Provider(cfg.Advisor.Provider), APIKey: cfg.Advisor.APIKey, Model: cfg.Advisor.Model,
		MaxTokens: cfg.Advisor.MaxTokens, Temperature: cfg.Advisor.Temperature, Timeout: cfg.Advisor.Timeout,
	})
	advisorClient := advisor.New(llmClient, cfg.Advisor.Budget)
	synth := signal.NewSynthesizer(advisorClient)

	classifierModel := classifier.New()

	settingsStore := database.NewSettingsStore(repo, logger)
	strategyStore := database.NewStrategyStore(repo, logger)
	symbolStore := database.NewSymbolStore(symbols)
	auditSink := database.NewAuditSink(repo, logger)

	sentinelLoop := sentinelloop.New(sentinelloop.Config{
		Tick: time.Duration(cfg.Sentinel.TickSeconds) * time.Second, CandleWindow: cfg.Sentinel.CandleWindow,
		Interval: cfg.Sentinel.Interval, BaseAsset: cfg.Sentinel.BaseAsset, Leverage: cfg.Sentinel.Leverage,
		MinOrderSize: cfg.Sentinel.MinOrderSize,
	}, settingsStore, strategyStore, market, sentimentReader, classifierModel, synth, riskMgr, safetyLayer,
		positions, gateway, auditSink, logger)

	institutionalLoop := institutional.New(institutional.Config{
		Tick: time.Duration(cfg.Institutional.TickSeconds) * time.Second, CandleWindow: cfg.Institutional.CandleWindow,
		Interval: cfg.Institutional.Interval, BaseAsset: cfg.Institutional.BaseAsset, Leverage: cfg.Institutional.Leverage,
	}, symbolStore, market, marketdata.NoopSignals{}, synth, riskMgr, safetyLayer, positions, gateway, logger)

	coord := coordinator.New(sentinelLoop, institutionalLoop, positions, logger)

	var authMgr *auth.Manager
	var passwords *auth.PasswordManager
	if cfg.Auth.Enabled {
		authMgr = auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenDuration)
		passwords = auth.NewPasswordManager(cfg.Auth.BcryptCost)
	}

	server := api.New(api.Config{Host: cfg.Server.Host, Port: cfg.Server.Port, AllowedOrigins: cfg.Server.AllowedOrigins},
		api.Dependencies{
			Coordinator: coord, Settings: settingsStore, RiskManager: riskMgr, SafetyLayer: safetyLayer,
			Positions: positions, AuthManager: authMgr, Passwords: passwords,
			OperatorName: cfg.Auth.OperatorName, OperatorPasswordHash: cfg.Auth.OperatorPasswordHash,
		}, logger)

	return &Engine{logger: logger, db: db, redisCache: redisCache, coordinator: coord, positions: positions, api: server}, nil
}

// Run starts the control surface and blocks until ctx is canceled, then
// tears every component down in reverse wiring order.
func (e *Engine) Run(ctx context.Context) error {
	err := e.api.Start(ctx)

	e.coordinator.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	e.positions.Shutdown(shutdownCtx)
	cancel()
	if e.redisCache != nil {
		e.redisCache.Close()
	}
	e.db.Close()

	return err
}
