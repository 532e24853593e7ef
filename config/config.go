// Package config loads the engine's configuration from a JSON base file
// with environment-variable overrides, the same two-layer pattern the
// teacher used, with viper resolving the ENGINE_* environment variables of
// the override layer. Command-line flags are not part of that chain.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/kairoslabs/derivatives-engine/internal/auth"
)

// GatewayConfig holds the exchange venue credentials and connection
// settings (C1).
type GatewayConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Passphrase string `json:"passphrase"`
}

// ServerConfig holds the operator control surface's HTTP server settings.
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
}

// AuthConfig holds the single-operator bearer-token settings.
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	OperatorName        string        `json:"operator_name"`
	OperatorPasswordHash string       `json:"operator_password_hash"` // bcrypt, see internal/auth.PasswordManager
	BcryptCost          int           `json:"bcrypt_cost"`
}

// RedisConfig holds the Sentiment cache connection settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DatabaseConfig holds the PostgreSQL connection settings for the
// marketLog/aiAnalysis/tradeHistory/openPositions/strategies/tradeSettings
// tables.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// VaultConfig holds the optional HashiCorp Vault credential store settings.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"`
}

// LoggingConfig controls the teacher-style structured app logger.
type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

// RiskConfig seeds the Risk Manager's limits (C9). It maps directly onto
// risk.Config.
type RiskConfig struct {
	RiskPerTrade            float64 `json:"risk_per_trade"`
	MinATRMultiplier        float64 `json:"min_atr_multiplier"`
	MaxATRMultiplier        float64 `json:"max_atr_multiplier"`
	DefaultRiskReward       float64 `json:"default_risk_reward"`
	MaxDailyLossPct         float64 `json:"max_daily_loss_pct"`
	MaxDrawdownPct          float64 `json:"max_drawdown_pct"`
	MaxExposurePct          float64 `json:"max_exposure_pct"`
	MaxLeverage             float64 `json:"max_leverage"`
	MaxHoldHours            int     `json:"max_hold_hours"`
	MaxConcurrentPositions  int     `json:"max_concurrent_positions"`
}

// SymbolConfig is one entry in the symbol universe: its correlation group
// and Safety Layer minimum order requirements (SUPPLEMENTED FEATURE: the
// correlation-group table and MIN_ORDER_SIZES carried over from
// original_source/internal/safety_layer.py).
type SymbolConfig struct {
	Symbol           string  `json:"symbol"`
	CorrelationGroup string  `json:"correlation_group"`
	MinQty           float64 `json:"min_qty"`
	MinNotional      float64 `json:"min_notional"`
}

// SentinelConfig holds the Sentinel Loop's (C12) tunables.
type SentinelConfig struct {
	TickSeconds  int     `json:"tick_seconds"`
	CandleWindow int     `json:"candle_window"`
	Interval     string  `json:"interval"`
	BaseAsset    string  `json:"base_asset"`
	Leverage     float64 `json:"leverage"`
	MinOrderSize float64 `json:"min_order_size"`
}

// InstitutionalConfig holds the Institutional Orchestrator's (C13) tunables.
type InstitutionalConfig struct {
	TickSeconds  int     `json:"tick_seconds"`
	CandleWindow int     `json:"candle_window"`
	Interval     string  `json:"interval"`
	BaseAsset    string  `json:"base_asset"`
	Leverage     float64 `json:"leverage"`
}

// SentimentConfig holds the news-feed provider and cache settings (C5).
type SentimentConfig struct {
	CryptoPanicAPIKey string        `json:"cryptopanic_api_key"`
	FetchTimeout      time.Duration `json:"fetch_timeout"`
}

// AdvisorConfig holds the second-opinion LLM provider settings the
// Sentinel path consults when no rule has triggered.
type AdvisorConfig struct {
	Provider    string        `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	Budget      time.Duration `json:"budget"`
}

// Config is the engine's full configuration tree.
type Config struct {
	Gateway       GatewayConfig        `json:"gateway"`
	Server        ServerConfig         `json:"server"`
	Auth          AuthConfig           `json:"auth"`
	Redis         RedisConfig          `json:"redis"`
	Database      DatabaseConfig       `json:"database"`
	Vault         VaultConfig          `json:"vault"`
	Logging       LoggingConfig        `json:"logging"`
	Risk          RiskConfig           `json:"risk"`
	Symbols       []SymbolConfig       `json:"symbols"`
	Sentinel      SentinelConfig       `json:"sentinel"`
	Institutional InstitutionalConfig  `json:"institutional"`
	Sentiment     SentimentConfig      `json:"sentiment"`
	Advisor       AdvisorConfig        `json:"advisor"`
}

// Load reads the base config from configPath (if present) and layers
// environment-variable overrides on top via viper.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()
	bindOverrides(v, cfg)

	return cfg, nil
}

// bindOverrides applies the ENGINE_* environment overrides viper resolves,
// mirroring the teacher's applyEnvOverrides but scoped to this engine's
// settings.
func bindOverrides(v *viper.Viper, cfg *Config) {
	if val := v.GetString("GATEWAY_BASE_URL"); val != "" {
		cfg.Gateway.BaseURL = val
	}
	if val := v.GetString("GATEWAY_API_KEY"); val != "" {
		cfg.Gateway.APIKey = val
	}
	if val := v.GetString("GATEWAY_API_SECRET"); val != "" {
		cfg.Gateway.APISecret = val
	}
	if val := v.GetString("GATEWAY_PASSPHRASE"); val != "" {
		cfg.Gateway.Passphrase = val
	}
	if val := v.GetString("AUTH_JWT_SECRET"); val != "" {
		cfg.Auth.JWTSecret = val
	}
	if val := v.GetString("AUTH_OPERATOR_PASSWORD_HASH"); val != "" {
		cfg.Auth.OperatorPasswordHash = val
	}
	if val := v.GetString("REDIS_ADDRESS"); val != "" {
		cfg.Redis.Address = val
	}
	if val := v.GetString("DATABASE_HOST"); val != "" {
		cfg.Database.Host = val
	}
	if val := v.GetString("VAULT_TOKEN"); val != "" {
		cfg.Vault.Token = val
	}
	if val := v.GetString("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := v.GetString("ADVISOR_API_KEY"); val != "" {
		cfg.Advisor.APIKey = val
	}
	if val := v.GetString("SENTIMENT_CRYPTOPANIC_API_KEY"); val != "" {
		cfg.Sentiment.CryptoPanicAPIKey = val
	}
}

// Sample returns a fully-populated reference config, the source for the
// "sample-config" command.
func Sample() *Config {
	return &Config{
		Gateway: GatewayConfig{BaseURL: "https://contract.mexc.com", APIKey: "your_api_key", APISecret: "your_api_secret", Passphrase: "your_passphrase"},
		Server:  ServerConfig{Port: 8080, Host: "0.0.0.0", AllowedOrigins: "*"},
		Auth: AuthConfig{
			Enabled: true, JWTSecret: "change-me", AccessTokenDuration: 24 * time.Hour,
			OperatorName: "operator", OperatorPasswordHash: "", BcryptCost: auth.DefaultBcryptCost,
		},
		Redis:   RedisConfig{Enabled: true, Address: "localhost:6379", DB: 0},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "engine", Database: "derivatives_engine", SSLMode: "disable"},
		Vault:    VaultConfig{Enabled: false, Address: "http://localhost:8200", SecretPath: "derivatives-engine/gateway"},
		Logging:  LoggingConfig{Level: "INFO", Output: "stdout", JSONFormat: true},
		Risk: RiskConfig{
			RiskPerTrade: 0.0125, MinATRMultiplier: 1.3, MaxATRMultiplier: 1.8, DefaultRiskReward: 2.0,
			MaxDailyLossPct: 0.03, MaxDrawdownPct: 0.12, MaxExposurePct: 0.40, MaxLeverage: 20,
			MaxHoldHours: 24, MaxConcurrentPositions: 1,
		},
		Symbols: []SymbolConfig{
			{Symbol: "BTCUSDT", CorrelationGroup: "A", MinQty: 0.0001, MinNotional: 5},
			{Symbol: "ETHUSDT", CorrelationGroup: "A", MinQty: 0.001, MinNotional: 5},
			{Symbol: "SOLUSDT", CorrelationGroup: "B", MinQty: 0.01, MinNotional: 5},
			{Symbol: "AVAXUSDT", CorrelationGroup: "B", MinQty: 0.01, MinNotional: 5},
			{Symbol: "DOGEUSDT", CorrelationGroup: "C", MinQty: 1, MinNotional: 5},
			{Symbol: "SHIBUSDT", CorrelationGroup: "C", MinQty: 1000, MinNotional: 5},
			{Symbol: "XRPUSDT", CorrelationGroup: "D", MinQty: 1, MinNotional: 5},
			{Symbol: "ADAUSDT", CorrelationGroup: "D", MinQty: 1, MinNotional: 5},
		},
		Sentinel:      SentinelConfig{TickSeconds: 30, CandleWindow: 500, Interval: "5m", BaseAsset: "USDT", Leverage: 10, MinOrderSize: 0.001},
		Institutional: InstitutionalConfig{TickSeconds: 30, CandleWindow: 500, Interval: "5m", BaseAsset: "USDT", Leverage: 10},
		Sentiment:     SentimentConfig{FetchTimeout: 5 * time.Second},
		Advisor: AdvisorConfig{
			Provider: "claude", APIKey: "", Model: "claude-sonnet-4-20250514",
			MaxTokens: 1024, Temperature: 0.3, Timeout: 30 * time.Second, Budget: 8 * time.Second,
		},
	}
}

// WriteSample writes the sample config to path as indented JSON.
func WriteSample(path string) error {
	data, err := json.MarshalIndent(Sample(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling sample config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
