package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Exchange Exchange `mapstructure:"exchange"`
	Account  Account  `mapstructure:"account"`
	Risk     Risk     `mapstructure:"risk"`
	Cache    Cache    `mapstructure:"cache"`
	Advisory Advisory `mapstructure:"advisory"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Notify    Notify    `mapstructure:"notify"`
}

// Exchange holds the configuration for the upstream exchange REST API.
type Exchange struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	BaseURL        string  `mapstructure:"base_url"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_s"`
}

// Server holds the configuration for the admin HTTP server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the embedded relational store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Account holds the paper-trading account and broker execution parameters.
type Account struct {
	InitialCash   float64 `mapstructure:"initial_cash"`
	FeeBps        float64 `mapstructure:"fee_bps"`
	SlippageBps   float64 `mapstructure:"slippage_bps"`
}

// Risk holds the risk filter's thresholds.
type Risk struct {
	MaxTradeNotionalPct  float64 `mapstructure:"max_trade_notional_pct"`
	MaxSymbolExposurePct float64 `mapstructure:"max_symbol_exposure_pct"`
	SoftDrawdownPct      float64 `mapstructure:"soft_drawdown_pct"`
	HardDrawdownPct      float64 `mapstructure:"hard_drawdown_pct"`
}

// CacheTTLs holds the per-source TTLs from spec.md §4.2, in seconds.
type CacheTTLs struct {
	Ticker24h        int `mapstructure:"ticker_24h"`
	Klines           int `mapstructure:"klines"`
	MacroFred        int `mapstructure:"macro_fred"`
	FearGreed        int `mapstructure:"fear_greed"`
	EtfFlows         int `mapstructure:"etf_flows"`
	OnchainBTC       int `mapstructure:"onchain_btc"`
	Miners           int `mapstructure:"miners"`
	StablecoinSupply int `mapstructure:"stablecoin_supply"`
	MstrMnav         int `mapstructure:"mstr_mnav"`
}

// Cache holds the market data cache's configuration.
type Cache struct {
	TTLs             CacheTTLs `mapstructure:"ttls"`
	UpstreamTimeoutS int       `mapstructure:"upstream_timeout_s"`
	KlinesBackfillCap int      `mapstructure:"klines_backfill_cap"`
}

// Advisory holds the optional LLM advisory client's configuration.
type Advisory struct {
	Enabled    bool   `mapstructure:"llm_enabled"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutS   int    `mapstructure:"llm_timeout_s"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Notify holds the optional outbound webhook's configuration. An empty
// WebhookURL disables delivery.
type Notify struct {
	WebhookURL string `mapstructure:"webhook_url"`
	TimeoutS   int    `mapstructure:"timeout_s"`
}

// Scheduler holds process-wide scheduler tunables. Kept separate from
// per-strategy ScheduleInterval, which lives on the Strategy row itself.
type Scheduler struct {
	ShutdownGraceS int `mapstructure:"shutdown_grace_s"`
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("exchange.rate_limit", 20)
	viper.SetDefault("exchange.rate_limit_burst", 5)
	viper.SetDefault("exchange.timeout_s", 10)

	viper.SetDefault("account.initial_cash", 10000.0)
	viper.SetDefault("account.fee_bps", 10.0)
	viper.SetDefault("account.slippage_bps", 5.0)

	viper.SetDefault("risk.max_trade_notional_pct", 5.0)
	viper.SetDefault("risk.max_symbol_exposure_pct", 25.0)
	viper.SetDefault("risk.soft_drawdown_pct", 10.0)
	viper.SetDefault("risk.hard_drawdown_pct", 20.0)

	viper.SetDefault("cache.ttls.ticker_24h", 60)
	viper.SetDefault("cache.ttls.klines", 900)
	viper.SetDefault("cache.ttls.macro_fred", 3600)
	viper.SetDefault("cache.ttls.fear_greed", 300)
	viper.SetDefault("cache.ttls.etf_flows", 86400)
	viper.SetDefault("cache.ttls.onchain_btc", 300)
	viper.SetDefault("cache.ttls.miners", 1800)
	viper.SetDefault("cache.ttls.stablecoin_supply", 600)
	viper.SetDefault("cache.ttls.mstr_mnav", 3600)
	viper.SetDefault("cache.upstream_timeout_s", 10)
	viper.SetDefault("cache.klines_backfill_cap", 1000)

	viper.SetDefault("advisory.llm_enabled", false)
	viper.SetDefault("advisory.llm_timeout_s", 15)

	viper.SetDefault("scheduler.shutdown_grace_s", 30)
	viper.SetDefault("scheduler.worker_pool_size", 8)

	viper.SetDefault("notify.timeout_s", 5)
}
