// Package config defines the top-level configuration for the market maker
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETMAKER_* environment
// variables.
type Config struct {
	Engine   EngineConfig  `toml:"engine"`
	Fetcher  FetcherConfig `toml:"fetcher"`
	Btc38    Btc38Config   `toml:"btc38"`
	Dex      DexConfig     `toml:"dex"`
	Redis    RedisConfig   `toml:"redis"`
	S3       S3Config      `toml:"s3"`
	Notify   NotifyConfig  `toml:"notify"`
	Mode     string        `toml:"mode"`
	LogLevel string        `toml:"log_level"`
}

// EngineConfig holds the arbitrage decision parameters.
type EngineConfig struct {
	// ProfitThreshold is the minimum fee-adjusted relative profit, e.g. 0.02
	// for 2%.
	ProfitThreshold float64 `toml:"profit_threshold"`
	// MinTradeVolume is the smallest position worth trading, in base asset.
	MinTradeVolume float64 `toml:"min_trade_volume"`
	// ListingBuffer is the liquidity left behind on the thinner side so the
	// two legs do not consume the entire visible book.
	ListingBuffer float64 `toml:"listing_buffer"`
	// QuoteReserve and BaseReserve are never committed to a trade.
	QuoteReserve float64 `toml:"quote_reserve"`
	BaseReserve  float64 `toml:"base_reserve"`

	TickInterval    duration `toml:"tick_interval"`
	BookValidWindow duration `toml:"book_valid_window"`
	SyncTolerance   duration `toml:"sync_tolerance"`
	RequestTimeout  duration `toml:"request_timeout"`

	BalanceRefreshInterval duration `toml:"balance_refresh_interval"`
	ExposureCheckInterval  duration `toml:"exposure_check_interval"`
}

// FetcherConfig holds the per-venue book polling parameters.
type FetcherConfig struct {
	PollInterval      duration `toml:"poll_interval"`
	MinUpdateInterval duration `toml:"min_update_interval"`
	LagTolerance      duration `toml:"lag_tolerance"`
	RequestTimeout    duration `toml:"request_timeout"`
}

// Btc38Config holds BTC38 API credentials and venue parameters.
type Btc38Config struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	AccountID string `toml:"account_id"`

	Coin   string `toml:"coin"`
	Market string `toml:"market"`

	WallThreshold   float64 `toml:"wall_threshold"`
	FeeDeduction    float64 `toml:"fee_deduction"`
	WithdrawalFee   float64 `toml:"withdrawal_fee"`
	VolumePrecision int     `toml:"volume_precision"`
}

// DexConfig holds the cli_wallet connection and market parameters for the
// BitShares DEX.
type DexConfig struct {
	Enabled        bool   `toml:"enabled"`
	WalletURL      string `toml:"wallet_url"`
	WalletPassword string `toml:"wallet_password"`
	Account        string `toml:"account"`

	BaseSymbol     string `toml:"base_symbol"`
	BaseAssetID    string `toml:"base_asset_id"`
	BasePrecision  int    `toml:"base_precision"`
	QuoteSymbol    string `toml:"quote_symbol"`
	QuoteAssetID   string `toml:"quote_asset_id"`
	QuotePrecision int    `toml:"quote_precision"`

	BookDepth   int      `toml:"book_depth"`
	OrderExpiry duration `toml:"order_expiry"`

	WallThreshold   float64 `toml:"wall_threshold"`
	FeeDeduction    float64 `toml:"fee_deduction"`
	WithdrawalFee   float64 `toml:"withdrawal_fee"`
	VolumePrecision int     `toml:"volume_precision"`
}

// RedisConfig holds Redis connection parameters for the book mirror.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// S3Config holds object storage parameters for the book archiver.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	SampleInterval duration `toml:"sample_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	EmailAddr     string   `toml:"email_addr"`
	EmailUsername string   `toml:"email_username"`
	EmailPassword string   `toml:"email_password"`
	EmailFrom     string   `toml:"email_from"`
	EmailTo       []string `toml:"email_to"`

	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`

	Events []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			ProfitThreshold:        0.02,
			MinTradeVolume:         500,
			ListingBuffer:          1000,
			QuoteReserve:           50,
			BaseReserve:            100,
			TickInterval:           duration{500 * time.Millisecond},
			BookValidWindow:        duration{4 * time.Second},
			SyncTolerance:          duration{4 * time.Second},
			RequestTimeout:         duration{10 * time.Second},
			BalanceRefreshInterval: duration{5 * time.Minute},
			ExposureCheckInterval:  duration{time.Minute},
		},
		Fetcher: FetcherConfig{
			PollInterval:      duration{time.Second},
			MinUpdateInterval: duration{time.Second},
			LagTolerance:      duration{10 * time.Second},
			RequestTimeout:    duration{5 * time.Second},
		},
		Btc38: Btc38Config{
			Enabled:         true,
			BaseURL:         "http://api.btc38.com/v1/",
			Coin:            "bts",
			Market:          "cny",
			WallThreshold:   10,
			FeeDeduction:    0.014,
			WithdrawalFee:   0.01,
			VolumePrecision: 5,
		},
		Dex: DexConfig{
			Enabled:         true,
			WalletURL:       "ws://127.0.0.1:8092",
			BaseSymbol:      "BTS",
			BaseAssetID:     "1.3.0",
			BasePrecision:   5,
			QuoteSymbol:     "CNY",
			QuoteAssetID:    "1.3.113",
			QuotePrecision:  4,
			BookDepth:       10,
			OrderExpiry:     duration{0},
			WallThreshold:   10,
			FeeDeduction:    0.004,
			WithdrawalFee:   0,
			VolumePrecision: 5,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    10,
			MaxRetries:  3,
			TLSEnabled:  false,
			SnapshotTTL: duration{time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketmaker-data",
			UseSSL:         false,
			ForcePathStyle: true,
			SampleInterval: duration{time.Minute},
		},
		Notify: NotifyConfig{
			EmailAddr: "smtp.163.com:465",
			Events:    []string{"trade_submitted", "trade_failed", "exposure", "venue_down"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !c.Btc38.Enabled && !c.Dex.Enabled {
		errs = append(errs, "at least one venue must be enabled")
	}
	trading := strings.ToLower(c.Mode) == "trade"
	if trading && (!c.Btc38.Enabled || !c.Dex.Enabled) {
		errs = append(errs, "trade mode needs both venues enabled")
	}

	// Engine
	if c.Engine.ProfitThreshold <= 0 {
		errs = append(errs, "engine: profit_threshold must be > 0")
	}
	if c.Engine.MinTradeVolume <= 0 {
		errs = append(errs, "engine: min_trade_volume must be > 0")
	}
	if c.Engine.ListingBuffer < 0 {
		errs = append(errs, "engine: listing_buffer must be >= 0")
	}
	if c.Engine.QuoteReserve < 0 || c.Engine.BaseReserve < 0 {
		errs = append(errs, "engine: reserves must be >= 0")
	}
	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if c.Engine.BookValidWindow.Duration <= 0 {
		errs = append(errs, "engine: book_valid_window must be > 0")
	}
	if c.Engine.SyncTolerance.Duration <= 0 {
		errs = append(errs, "engine: sync_tolerance must be > 0")
	}

	// Fetcher
	if c.Fetcher.PollInterval.Duration <= 0 {
		errs = append(errs, "fetcher: poll_interval must be > 0")
	}
	if c.Fetcher.LagTolerance.Duration < c.Fetcher.PollInterval.Duration {
		errs = append(errs, "fetcher: lag_tolerance must be >= poll_interval")
	}

	// BTC38 credentials are only needed when orders will be placed.
	if c.Btc38.Enabled {
		if trading && (c.Btc38.AccessKey == "" || c.Btc38.SecretKey == "" || c.Btc38.AccountID == "") {
			errs = append(errs, "btc38: access_key, secret_key, and account_id are required in trade mode")
		}
		if c.Btc38.Coin == "" || c.Btc38.Market == "" {
			errs = append(errs, "btc38: coin and market must not be empty")
		}
		if c.Btc38.VolumePrecision < 0 {
			errs = append(errs, "btc38: volume_precision must be >= 0")
		}
	}

	// DEX
	if c.Dex.Enabled {
		if c.Dex.WalletURL == "" {
			errs = append(errs, "dex: wallet_url must not be empty")
		}
		if trading && c.Dex.Account == "" {
			errs = append(errs, "dex: account is required in trade mode")
		}
		if c.Dex.BaseSymbol == "" || c.Dex.QuoteSymbol == "" {
			errs = append(errs, "dex: base_symbol and quote_symbol must not be empty")
		}
		if c.Dex.BaseAssetID == "" || c.Dex.QuoteAssetID == "" {
			errs = append(errs, "dex: base_asset_id and quote_asset_id must not be empty")
		}
		if c.Dex.BasePrecision < 0 || c.Dex.QuotePrecision < 0 {
			errs = append(errs, "dex: precisions must be >= 0")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Notify: email fields must be set together, or all empty.
	emailSet := c.Notify.EmailUsername != "" || c.Notify.EmailPassword != "" || len(c.Notify.EmailTo) > 0
	if emailSet {
		if c.Notify.EmailAddr == "" || c.Notify.EmailUsername == "" || c.Notify.EmailPassword == "" || len(c.Notify.EmailTo) == 0 {
			errs = append(errs, "notify: email_addr, email_username, email_password, and email_to must all be set together")
		}
	}
	tgSet := c.Notify.TelegramToken != "" || c.Notify.TelegramChatID != ""
	if tgSet && (c.Notify.TelegramToken == "" || c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
