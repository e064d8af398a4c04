package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"wagerbook/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Redis backs the idempotency guard and the settlement scheduler
	RedisURL string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)

	// HTTP API
	HTTPAddr    string
	AdminAPIKey string // Required in X-Admin-Key on admin routes

	Discord     DiscordConfig
	Wager       WagerConfig
	Fees        FeeConfig
	Idempotency IdempotencyConfig
	Reconciler  ReconcilerConfig
	Scheduler   SchedulerConfig
	Fiat        FiatConfig
	Crypto      CryptoConfig
	Metrics     MetricsConfig

	// Environment
	Environment string // "development", "production" or "test"
}

// DiscordConfig configures the mediation channel messenger
type DiscordConfig struct {
	Token            string
	DisputeChannelID string // Parent channel where dispute threads are opened
}

// Enabled reports whether the Discord messenger should be used
func (c DiscordConfig) Enabled() bool {
	return c.Token != "" && c.DisputeChannelID != ""
}

// WagerConfig holds wager lifecycle settings
type WagerConfig struct {
	MinStake     int64         // In cents
	ClaimWindow  time.Duration // Delay before an unanswered claim settles automatically
	SuperAdminID int64         // Mediates only when a category has no other admin
}

// FeeBracket is one marginal bracket of the platform fee schedule.
// UpperBound is in cents; zero means unbounded.
type FeeBracket struct {
	UpperBound int64
	Rate       decimal.Decimal
}

// FeeConfig holds the platform fee schedule
type FeeConfig struct {
	Brackets []FeeBracket
	Floor    int64 // In cents
}

// IdempotencyConfig holds TTLs for duplicate suppression windows
type IdempotencyConfig struct {
	WalletTTL time.Duration
	FiatTTL   time.Duration
}

// ReconcilerConfig holds external confirmation retry settings
type ReconcilerConfig struct {
	MaxRetries   int
	RetryDelay   time.Duration
	InitialDelay time.Duration // Delay before the first confirmation attempt
	RailTimeout  time.Duration // Per-request timeout towards rail adapters
	StaleAfter   time.Duration // Age at which startup recovery re-enqueues a pending row
}

// SchedulerConfig holds settlement scheduler settings
type SchedulerConfig struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	MaxAttempts  int
}

// FiatConfig holds bank-transfer rail settings
type FiatConfig struct {
	WebhookSecret   string
	PlatformAccount string // Account identifier deposits must be paid into
	Tolerance       decimal.Decimal
}

// CryptoConfig holds blockchain rail settings
type CryptoConfig struct {
	PlatformAddress string
	Asset           string
	UsdRate         decimal.Decimal // USD per unit of Asset, used by the static rate provider
	Tolerance       decimal.Decimal
}

// MetricsConfig holds OpenTelemetry settings
type MetricsConfig struct {
	Enabled              bool
	ServiceName          string
	ExporterType         string // "console", "otlp" or "none"
	OTLPEndpoint         string
	ExportIntervalMillis int
}

// DefaultFeeBrackets returns the standard marginal schedule:
// 8% up to $100, 5% up to $1,000, 3% up to $10,000, 1.5% up to $100,000, 0.35% above.
func DefaultFeeBrackets() []FeeBracket {
	return []FeeBracket{
		{UpperBound: 10_000, Rate: decimal.RequireFromString("0.08")},
		{UpperBound: 100_000, Rate: decimal.RequireFromString("0.05")},
		{UpperBound: 1_000_000, Rate: decimal.RequireFromString("0.03")},
		{UpperBound: 10_000_000, Rate: decimal.RequireFromString("0.015")},
		{UpperBound: 0, Rate: decimal.RequireFromString("0.0035")},
	}
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Load reads configuration from environment variables, after loading a .env file if present
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),
		RedisURL:     getEnvWithDefault("REDIS_URL", "redis://redis:6379/0"),
		NATSServers:  getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),
		HTTPAddr:     getEnvWithDefault("HTTP_ADDR", ":8080"),
		AdminAPIKey:  os.Getenv("ADMIN_API_KEY"),

		Discord: DiscordConfig{
			Token:            os.Getenv("DISCORD_TOKEN"),
			DisputeChannelID: os.Getenv("DISCORD_DISPUTE_CHANNEL_ID"),
		},
		Wager: WagerConfig{
			MinStake:     getEnvInt64("WAGER_MIN_STAKE", 100),
			ClaimWindow:  getEnvDuration("WAGER_CLAIM_WINDOW", 24*time.Hour),
			SuperAdminID: getEnvInt64("SUPER_ADMIN_ID", 1),
		},
		Fees: FeeConfig{
			Brackets: DefaultFeeBrackets(),
			Floor:    getEnvInt64("FEE_FLOOR", 50),
		},
		Idempotency: IdempotencyConfig{
			WalletTTL: getEnvDuration("IDEMPOTENCY_WALLET_TTL", 15*time.Minute),
			FiatTTL:   getEnvDuration("IDEMPOTENCY_FIAT_TTL", 20*time.Minute),
		},
		Reconciler: ReconcilerConfig{
			MaxRetries:   int(getEnvInt64("RECONCILER_MAX_RETRIES", 2)),
			RetryDelay:   getEnvDuration("RECONCILER_RETRY_DELAY", 5*time.Minute),
			InitialDelay: getEnvDuration("RECONCILER_INITIAL_DELAY", 30*time.Second),
			RailTimeout:  getEnvDuration("RAIL_TIMEOUT", 10*time.Second),
			StaleAfter:   getEnvDuration("RECONCILER_STALE_AFTER", 10*time.Minute),
		},
		Scheduler: SchedulerConfig{
			PollInterval: getEnvDuration("SCHEDULER_POLL_INTERVAL", 5*time.Second),
			RetryDelay:   getEnvDuration("SCHEDULER_RETRY_DELAY", time.Minute),
			MaxAttempts:  int(getEnvInt64("SCHEDULER_MAX_ATTEMPTS", 3)),
		},
		Fiat: FiatConfig{
			WebhookSecret:   os.Getenv("FIAT_WEBHOOK_SECRET"),
			PlatformAccount: os.Getenv("FIAT_PLATFORM_ACCOUNT"),
			Tolerance:       getEnvDecimal("FIAT_TOLERANCE", decimal.Zero),
		},
		Crypto: CryptoConfig{
			PlatformAddress: os.Getenv("CRYPTO_PLATFORM_ADDRESS"),
			Asset:           getEnvWithDefault("CRYPTO_ASSET", "USDT"),
			UsdRate:         getEnvDecimal("CRYPTO_USD_RATE", decimal.NewFromInt(1)),
			Tolerance:       getEnvDecimal("CRYPTO_TOLERANCE", decimal.RequireFromString("0.000001")),
		},
		Metrics: MetricsConfig{
			Enabled:              os.Getenv("OTEL_ENABLED") == "true",
			ServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "wagerbook"),
			ExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "otlp"),
			OTLPEndpoint:         getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
			ExportIntervalMillis: int(getEnvInt64("OTEL_EXPORT_INTERVAL_MILLIS", 60000)),
		},

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if brackets := os.Getenv("FEE_BRACKETS"); brackets != "" {
		parsed, err := ParseFeeBrackets(brackets)
		if err != nil {
			return nil, fmt.Errorf("invalid FEE_BRACKETS: %w", err)
		}
		config.Fees.Brackets = parsed
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.Fiat.WebhookSecret == "" {
			return nil, fmt.Errorf("FIAT_WEBHOOK_SECRET is required")
		}
		// If DatabaseName is provided, ensure it's not empty
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	return config, nil
}

// ParseFeeBrackets parses "upper:rate" pairs separated by commas, e.g.
// "10000:0.08,100000:0.05,0:0.01". An upper bound of 0 marks the open-ended bracket,
// which must come last.
func ParseFeeBrackets(raw string) ([]FeeBracket, error) {
	var brackets []FeeBracket
	var previous int64
	for i, part := range strings.Split(raw, ",") {
		bound, rate, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("bracket %d: expected upper:rate", i)
		}
		upper, err := strconv.ParseInt(bound, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bracket %d: invalid upper bound: %w", i, err)
		}
		r, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("bracket %d: invalid rate: %w", i, err)
		}
		if r.IsNegative() {
			return nil, fmt.Errorf("bracket %d: rate cannot be negative", i)
		}
		if previous == 0 && i > 0 {
			return nil, fmt.Errorf("bracket %d follows the open-ended bracket", i)
		}
		if upper != 0 && upper <= previous {
			return nil, fmt.Errorf("bracket %d: upper bounds must increase", i)
		}
		brackets = append(brackets, FeeBracket{UpperBound: upper, Rate: r})
		previous = upper
	}
	if len(brackets) == 0 || brackets[len(brackets)-1].UpperBound != 0 {
		return nil, fmt.Errorf("last bracket must be open-ended (upper bound 0)")
	}
	return brackets, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment: "test",
		AdminAPIKey: "test-admin-key",
		Wager: WagerConfig{
			MinStake:     100,
			ClaimWindow:  24 * time.Hour,
			SuperAdminID: 1,
		},
		Fees: FeeConfig{
			Brackets: DefaultFeeBrackets(),
			Floor:    50,
		},
		Idempotency: IdempotencyConfig{
			WalletTTL: 15 * time.Minute,
			FiatTTL:   20 * time.Minute,
		},
		Reconciler: ReconcilerConfig{
			MaxRetries:   2,
			RetryDelay:   time.Minute,
			InitialDelay: time.Second,
			RailTimeout:  time.Second,
			StaleAfter:   time.Minute,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 50 * time.Millisecond,
			RetryDelay:   100 * time.Millisecond,
			MaxAttempts:  3,
		},
		Fiat: FiatConfig{
			WebhookSecret:   "test-secret",
			PlatformAccount: "ACCT_platform",
			Tolerance:       decimal.Zero,
		},
		Crypto: CryptoConfig{
			PlatformAddress: "0xPLATFORM",
			Asset:           "USDT",
			UsdRate:         decimal.NewFromInt(1),
			Tolerance:       decimal.RequireFromString("0.000001"),
		},
		Metrics: MetricsConfig{
			ServiceName:  "wagerbook-test",
			ExporterType: "none",
		},
	}
}
