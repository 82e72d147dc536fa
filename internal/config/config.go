package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config aggregates runtime configuration for the API and supporting services.
type Config struct {
	ListenAddr    string
	StorageDriver string
	MySQLDSN      string
	LogLevel      string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIImageModel string
	RequestTimeout   time.Duration

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	PlaceholderImageURL string

	PaymentNetwork       string
	PaymentTokenAddress  string
	PaymentTokenDecimals int
	MonthlyPlanPrice     decimal.Decimal
	MonthlyPlanCredits   int
	OneTimePlanPrice     decimal.Decimal
	OneTimePlanCredits   int
	MonthlyPlanDuration  time.Duration
	OneTimeOrderDuration time.Duration

	GenerationCost int
	ViewCost       int

	GuardWindow           time.Duration
	RecentReportWindow    time.Duration
	ReportCacheTTL        time.Duration
	ReportCacheSize       int
	GenerationMaxAttempts int
	GenerationBackoff     time.Duration
	VerifyMaxAttempts     int
	VerifyRetryDelay      time.Duration
	RequestCeiling        time.Duration
	ExpiryNoticeWindow    time.Duration

	ChainRPCURL        string
	ChainConfirmations uint64

	TelegramBotToken    string
	TelegramAlertChatID int64

	AdminUsername string
	AdminPassword string

	RateLimitPerMinute  int
	MaintenanceSchedule string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultOpenAIBaseURL = "https://api.openai.com/v1"

	cfg := Config{
		ListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverMySQL)),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),

		OpenAIBaseURL:    normalizeBaseURL(getEnv("OPENAI_BASE_URL", defaultOpenAIBaseURL), defaultOpenAIBaseURL),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4-1106-preview"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		RequestTimeout:   getSeconds("HTTP_TIMEOUT_SECONDS", 120),

		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:        getEnv("S3_PREFIX", "reports"),

		PlaceholderImageURL: getEnv("PLACEHOLDER_IMAGE_URL", "/placeholder.jpg"),

		PaymentNetwork:       getEnv("PAYMENT_NETWORK", "polygon"),
		PaymentTokenAddress:  getEnv("PAYMENT_TOKEN_ADDRESS", "0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
		PaymentTokenDecimals: getInt("PAYMENT_TOKEN_DECIMALS", 6),
		MonthlyPlanPrice:     getDecimal("MONTHLY_PLAN_PRICE", decimal.RequireFromString("9.9")),
		MonthlyPlanCredits:   getInt("MONTHLY_PLAN_CREDITS", 1000),
		OneTimePlanPrice:     getDecimal("ONETIME_PLAN_PRICE", decimal.RequireFromString("9.9")),
		OneTimePlanCredits:   getInt("ONETIME_PLAN_CREDITS", 700),
		MonthlyPlanDuration:  24 * time.Hour * time.Duration(getInt("MONTHLY_PLAN_DAYS", 30)),
		OneTimeOrderDuration: 365 * 24 * time.Hour * time.Duration(getInt("ONETIME_PLAN_YEARS", 50)),

		GenerationCost: getInt("GENERATION_COST", 10),
		ViewCost:       getInt("VIEW_COST", 5),

		GuardWindow:           getSeconds("GUARD_WINDOW_SECONDS", 300),
		RecentReportWindow:    getSeconds("RECENT_REPORT_WINDOW_SECONDS", 300),
		ReportCacheTTL:        getSeconds("REPORT_CACHE_TTL_SECONDS", 300),
		ReportCacheSize:       getInt("REPORT_CACHE_SIZE", 1024),
		GenerationMaxAttempts: getInt("GENERATION_MAX_ATTEMPTS", 3),
		GenerationBackoff:     getSeconds("GENERATION_BACKOFF_SECONDS", 2),
		VerifyMaxAttempts:     getInt("VERIFY_MAX_ATTEMPTS", 5),
		VerifyRetryDelay:      getSeconds("VERIFY_RETRY_DELAY_SECONDS", 3),
		RequestCeiling:        getSeconds("REQUEST_CEILING_SECONDS", 300),
		ExpiryNoticeWindow:    24 * time.Hour * time.Duration(getInt("EXPIRY_NOTICE_DAYS", 3)),

		ChainRPCURL:        os.Getenv("CHAIN_RPC_URL"),
		ChainConfirmations: uint64(getInt64("CHAIN_CONFIRMATIONS", 1)),

		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAlertChatID: getInt64("TELEGRAM_ALERT_CHAT_ID", 0),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "change-me"),

		RateLimitPerMinute:  getInt("RATE_LIMIT_PER_MINUTE", 6),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "@every 1m"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	var missing []string
	switch cfg.StorageDriver {
	case DriverMySQL:
		if cfg.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.S3Enabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramAlertChatID == 0 {
		missing = append(missing, "TELEGRAM_ALERT_CHAT_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.GenerationMaxAttempts < 1 {
		cfg.GenerationMaxAttempts = 1
	}
	if cfg.VerifyMaxAttempts < 1 {
		cfg.VerifyMaxAttempts = 1
	}

	return cfg, nil
}

// S3Enabled reports whether generated images should be copied to object storage.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// normalizeBaseURL trims trailing slashes and adds a scheme when the value is a bare host.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return fallback
		}
	}
	if parsed.Host == "" {
		return fallback
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getInt(key, fallback))
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback
	}
	return d
}

// loadEnvFile loads the first env file found. An explicit CONFIG_ENV_PATH must exist;
// the conventional locations are optional.
func loadEnvFile() error {
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		if err := godotenv.Overload(custom); err != nil {
			return fmt.Errorf("load env file %s: %w", custom, err)
		}
		return nil
	}

	candidates := []string{
		filepath.Join("configs", ".env"),
		".env",
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
