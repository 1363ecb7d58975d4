package cfg

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port           string
	Environment    string
	LogLevel       string
	BaseURL        string
	DatabasePath   string
	RedisURL       string
	RedisTimeout   time.Duration
	MaxPasteSize   int64
	Quota          QuotaCfg
	DeviceCodeTTL  time.Duration
	PollInterval   time.Duration
	SweepInterval  time.Duration
	ViewWorkers    int
	ContextTimeout time.Duration
	TrustedProxies []string
	AllowedOrigins []string
	MetricsUser    string
	MetricsPass    Secret
	CredCacheSize  int
	CredCacheTTL   time.Duration
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBQueryTimeout time.Duration
}

type QuotaCfg struct {
	AnonDaily        int
	AuthDaily        int
	DeviceInitMinute int
	ReportMinute     int
	FallbackPerMin   int
}

func Load() (*Cfg, error) {
	_ = godotenv.Load()
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.BaseURL = getEnv("BASE_URL", "http://localhost:8080")
	c.DatabasePath = getEnv("DATABASE_PATH", "punt.db")
	c.RedisURL = getEnv("REDIS_URL", "")
	var err error
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", 4*1024*1024)
	if err != nil {
		return nil, err
	}
	c.Quota.AnonDaily, err = getInt("QUOTA_ANON_DAILY", 100)
	if err != nil {
		return nil, err
	}
	c.Quota.AuthDaily, err = getInt("QUOTA_AUTH_DAILY", 1000)
	if err != nil {
		return nil, err
	}
	c.Quota.DeviceInitMinute, err = getInt("QUOTA_DEVICE_INIT_MINUTE", 10)
	if err != nil {
		return nil, err
	}
	c.Quota.ReportMinute, err = getInt("QUOTA_REPORT_MINUTE", 5)
	if err != nil {
		return nil, err
	}
	c.Quota.FallbackPerMin, err = getInt("QUOTA_FALLBACK_PER_MINUTE", 5)
	if err != nil {
		return nil, err
	}
	c.DeviceCodeTTL, err = getDuration("DEVICE_CODE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	c.PollInterval, err = getDuration("POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	c.SweepInterval, err = getDuration("SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	c.ViewWorkers, err = getInt("VIEW_WORKERS", 20)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.CredCacheSize, err = getInt("CRED_CACHE_SIZE", 4096)
	if err != nil {
		return nil, err
	}
	c.CredCacheTTL, err = getDuration("CRED_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, err
	}
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 100)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
	}
	if c.MaxPasteSize <= 0 {
		return errors.New("MAX_PASTE_SIZE must be positive")
	}
	if c.MaxPasteSize > 16*1024*1024 {
		return errors.New("MAX_PASTE_SIZE cannot exceed 16MB")
	}
	if c.Quota.AnonDaily <= 0 || c.Quota.AuthDaily <= 0 {
		return errors.New("daily quota ceilings must be positive")
	}
	if c.Quota.AuthDaily < c.Quota.AnonDaily {
		return errors.New("QUOTA_AUTH_DAILY must be >= QUOTA_ANON_DAILY")
	}
	if c.Quota.DeviceInitMinute <= 0 || c.Quota.ReportMinute <= 0 {
		return errors.New("per-minute quota ceilings must be positive")
	}
	if c.DeviceCodeTTL < time.Minute || c.DeviceCodeTTL > 15*time.Minute {
		return errors.New("DEVICE_CODE_TTL must be between 1m and 15m")
	}
	if c.PollInterval < 500*time.Millisecond {
		return errors.New("POLL_INTERVAL must be at least 500ms")
	}
	if c.SweepInterval < time.Minute {
		return errors.New("SWEEP_INTERVAL must be at least 1m")
	}
	if c.ViewWorkers <= 0 {
		return errors.New("VIEW_WORKERS must be positive")
	}
	if c.CredCacheSize <= 0 {
		return errors.New("CRED_CACHE_SIZE must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}

func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
