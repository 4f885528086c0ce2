package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"courtbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Waitlist   WaitlistConfig   `yaml:"waitlist"`
	Worker     WorkerConfig     `yaml:"worker"`
	Exports    ExportConfig     `yaml:"exports"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	// UserHeader carries the caller identity set by the upstream auth layer.
	UserHeader string `yaml:"user_header"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	// LockBackend is one of memory, redis or failover.
	LockBackend   string `yaml:"lock_backend"`
	LockTimeoutMs int    `yaml:"lock_timeout_ms"`
	LockTTLMs     int    `yaml:"lock_ttl_ms"`
}

func (b BookingConfig) LockTimeout() time.Duration {
	return time.Duration(b.LockTimeoutMs) * time.Millisecond
}

func (b BookingConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLMs) * time.Millisecond
}

type WaitlistConfig struct {
	ExpiryEnabled bool   `yaml:"expiry_enabled"`
	ExpiryCron    string `yaml:"expiry_cron"`
}

type WorkerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
	// Schedule writes a full report into Path on a cron; empty disables it.
	Schedule string `yaml:"schedule"`
}

// CatalogConfig seeds courts, coaches, equipment, pricing rules and holidays on start.
type CatalogConfig struct {
	Courts       []models.Court       `yaml:"courts"`
	Coaches      []models.Coach       `yaml:"coaches"`
	Equipment    []models.Equipment   `yaml:"equipment"`
	PricingRules []models.PricingRule `yaml:"pricing_rules"`
	Holidays     []models.Holiday     `yaml:"holidays"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional outside of local development
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Booking.LockBackend {
	case "memory", "redis", "failover":
	default:
		return fmt.Errorf("unknown booking.lock_backend %q", c.Booking.LockBackend)
	}
	if c.Booking.LockBackend != "memory" && c.Redis.Address == "" {
		return fmt.Errorf("booking.lock_backend=%s requires redis.address", c.Booking.LockBackend)
	}

	return c.Catalog.Validate()
}

func (c CatalogConfig) Validate() error {
	courtIDs := make(map[string]bool)
	for _, court := range c.Courts {
		if court.ID == "" {
			return fmt.Errorf("court '%s' has empty ID", court.Name)
		}
		if courtIDs[court.ID] {
			return fmt.Errorf("duplicate court ID found: %s", court.ID)
		}
		if court.BasePrice.IsNegative() {
			return fmt.Errorf("court %s has negative base_price", court.ID)
		}
		courtIDs[court.ID] = true
	}

	coachIDs := make(map[string]bool)
	for _, coach := range c.Coaches {
		if coach.ID == "" {
			return fmt.Errorf("coach '%s' has empty ID", coach.Name)
		}
		if coachIDs[coach.ID] {
			return fmt.Errorf("duplicate coach ID found: %s", coach.ID)
		}
		coachIDs[coach.ID] = true
	}

	types := make(map[string]bool)
	for _, eq := range c.Equipment {
		if eq.Type != models.EquipmentRacket && eq.Type != models.EquipmentShoes {
			return fmt.Errorf("unknown equipment type %q", eq.Type)
		}
		if types[eq.Type] {
			return fmt.Errorf("duplicate equipment type: %s", eq.Type)
		}
		if eq.TotalStock < 0 || eq.AvailableCount < 0 || eq.AvailableCount > eq.TotalStock {
			return fmt.Errorf("equipment %s: need 0 <= available_count <= total_stock", eq.Type)
		}
		types[eq.Type] = true
	}

	for _, rule := range c.PricingRules {
		switch rule.RuleType {
		case models.RulePeakHour, models.RuleWeekend, models.RuleHoliday, models.RulePremiumCourt:
		default:
			return fmt.Errorf("pricing rule %q has unknown rule_type %q", rule.Name, rule.RuleType)
		}
		if rule.Multiplier.IsNegative() {
			return fmt.Errorf("pricing rule %q has negative multiplier", rule.Name)
		}
		if rule.Surcharge.IsNegative() {
			return fmt.Errorf("pricing rule %q has negative surcharge", rule.Name)
		}
		for _, clock := range []string{rule.StartTime, rule.EndTime} {
			if clock == "" {
				continue
			}
			if _, err := models.ParseClock(clock); err != nil {
				return fmt.Errorf("pricing rule %q: %w", rule.Name, err)
			}
		}
		for _, d := range rule.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("pricing rule %q: day of week %d out of range", rule.Name, d)
			}
		}
	}

	for _, h := range c.Holidays {
		if _, err := time.Parse(models.DateLayout, strings.TrimSpace(h.Date)); err != nil {
			return fmt.Errorf("holiday %q: %w", h.Name, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.UserHeader == "" {
		c.API.UserHeader = "X-User-ID"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Booking.LockBackend == "" {
		c.Booking.LockBackend = "memory"
	}
	if c.Booking.LockTimeoutMs == 0 {
		c.Booking.LockTimeoutMs = models.DefaultLockTimeout
	}
	if c.Booking.LockTTLMs == 0 {
		c.Booking.LockTTLMs = models.DefaultLockTTL
	}

	if c.Waitlist.ExpiryCron == "" {
		c.Waitlist.ExpiryCron = models.DefaultWaitlistExpiryCron
	}

	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
	if c.Worker.BackoffFactor == 0 {
		c.Worker.BackoffFactor = 2
	}

	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}

	for i := range c.Catalog.Courts {
		if c.Catalog.Courts[i].Status == "" {
			c.Catalog.Courts[i].Status = models.ResourceAvailable
		}
		if c.Catalog.Courts[i].Type == "" {
			c.Catalog.Courts[i].Type = models.CourtIndoor
		}
	}
	for i := range c.Catalog.Coaches {
		if c.Catalog.Coaches[i].Status == "" {
			c.Catalog.Coaches[i].Status = models.ResourceAvailable
		}
	}
}
