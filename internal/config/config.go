package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"clinicq/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Clinic     ClinicConfig     `yaml:"clinic"`
	Queue      QueueConfig      `yaml:"queue"`
	Worker     WorkerConfig     `yaml:"worker"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BackupConfig schedules sqlite snapshots. Interval defaults to 24h.
type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
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
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey grants staff access. Permissions are "mediator" and/or "doctor";
// an empty list allows every staff route.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ClinicConfig holds the business constants of the queue and check-in flow.
type ClinicConfig struct {
	Location                 string   `yaml:"location"`
	AverageMinutesPerPatient int      `yaml:"average_minutes_per_patient"`
	TravelTimeMinutes        int      `yaml:"travel_time_minutes"`
	GracePeriodSeconds       int      `yaml:"grace_period_seconds"`
	LateFee                  int64    `yaml:"late_fee"`
	LateArrivalCharge        int64    `yaml:"late_arrival_charge"`
	ConsultationFee          int64    `yaml:"consultation_fee"`
	CreditExpiryWorkingDays  int      `yaml:"credit_expiry_working_days"`
	TokenMin                 int      `yaml:"token_min"`
	TokenMax                 int      `yaml:"token_max"`
	BookingWindowDays        int      `yaml:"booking_window_days"`
	TimeSlots                []string `yaml:"time_slots"`
}

type QueueConfig struct {
	StartingToken    int           `yaml:"starting_token"`
	SimulateInterval time.Duration `yaml:"simulate_interval"`
	TokenStrategy    string        `yaml:"token_strategy"`
}

type WorkerConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

const (
	TokenStrategyRandom     = "random"
	TokenStrategySequential = "sequential"
)

func Load(configPath string) (*Config, error) {
	// .env is optional; real environment variables win either way.
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

	if c.Clinic.TokenMin <= 0 || c.Clinic.TokenMax <= c.Clinic.TokenMin {
		return fmt.Errorf("invalid token range [%d, %d)", c.Clinic.TokenMin, c.Clinic.TokenMax)
	}

	if _, err := time.LoadLocation(c.Clinic.Location); err != nil {
		return fmt.Errorf("invalid clinic location %q: %w", c.Clinic.Location, err)
	}

	switch c.Queue.TokenStrategy {
	case TokenStrategyRandom, TokenStrategySequential:
	default:
		return fmt.Errorf("unknown token strategy %q", c.Queue.TokenStrategy)
	}

	return ValidateTimeSlots(c.Clinic.TimeSlots)
}

func ValidateTimeSlots(slots []string) error {
	seen := make(map[string]bool, len(slots))
	for _, slot := range slots {
		if _, _, err := models.ParseSlot(slot); err != nil {
			return fmt.Errorf("time slot %q: %w", slot, err)
		}
		if seen[slot] {
			return fmt.Errorf("duplicate time slot: %s", slot)
		}
		seen[slot] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "clinicq"
	}

	if c.Clinic.Location == "" {
		c.Clinic.Location = "Local"
	}
	if c.Clinic.AverageMinutesPerPatient == 0 {
		c.Clinic.AverageMinutesPerPatient = models.DefaultAverageMinutesPerPatient
	}
	if c.Clinic.TravelTimeMinutes == 0 {
		c.Clinic.TravelTimeMinutes = models.DefaultTravelTimeMinutes
	}
	if c.Clinic.GracePeriodSeconds == 0 {
		c.Clinic.GracePeriodSeconds = models.DefaultGracePeriodSeconds
	}
	if c.Clinic.LateFee == 0 {
		c.Clinic.LateFee = models.DefaultLateFee
	}
	if c.Clinic.LateArrivalCharge == 0 {
		c.Clinic.LateArrivalCharge = models.DefaultLateArrivalCharge
	}
	if c.Clinic.ConsultationFee == 0 {
		c.Clinic.ConsultationFee = models.DefaultConsultationFee
	}
	if c.Clinic.CreditExpiryWorkingDays == 0 {
		c.Clinic.CreditExpiryWorkingDays = models.DefaultCreditExpiryWorkingDays
	}
	if c.Clinic.TokenMin == 0 && c.Clinic.TokenMax == 0 {
		c.Clinic.TokenMin = models.FreeTokenMin
		c.Clinic.TokenMax = models.FreeTokenMax
	}
	if c.Clinic.BookingWindowDays == 0 {
		c.Clinic.BookingWindowDays = models.DefaultBookingWindowDays
	}
	if len(c.Clinic.TimeSlots) == 0 {
		c.Clinic.TimeSlots = append([]string(nil), models.DefaultTimeSlots...)
	}

	if c.Queue.StartingToken == 0 {
		c.Queue.StartingToken = models.DefaultStartingToken
	}
	if c.Queue.TokenStrategy == "" {
		c.Queue.TokenStrategy = TokenStrategyRandom
	}

	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// ClinicLocation resolves the configured time zone; Validate guarantees it loads.
func (c *Config) ClinicLocation() *time.Location {
	loc, err := time.LoadLocation(c.Clinic.Location)
	if err != nil {
		return time.Local
	}
	return loc
}
