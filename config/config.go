package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Billing    BillingConfig    `yaml:"billing"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Collector  CollectorConfig  `yaml:"collector"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Backup     BackupConfig     `yaml:"backup"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	Timezone        string  `yaml:"timezone"`

	// Location is resolved from Timezone by Load.
	Location *time.Location `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// AuthConfig holds token signing settings and the bootstrap administrator.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// BillingConfig holds tariff defaults.
type BillingConfig struct {
	FallbackPrice float64 `yaml:"fallback_price"`
	// ReportConcurrency bounds parallel per-device lookups while aggregating.
	ReportConcurrency int `yaml:"report_concurrency"`
}

// JobsConfig holds the cron schedules for the periodic jobs.
type JobsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	AutoReadingSpec string        `yaml:"auto_reading_spec"`
	StatusCheckSpec string        `yaml:"status_check_spec"`
	BackupSpec      string        `yaml:"backup_spec"`
	MaxIncrement    float64       `yaml:"max_increment"`
	StaleAfterHours int           `yaml:"stale_after_hours"`
	StaleAfter      time.Duration `yaml:"-"`
}

// CollectorConfig holds the remote meter gateway poller configuration.
type CollectorConfig struct {
	Enabled         bool             `yaml:"enabled"`
	IntervalSeconds int              `yaml:"interval_seconds"`
	Interval        time.Duration    `yaml:"-"`
	HTTPProxy       string           `yaml:"http_proxy"`
	Request         CollectorRequest `yaml:"request"`
}

// CollectorRequest defines the HTTP request sent to the meter gateway.
type CollectorRequest struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
	Payload  map[string]any    `yaml:"payload"`
}

// MQTTConfig holds the broker settings for reading ingestion.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// BackupConfig selects where the weekly snapshot is written.
type BackupConfig struct {
	Target   string `yaml:"target"` // s3 or dir
	Dir      string `yaml:"dir"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	S3Prefix string `yaml:"s3_prefix"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets DIANBIAO_* environment variables override file values.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("dianbiao")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if s := v.GetString("database.dsn"); s != "" {
		cfg.Database.DSN = s
	}
	if s := v.GetString("database.driver"); s != "" {
		cfg.Database.Driver = s
	}
	if s := v.GetString("auth.jwt_secret"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if p := v.GetInt("server.port"); p > 0 {
		cfg.Server.Port = p
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	if cfg.Server.Timezone == "" {
		cfg.Server.Timezone = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		return err
	}
	cfg.Server.Location = loc

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Auth.TokenTTLHours <= 0 {
		cfg.Auth.TokenTTLHours = 24
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("auth.jwt_secret is not set; using an insecure development secret")
		cfg.Auth.JWTSecret = "dev-secret-change-me"
	}

	if cfg.Billing.FallbackPrice <= 0 {
		cfg.Billing.FallbackPrice = 1.0
	}
	if cfg.Billing.ReportConcurrency <= 0 {
		cfg.Billing.ReportConcurrency = 8
	}

	if cfg.Jobs.AutoReadingSpec == "" {
		cfg.Jobs.AutoReadingSpec = "0 0 * * *"
	}
	if cfg.Jobs.StatusCheckSpec == "" {
		cfg.Jobs.StatusCheckSpec = "0 * * * *"
	}
	if cfg.Jobs.BackupSpec == "" {
		cfg.Jobs.BackupSpec = "0 2 * * 0"
	}
	if cfg.Jobs.MaxIncrement <= 0 {
		cfg.Jobs.MaxIncrement = 10
	}
	if cfg.Jobs.StaleAfterHours <= 0 {
		cfg.Jobs.StaleAfterHours = 24
	}
	cfg.Jobs.StaleAfter = time.Duration(cfg.Jobs.StaleAfterHours) * time.Hour

	if cfg.Collector.IntervalSeconds <= 0 {
		cfg.Collector.IntervalSeconds = 300
	}
	cfg.Collector.Interval = time.Duration(cfg.Collector.IntervalSeconds) * time.Second
	if cfg.Collector.Request.PageSize <= 0 {
		cfg.Collector.Request.PageSize = 100
	}

	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "dianbiao/readings"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "dianbiaod"
	}

	if cfg.Backup.Target == "" {
		cfg.Backup.Target = "dir"
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "./backups"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Info().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return nil
}
