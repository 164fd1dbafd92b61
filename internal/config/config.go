package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"APP_ENV"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	Database    DatabaseConfig    `mapstructure:",squash"`
	TradeSafe   TradeSafeConfig   `mapstructure:",squash"`
	Email       EmailConfig       `mapstructure:",squash"`
	Cloudinary  CloudinaryConfig  `mapstructure:",squash"`
	AutoRelease AutoReleaseConfig `mapstructure:",squash"`
	Tx          TxConfig          `mapstructure:",squash"`
	Log         LogConfig         `mapstructure:",squash"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"DATABASE_URL"`
	Host     string `mapstructure:"DB_HOST"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	Port     string `mapstructure:"DB_PORT"`
	MaxConns int32  `mapstructure:"DB_MAX_CONNS"`
}

type TradeSafeConfig struct {
	APIURL         string `mapstructure:"TRADESAFE_API_URL"`
	TokenURL       string `mapstructure:"TRADESAFE_TOKEN_URL"`
	ClientID       string `mapstructure:"TRADESAFE_CLIENT_ID"`
	ClientSecret   string `mapstructure:"TRADESAFE_CLIENT_SECRET"`
	TimeoutSeconds int    `mapstructure:"TRADESAFE_TIMEOUT_SECONDS"`
	RetryMax       int    `mapstructure:"TRADESAFE_RETRY_MAX"`
}

type EmailConfig struct {
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	From         string `mapstructure:"FROM_EMAIL"`
}

type CloudinaryConfig struct {
	CloudName string `mapstructure:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `mapstructure:"CLOUDINARY_API_KEY"`
	APISecret string `mapstructure:"CLOUDINARY_API_SECRET"`
}

type AutoReleaseConfig struct {
	SweepIntervalMinutes int `mapstructure:"AUTO_RELEASE_SWEEP_INTERVAL_MINUTES"`
	SweepBatch           int `mapstructure:"AUTO_RELEASE_SWEEP_BATCH"`
}

type TxConfig struct {
	MaxRetries       int `mapstructure:"TX_MAX_RETRIES"`
	InitialBackoffMS int `mapstructure:"TX_INITIAL_BACKOFF_MS"`
	MaxBackoffMS     int `mapstructure:"TX_MAX_BACKOFF_MS"`
}

type LogConfig struct {
	Level string `mapstructure:"LOG_LEVEL"`
	File  string `mapstructure:"LOG_FILE"`
}

var defaults = map[string]any{
	"PORT":                                "8080",
	"APP_ENV":                             "development",
	"STORE_DRIVER":                        "postgres",
	"JWT_SECRET":                          "",
	"DATABASE_URL":                        "",
	"DB_HOST":                             "",
	"DB_USER":                             "",
	"DB_PASSWORD":                         "",
	"DB_NAME":                             "",
	"DB_PORT":                             "",
	"DB_MAX_CONNS":                        20,
	"TRADESAFE_API_URL":                   "https://api.tradesafe.co.za/graphql",
	"TRADESAFE_TOKEN_URL":                 "https://auth.tradesafe.co.za/oauth/token",
	"TRADESAFE_CLIENT_ID":                 "",
	"TRADESAFE_CLIENT_SECRET":             "",
	"TRADESAFE_TIMEOUT_SECONDS":           20,
	"TRADESAFE_RETRY_MAX":                 2,
	"RESEND_API_KEY":                      "",
	"FROM_EMAIL":                          "",
	"CLOUDINARY_CLOUD_NAME":               "",
	"CLOUDINARY_API_KEY":                  "",
	"CLOUDINARY_API_SECRET":               "",
	"AUTO_RELEASE_SWEEP_INTERVAL_MINUTES": 15,
	"AUTO_RELEASE_SWEEP_BATCH":            100,
	"TX_MAX_RETRIES":                      3,
	"TX_INITIAL_BACKOFF_MS":               50,
	"TX_MAX_BACKOFF_MS":                   1000,
	"LOG_LEVEL":                           "info",
	"LOG_FILE":                            "",
}

// Load reads configuration from the environment. Every key needs a default so
// that viper knows about it when unmarshalling.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.TradeSafe.TimeoutSeconds < 10 {
		c.TradeSafe.TimeoutSeconds = 10
	}
	if c.TradeSafe.TimeoutSeconds > 30 {
		c.TradeSafe.TimeoutSeconds = 30
	}
	if c.TradeSafe.RetryMax < 0 {
		c.TradeSafe.RetryMax = 0
	}
	if c.AutoRelease.SweepIntervalMinutes <= 0 {
		c.AutoRelease.SweepIntervalMinutes = 15
	}
	if c.AutoRelease.SweepBatch <= 0 {
		c.AutoRelease.SweepBatch = 100
	}
	if c.Tx.MaxRetries < 0 {
		c.Tx.MaxRetries = 0
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DSN returns DATABASE_URL or builds one from the DB_* variables.
func (d DatabaseConfig) DSN() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	if d.Host == "" || d.User == "" || d.Password == "" || d.Name == "" || d.Port == "" {
		return "", fmt.Errorf("database configuration not provided: either set DATABASE_URL or all of DB_HOST, DB_USER, DB_PASSWORD, DB_NAME, and DB_PORT")
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port,
	), nil
}

func (t TradeSafeConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (t TradeSafeConfig) Enabled() bool {
	return t.ClientID != "" && t.ClientSecret != ""
}

func (a AutoReleaseConfig) Interval() time.Duration {
	return time.Duration(a.SweepIntervalMinutes) * time.Minute
}

func (t TxConfig) InitialBackoff() time.Duration {
	return time.Duration(t.InitialBackoffMS) * time.Millisecond
}

func (t TxConfig) MaxBackoff() time.Duration {
	return time.Duration(t.MaxBackoffMS) * time.Millisecond
}

// MaskSecret hides all but the edges of a secret for startup logging.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
