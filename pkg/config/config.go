package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Attendance AttendanceConfig
	NFC        NFCConfig
	Prediction PredictionConfig
	Seating    SeatingConfig
	Exports    ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig holds the school-day rules used to resolve attendance events.
type AttendanceConfig struct {
	Timezone      string
	LateCutoff    string
	StatsCacheTTL time.Duration
}

// Location resolves the school timezone. An empty value means UTC; Load
// rejects names that do not resolve.
func (c AttendanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Cutoff returns the late cutoff as an offset from midnight.
func (c AttendanceConfig) Cutoff() (time.Duration, error) {
	return ParseClock(c.LateCutoff)
}

// NFCConfig configures the NFC reader bridge and device authentication.
type NFCConfig struct {
	BridgeURL  string
	Timeout    time.Duration
	DeviceKeys []string
}

// PredictionConfig configures the external performance prediction API.
type PredictionConfig struct {
	URL           string
	Timeout       time.Duration
	HealthTimeout time.Duration
	CacheTTL      time.Duration
	Workers       int
	Retries       int
}

// SeatingConfig configures the external seating arrangement API.
type SeatingConfig struct {
	URL           string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

// ExportsConfig controls where report exports are written and how they are signed.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		Timezone:      v.GetString("ATTENDANCE_TIMEZONE"),
		LateCutoff:    v.GetString("ATTENDANCE_LATE_CUTOFF"),
		StatsCacheTTL: parseDuration(v.GetString("ATTENDANCE_STATS_CACHE_TTL"), time.Minute),
	}
	if _, err := cfg.Attendance.Cutoff(); err != nil {
		return nil, fmt.Errorf("ATTENDANCE_LATE_CUTOFF: %w", err)
	}
	if _, err := cfg.Attendance.Location(); err != nil {
		return nil, fmt.Errorf("ATTENDANCE_TIMEZONE: %w", err)
	}

	cfg.NFC = NFCConfig{
		BridgeURL:  strings.TrimRight(v.GetString("NFC_BRIDGE_URL"), "/"),
		Timeout:    parseDuration(v.GetString("NFC_TIMEOUT"), 5*time.Second),
		DeviceKeys: splitAndTrim(v.GetString("NFC_DEVICE_KEYS")),
	}

	cfg.Prediction = PredictionConfig{
		URL:           strings.TrimRight(v.GetString("PREDICTION_API_URL"), "/"),
		Timeout:       parseDuration(v.GetString("PREDICTION_TIMEOUT"), 30*time.Second),
		HealthTimeout: parseDuration(v.GetString("PREDICTION_HEALTH_TIMEOUT"), 5*time.Second),
		CacheTTL:      parseDuration(v.GetString("PREDICTION_CACHE_TTL"), 15*time.Minute),
		Workers:       v.GetInt("PREDICTION_WORKERS"),
		Retries:       v.GetInt("PREDICTION_RETRIES"),
	}

	cfg.Seating = SeatingConfig{
		URL:           strings.TrimRight(v.GetString("SEATING_API_URL"), "/"),
		Timeout:       parseDuration(v.GetString("SEATING_TIMEOUT"), 30*time.Second),
		HealthTimeout: parseDuration(v.GetString("SEATING_HEALTH_TIMEOUT"), 5*time.Second),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "school-attendance-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_TIMEZONE", "UTC")
	v.SetDefault("ATTENDANCE_LATE_CUTOFF", "08:00")
	v.SetDefault("ATTENDANCE_STATS_CACHE_TTL", "1m")

	v.SetDefault("NFC_BRIDGE_URL", "http://localhost:5005")
	v.SetDefault("NFC_TIMEOUT", "5s")
	v.SetDefault("NFC_DEVICE_KEYS", "")

	v.SetDefault("PREDICTION_API_URL", "http://localhost:5000")
	v.SetDefault("PREDICTION_TIMEOUT", "30s")
	v.SetDefault("PREDICTION_HEALTH_TIMEOUT", "5s")
	v.SetDefault("PREDICTION_CACHE_TTL", "15m")
	v.SetDefault("PREDICTION_WORKERS", 2)
	v.SetDefault("PREDICTION_RETRIES", 2)

	v.SetDefault("SEATING_API_URL", "http://localhost:5001")
	v.SetDefault("SEATING_TIMEOUT", "30s")
	v.SetDefault("SEATING_HEALTH_TIMEOUT", "5s")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
}

// ParseClock parses an HH:MM (or HH:MM:SS) time of day into an offset from midnight.
func ParseClock(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", raw)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
