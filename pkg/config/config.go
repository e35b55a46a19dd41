package config

import (
	"errors"
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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	SMS           SMSConfig
	Email         EmailConfig
	Storage       StorageConfig
	Appointments  AppointmentsConfig
	Notifications NotificationsConfig
	Webhook       WebhookConfig
	Decisions     DecisionsConfig
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
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SMSConfig holds the Twilio credentials and sender preferences.
type SMSConfig struct {
	Enabled             bool
	AccountSID          string
	AuthToken           string
	FromNumber          string
	SenderID            string
	MessagingServiceSID string
	DashboardURL        string
	Timeout             time.Duration
}

// EmailConfig holds the SMTP settings for appointment mail.
type EmailConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	DisplayName string
}

// StorageConfig controls on-disk visitor image storage.
type StorageConfig struct {
	Dir              string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
}

// AppointmentsConfig governs QR code generation for appointment visits.
type AppointmentsConfig struct {
	QRPrefix string
}

// NotificationsConfig tunes the background dispatch queue.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// WebhookConfig controls the SMS reply conversation state.
type WebhookConfig struct {
	PendingTTL time.Duration
}

// DecisionsConfig toggles whether decided visits may be re-decided.
type DecisionsConfig struct {
	Final bool
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
		if !errors.As(err, &notFound) {
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
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 30*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SMS = SMSConfig{
		Enabled:             v.GetBool("TWILIO_ENABLED"),
		AccountSID:          v.GetString("TWILIO_ACCOUNT_SID"),
		AuthToken:           v.GetString("TWILIO_AUTH_TOKEN"),
		FromNumber:          v.GetString("TWILIO_PHONE_NUMBER"),
		SenderID:            v.GetString("TWILIO_SENDER_ID"),
		MessagingServiceSID: v.GetString("TWILIO_MESSAGING_SERVICE_SID"),
		DashboardURL:        v.GetString("DASHBOARD_URL"),
		Timeout:             parseDuration(v.GetString("TWILIO_TIMEOUT"), 10*time.Second),
	}

	cfg.Email = EmailConfig{
		Enabled:     v.GetBool("EMAIL_ENABLED"),
		Host:        v.GetString("SMTP_HOST"),
		Port:        v.GetInt("SMTP_PORT"),
		Username:    v.GetString("SMTP_USERNAME"),
		Password:    v.GetString("SMTP_PASSWORD"),
		From:        v.GetString("EMAIL_FROM"),
		DisplayName: v.GetString("EMAIL_DISPLAY_NAME"),
	}

	maxUploadSize := v.GetInt64("STORAGE_MAX_FILE_SIZE")
	if maxUploadSize <= 0 {
		maxUploadSize = 10 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Dir:              v.GetString("STORAGE_DIR"),
		SignedURLSecret:  v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 7*24*time.Hour),
		MaxFileSizeBytes: maxUploadSize,
	}

	cfg.Appointments = AppointmentsConfig{
		QRPrefix: v.GetString("QR_CODE_PREFIX"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Webhook = WebhookConfig{
		PendingTTL: parseDuration(v.GetString("WEBHOOK_PENDING_TTL"), 15*time.Minute),
	}

	cfg.Decisions = DecisionsConfig{
		Final: v.GetBool("DECISIONS_FINAL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "visitor_management")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "30h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TWILIO_ENABLED", false)
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_PHONE_NUMBER", "")
	v.SetDefault("TWILIO_SENDER_ID", "")
	v.SetDefault("TWILIO_MESSAGING_SERVICE_SID", "")
	v.SetDefault("TWILIO_TIMEOUT", "10s")
	v.SetDefault("DASHBOARD_URL", "http://localhost:3000/dashboard")

	v.SetDefault("EMAIL_ENABLED", false)
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("EMAIL_FROM", "")
	v.SetDefault("EMAIL_DISPLAY_NAME", "Visitor Management")

	v.SetDefault("STORAGE_DIR", "./uploads")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "168h")
	v.SetDefault("STORAGE_MAX_FILE_SIZE", 10*1024*1024)

	v.SetDefault("QR_CODE_PREFIX", "APT")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 32)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")

	v.SetDefault("WEBHOOK_PENDING_TTL", "15m")
	v.SetDefault("DECISIONS_FINAL", false)
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
