package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds application runtime configuration.
type Config struct {
	Env               string
	HTTPPort          string
	DatabaseURL       string
	RunMigrations     bool
	JWTSecret         string
	AccessTokenTTL    time.Duration
	FirebaseProjectID string
	FirebaseCredFile  string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	Timezone           string
	TTLBatchSize       int
	TriggerWorkers     int
	TriggerMaxAttempts int
	SchedulerEnabled   bool
	SchedulerAudience  string

	OmisePublicKey    string
	OmiseSecretKey    string
	OmiseAPIBaseURL   string
	OmiseVaultBaseURL string

	SendGridAPIKey    string
	SendGridFromEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	BackupProvider string
	BackupBucket   string
	AWSRegion      string

	KafkaBrokers     []string
	KafkaTopicPrefix string
}

// Load reads environment variables and .env (if present).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RunMigrations:     getBool("RUN_MIGRATIONS", true),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", 12*time.Hour),
		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredFile:  os.Getenv("FIREBASE_CREDENTIALS"),
		ReadTimeout:       getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   os.Getenv("LOG_FILE"),

		Timezone:           getEnv("ANALYTICS_TIMEZONE", "Asia/Bangkok"),
		TTLBatchSize:       getInt("TTL_BATCH_SIZE", 200),
		TriggerWorkers:     getInt("TRIGGER_WORKERS", 4),
		TriggerMaxAttempts: getInt("TRIGGER_MAX_ATTEMPTS", 8),
		SchedulerEnabled:   getBool("SCHEDULER_ENABLED", true),
		SchedulerAudience:  os.Getenv("SCHEDULER_AUDIENCE"),

		OmisePublicKey:    os.Getenv("OMISE_PUBLIC_KEY"),
		OmiseSecretKey:    os.Getenv("OMISE_SECRET_KEY"),
		OmiseAPIBaseURL:   getEnv("OMISE_API_BASE_URL", "https://api.omise.co"),
		OmiseVaultBaseURL: getEnv("OMISE_VAULT_BASE_URL", "https://vault.omise.co"),

		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "no-reply@restaurant.local"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getInt("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),

		BackupProvider: strings.ToLower(getEnv("BACKUP_PROVIDER", "s3")),
		BackupBucket:   os.Getenv("BACKUP_BUCKET"),
		AWSRegion:      getEnv("AWS_REGION", "ap-southeast-1"),

		KafkaBrokers:     getList("KAFKA_BROKERS"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "restopos"),
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return cfg, errors.New("ANALYTICS_TIMEZONE is not a valid IANA zone")
	}
	switch cfg.BackupProvider {
	case "s3", "gcs":
	default:
		return cfg, errors.New("BACKUP_PROVIDER must be s3 or gcs")
	}
	return cfg, nil
}

// Location returns the civil timezone used for reporting windows.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
