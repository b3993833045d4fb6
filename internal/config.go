package internal

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DukeRupert/folio/internal/domain"
)

// Mail provider names accepted by MAIL_PROVIDER.
const (
	MailProviderAuto     = "auto"
	MailProviderSMTP     = "smtp"
	MailProviderSendGrid = "sendgrid"
	MailProviderSES      = "ses"
	MailProviderLog      = "log"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Mail provider selection ("auto", "smtp", "sendgrid", "ses", "log")
	MailProvider string

	// SMTP Configuration
	SMTPHost           string
	SMTPPort           int
	SMTPSecure         bool
	SMTPUser           string
	SMTPPass           string
	SMTPFrom           string
	ContactReceiver    string
	SMTPTimeout        time.Duration
	SMTPMaxAttempts    int
	SMTPRetryBaseDelay time.Duration
	SMTPVerifyAttempts int
	SMTPVerifyBackoff  time.Duration
	SMTPIPFamily       int // 0 = any, 4 or 6

	// Transactional email APIs
	SendGridAPIKey     string
	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	// Attachment policy
	MaxAttachmentSize int64
	AllowedMIMETypes  []string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage
	LocalStoragePath string

	// R2 Storage
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// HTTP surface
	CORSAllowedOrigins []string
	ContactRateLimit   int
	ContactRateWindow  time.Duration

	// Proxies (IPs or CIDRs) whose X-Forwarded-For / X-Real-IP headers are
	// believed. Empty means client addresses come from the socket only.
	TrustedProxies []string

	// Background transport re-verification (0 disables)
	ReverifyInterval time.Duration

	// Attachments kept after failed deliveries are purged once older than
	// AttachmentRetention (0 disables the sweep).
	AttachmentRetention       time.Duration
	AttachmentCleanupInterval time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 4000),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MailProvider: strings.ToLower(getEnv("MAIL_PROVIDER", MailProviderAuto)),

		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 465),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPass:           getEnv("SMTP_PASS", ""),
		SMTPFrom:           getEnv("SMTP_FROM", ""),
		ContactReceiver:    getEnv("CONTACT_RECEIVER", ""),
		SMTPTimeout:        getEnvMillis("SMTP_TIMEOUT_MS", 120*time.Second),
		SMTPMaxAttempts:    getEnvInt("SMTP_MAX_ATTEMPTS", 3),
		SMTPRetryBaseDelay: getEnvMillis("SMTP_RETRY_BASE_MS", 500*time.Millisecond),
		SMTPVerifyAttempts: getEnvInt("SMTP_VERIFY_ATTEMPTS", 2),
		SMTPVerifyBackoff:  getEnvMillis("SMTP_VERIFY_BACKOFF_MS", time.Second),
		SMTPIPFamily:       getEnvInt("SMTP_IP_FAMILY", 0),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SESRegion:          getEnv("SES_REGION", ""),
		SESAccessKeyID:     getEnv("SES_ACCESS_KEY_ID", ""),
		SESSecretAccessKey: getEnv("SES_SECRET_ACCESS_KEY", ""),

		MaxAttachmentSize: int64(getEnvInt("MAX_ATTACHMENT_SIZE", domain.DefaultMaxAttachmentSize)),
		AllowedMIMETypes:  getEnvList("ALLOWED_MIME_TYPES", domain.DefaultAllowedMIMETypes),

		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./uploads"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ContactRateLimit:   getEnvInt("CONTACT_RATE_LIMIT", 5),
		ContactRateWindow:  getEnvDuration("CONTACT_RATE_WINDOW", 10*time.Minute),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES", nil),

		ReverifyInterval: getEnvDuration("REVERIFY_INTERVAL", 5*time.Minute),

		AttachmentRetention:       getEnvDuration("ATTACHMENT_RETENTION", 7*24*time.Hour),
		AttachmentCleanupInterval: getEnvDuration("ATTACHMENT_CLEANUP_INTERVAL", time.Hour),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Implicit TLS is the norm on 465; anything else starts in plaintext
	// and upgrades with STARTTLS unless SMTP_SECURE says otherwise.
	cfg.SMTPSecure = getEnvBool("SMTP_SECURE", cfg.SMTPPort == 465)

	cfg.MailProvider = cfg.ResolveMailProvider()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolveMailProvider turns "auto" into a concrete provider based on which
// credentials are present.
func (c *Config) ResolveMailProvider() string {
	if c.MailProvider != "" && c.MailProvider != MailProviderAuto {
		return c.MailProvider
	}
	switch {
	case c.SendGridAPIKey != "":
		return MailProviderSendGrid
	case c.SESRegion != "":
		return MailProviderSES
	case c.SMTPHost != "":
		return MailProviderSMTP
	default:
		return MailProviderLog
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.MailProvider {
	case MailProviderSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_PROVIDER is 'smtp'")
		}
	case MailProviderSendGrid:
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when MAIL_PROVIDER is 'sendgrid'")
		}
		if c.FromAddress() == "" {
			return fmt.Errorf("SMTP_FROM is required when MAIL_PROVIDER is 'sendgrid'")
		}
	case MailProviderSES:
		if c.SESRegion == "" {
			return fmt.Errorf("SES_REGION is required when MAIL_PROVIDER is 'ses'")
		}
		if c.FromAddress() == "" {
			return fmt.Errorf("SMTP_FROM is required when MAIL_PROVIDER is 'ses'")
		}
	case MailProviderLog:
	default:
		return fmt.Errorf("MAIL_PROVIDER must be one of 'auto', 'smtp', 'sendgrid', 'ses', 'log', got: %s", c.MailProvider)
	}

	if c.MailProvider != MailProviderLog && c.ReceiverAddress() == "" {
		return fmt.Errorf("CONTACT_RECEIVER or SMTP_USER is required to deliver contact messages")
	}

	if c.SMTPMaxAttempts < 1 {
		return fmt.Errorf("SMTP_MAX_ATTEMPTS must be at least 1, got %d", c.SMTPMaxAttempts)
	}
	if c.SMTPVerifyAttempts < 1 {
		return fmt.Errorf("SMTP_VERIFY_ATTEMPTS must be at least 1, got %d", c.SMTPVerifyAttempts)
	}
	if c.SMTPIPFamily != 0 && c.SMTPIPFamily != 4 && c.SMTPIPFamily != 6 {
		return fmt.Errorf("SMTP_IP_FAMILY must be 0, 4 or 6, got %d", c.SMTPIPFamily)
	}
	if c.MaxAttachmentSize <= 0 {
		return fmt.Errorf("MAX_ATTACHMENT_SIZE must be positive, got %d", c.MaxAttachmentSize)
	}

	if c.StorageProvider == "r2" {
		if c.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if c.StorageProvider != "local" {
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", c.StorageProvider)
	}

	return nil
}

// FromAddress is the configured sender, falling back to the SMTP user.
func (c *Config) FromAddress() string {
	if c.SMTPFrom != "" {
		return c.SMTPFrom
	}
	return c.SMTPUser
}

// ReceiverAddress is the mailbox that receives contact messages, falling
// back to the SMTP user.
func (c *Config) ReceiverAddress() string {
	if c.ContactReceiver != "" {
		return c.ContactReceiver
	}
	return c.SMTPUser
}

// LogValue implements slog.LogValuer. Passwords and API keys are never
// included and the SMTP user is masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("env", c.Env),
		slog.Int("port", c.Port),
		slog.String("mail_provider", c.MailProvider),
		slog.String("smtp_host", c.SMTPHost),
		slog.Int("smtp_port", c.SMTPPort),
		slog.Bool("smtp_secure", c.SMTPSecure),
		slog.String("smtp_user", MaskSecret(c.SMTPUser)),
		slog.Bool("sendgrid_configured", c.SendGridAPIKey != ""),
		slog.String("ses_region", c.SESRegion),
		slog.String("storage_provider", c.StorageProvider),
		slog.Any("trusted_proxies", c.TrustedProxies),
	)
}

// MaskSecret replaces every character except the last four with '*'.
// Values of four characters or fewer are masked entirely.
func MaskSecret(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvMillis reads a plain integer number of milliseconds.
func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// getEnvList reads a comma-separated list, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
