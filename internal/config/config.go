package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	pkgconfig "github.com/ViddeM/accounts/pkg/config"
)

// pepperLength is the required AES-256 pepper key size in bytes.
const pepperLength = 32

// Config holds all configuration for the accounts service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"ACCOUNTS_HTTP_PORT" envDefault:"8080"`

	// BaseURL is the externally reachable address, used in emails and as the
	// OpenID issuer.
	BaseURL string `env:"ACCOUNTS_BASE_URL" envDefault:"http://localhost:8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"accounts"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"accounts_secret"`
	PostgresDB   string `env:"ACCOUNTS_DB_NAME" envDefault:"accounts"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// SlowQueryThresholdMs logs queries slower than this many milliseconds.
	// Zero disables slow query logging.
	SlowQueryThresholdMs int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"0"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// PepperHex is the hex-encoded 32-byte AES key used to encrypt password
	// hashes at rest.
	PepperHex string `env:"ACCOUNTS_PEPPER" envDefault:"3030313031313032303230333033303430343035303530363036303730373038"`

	// IDTokenKeyPEM is the PEM-encoded RSA private key used to sign ID
	// tokens. Empty disables ID token issuance.
	IDTokenKeyPEM string `env:"ACCOUNTS_ID_TOKEN_KEY"`

	// CookieSigningKey authenticates session cookies.
	CookieSigningKey string `env:"ACCOUNTS_COOKIE_KEY" envDefault:"change-this-cookie-signing-key!!"`

	// Mail provider; empty URL falls back to the log sender.
	MailProviderURL    string `env:"MAIL_PROVIDER_URL"`
	MailProviderAPIKey string `env:"MAIL_PROVIDER_API_KEY"`
	MailFrom           string `env:"MAIL_FROM" envDefault:"no-reply@accounts.local"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	pepper     []byte
	idTokenKey *rsa.PrivateKey
}

// Load reads configuration from environment variables and validates the
// cryptographic material.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load accounts config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	pepper, err := hex.DecodeString(cfg.PepperHex)
	if err != nil {
		return nil, fmt.Errorf("ACCOUNTS_PEPPER is not valid hex: %w", err)
	}
	if len(pepper) != pepperLength {
		return nil, fmt.Errorf("ACCOUNTS_PEPPER must decode to %d bytes, got %d", pepperLength, len(pepper))
	}
	cfg.pepper = pepper

	if cfg.IDTokenKeyPEM != "" {
		key, err := parseRSAPrivateKey([]byte(cfg.IDTokenKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse ACCOUNTS_ID_TOKEN_KEY: %w", err)
		}
		cfg.idTokenKey = key
	}

	// Outside development the default secrets must not be in play.
	if cfg.Environment != "development" {
		if cfg.PepperHex == "3030313031313032303230333033303430343035303530363036303730373038" {
			return nil, fmt.Errorf("ACCOUNTS_PEPPER must be explicitly set in %q mode", cfg.Environment)
		}
		if cfg.CookieSigningKey == "change-this-cookie-signing-key!!" {
			return nil, fmt.Errorf("ACCOUNTS_COOKIE_KEY must be explicitly set in %q mode", cfg.Environment)
		}
	}

	return cfg, nil
}

// Pepper returns the decoded AES pepper key.
func (c *Config) Pepper() []byte {
	return c.pepper
}

// IDTokenKey returns the parsed RSA signing key, or nil when not configured.
func (c *Config) IDTokenKey() *rsa.PrivateKey {
	return c.idTokenKey
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// RedisAddr returns the redis host:port address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}
	return key, nil
}
