package sessionkit

import (
	"errors"
	"time"

	"github.com/spf13/viper"

	"github.com/minyanlabs/sessionkit/internal"
)

// EnvConfig mirrors the environment surface of a sessionkit deployment.
// Secrets are base64url-encoded so they survive dotenv files unmangled.
//
// EnvConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EnvConfig struct {
	// DatabaseURL is the Postgres DSN for the session store.
	DatabaseURL string `mapstructure:"SESSIONKIT_DATABASE_URL"`
	// RedisAddr is the Redis address for the revocation cache (e.g. localhost:6379).
	RedisAddr string `mapstructure:"SESSIONKIT_REDIS_ADDR"`
	// RedisPassword is optional Redis auth.
	RedisPassword string `mapstructure:"SESSIONKIT_REDIS_PASSWORD"`

	JWTSigningMethod string `mapstructure:"SESSIONKIT_JWT_SIGNING_METHOD"`
	// JWTPrivateKey is the base64url raw key (ed25519 seed+pub or hs256 secret).
	JWTPrivateKey string `mapstructure:"SESSIONKIT_JWT_PRIVATE_KEY"`
	JWTPublicKey  string `mapstructure:"SESSIONKIT_JWT_PUBLIC_KEY"`
	JWTIssuer     string `mapstructure:"SESSIONKIT_JWT_ISSUER"`
	JWTAudience   string `mapstructure:"SESSIONKIT_JWT_AUDIENCE"`
	JWTAccessTTL  string `mapstructure:"SESSIONKIT_JWT_ACCESS_TTL"`
	JWTRefreshTTL string `mapstructure:"SESSIONKIT_JWT_REFRESH_TTL"`

	CSRFSecret   string `mapstructure:"SESSIONKIT_CSRF_SECRET"`
	CSRFTokenTTL string `mapstructure:"SESSIONKIT_CSRF_TOKEN_TTL"`

	ProductionMode       bool `mapstructure:"SESSIONKIT_PRODUCTION_MODE"`
	RevocationFailClosed bool `mapstructure:"SESSIONKIT_REVOCATION_FAIL_CLOSED"`

	SweepInterval    string `mapstructure:"SESSIONKIT_SWEEP_INTERVAL"`
	RetainRevokedFor string `mapstructure:"SESSIONKIT_RETAIN_REVOKED_FOR"`

	AuditEnabled   bool `mapstructure:"SESSIONKIT_AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"SESSIONKIT_METRICS_ENABLED"`
}

// LoadEnv reads .env (if present), then builds an EnvConfig from the
// environment. Missing .env is ignored; env vars override dotenv values.
func LoadEnv() (*EnvConfig, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("SESSIONKIT_DATABASE_URL", "")
	v.SetDefault("SESSIONKIT_REDIS_ADDR", "localhost:6379")
	v.SetDefault("SESSIONKIT_REDIS_PASSWORD", "")
	v.SetDefault("SESSIONKIT_JWT_SIGNING_METHOD", "ed25519")
	v.SetDefault("SESSIONKIT_JWT_PRIVATE_KEY", "")
	v.SetDefault("SESSIONKIT_JWT_PUBLIC_KEY", "")
	v.SetDefault("SESSIONKIT_JWT_ISSUER", "sessionkit")
	v.SetDefault("SESSIONKIT_JWT_AUDIENCE", "sessionkit")
	v.SetDefault("SESSIONKIT_JWT_ACCESS_TTL", "5m")
	v.SetDefault("SESSIONKIT_JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("SESSIONKIT_CSRF_SECRET", "")
	v.SetDefault("SESSIONKIT_CSRF_TOKEN_TTL", "1h")
	v.SetDefault("SESSIONKIT_PRODUCTION_MODE", false)
	v.SetDefault("SESSIONKIT_REVOCATION_FAIL_CLOSED", false)
	v.SetDefault("SESSIONKIT_SWEEP_INTERVAL", "1h")
	v.SetDefault("SESSIONKIT_RETAIN_REVOKED_FOR", "720h") // 30d
	v.SetDefault("SESSIONKIT_AUDIT_ENABLED", false)
	v.SetDefault("SESSIONKIT_METRICS_ENABLED", false)

	var env EnvConfig
	if err := v.Unmarshal(&env); err != nil {
		return nil, err
	}

	return &env, nil
}

// ToConfig converts the environment view into an engine [Config], decoding
// keys and parsing durations on top of the library defaults.
func (c *EnvConfig) ToConfig() (Config, error) {
	cfg := defaultConfig()

	cfg.JWT.SigningMethod = c.JWTSigningMethod
	if c.JWTIssuer != "" {
		cfg.JWT.Issuer = c.JWTIssuer
	}
	if c.JWTAudience != "" {
		cfg.JWT.Audience = c.JWTAudience
	}
	cfg.JWT.AccessTTL = parseDurationOr(c.JWTAccessTTL, cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = parseDurationOr(c.JWTRefreshTTL, cfg.JWT.RefreshTTL)
	cfg.Session.SweepInterval = parseDurationOr(c.SweepInterval, cfg.Session.SweepInterval)
	cfg.Session.RetainRevokedFor = parseDurationOr(c.RetainRevokedFor, cfg.Session.RetainRevokedFor)
	cfg.CSRF.TokenTTL = parseDurationOr(c.CSRFTokenTTL, cfg.CSRF.TokenTTL)

	if c.JWTPrivateKey != "" {
		key, err := internal.DecodeSecret(c.JWTPrivateKey)
		if err != nil {
			return Config{}, errors.New("SESSIONKIT_JWT_PRIVATE_KEY is not valid base64url")
		}
		cfg.JWT.PrivateKey = key
	}
	if c.JWTPublicKey != "" {
		key, err := internal.DecodeSecret(c.JWTPublicKey)
		if err != nil {
			return Config{}, errors.New("SESSIONKIT_JWT_PUBLIC_KEY is not valid base64url")
		}
		cfg.JWT.PublicKey = key
	}
	if c.CSRFSecret != "" {
		secret, err := internal.DecodeSecret(c.CSRFSecret)
		if err != nil {
			return Config{}, errors.New("SESSIONKIT_CSRF_SECRET is not valid base64url")
		}
		cfg.CSRF.Secret = secret
	}

	cfg.Security.ProductionMode = c.ProductionMode
	cfg.Security.RevocationFailClosed = c.RevocationFailClosed
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled

	return cfg, nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
