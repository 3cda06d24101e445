// Package config loads the auth service configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	auth "github.com/goliatone/go-shop-auth"
)

// Config is the root configuration. Sources, in order:
//  1. the explicit path given to Load/MustLoad;
//  2. the CONFIG_PATH environment variable;
//  3. ./local.yaml in the working directory;
//  4. environment variables only.
type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTP       HTTPConfig       `yaml:"http"`
	DB         DBConfig         `yaml:"db"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Activation ActivationConfig `yaml:"activation"`
	Lockout    LockoutConfig    `yaml:"lockout"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
}

type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr returns host:port
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

type DBConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type RedisConfig struct {
	// URL is either redis://... or host:port. Empty disables login lockout.
	URL string `yaml:"url" env:"REDIS_URL"`
}

type AuthConfig struct {
	// SigningKey is the base64 encoded HMAC secret
	SigningKey      string        `yaml:"signing_key" env:"AUTH_SIGNING_KEY"`
	Issuer          string        `yaml:"issuer" env:"AUTH_ISSUER" env-default:"go-shop-auth"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"AUTH_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"AUTH_REFRESH_TOKEN_TTL" env-default:"168h"`
	PublicRoutes    []string      `yaml:"public_routes" env:"AUTH_PUBLIC_ROUTES" env-separator:","`
	ContextKey      string        `yaml:"context_key" env:"AUTH_CONTEXT_KEY" env-default:"user"`
	TokenLookup     string        `yaml:"token_lookup" env:"AUTH_TOKEN_LOOKUP" env-default:"header:Authorization"`
	AuthScheme      string        `yaml:"auth_scheme" env:"AUTH_SCHEME" env-default:"Bearer"`
}

type ActivationConfig struct {
	CodeTTL    time.Duration `yaml:"code_ttl" env:"ACTIVATION_CODE_TTL" env-default:"5m"`
	CodeLength int           `yaml:"code_length" env:"ACTIVATION_CODE_LENGTH" env-default:"6"`
}

type LockoutConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"LOCKOUT_MAX_ATTEMPTS" env-default:"5"`
	Window      time.Duration `yaml:"window" env:"LOCKOUT_WINDOW" env-default:"15m"`
}

type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"10s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

var _ auth.Config = (*Config)(nil)

func (c *Config) GetSigningKey() string               { return c.Auth.SigningKey }
func (c *Config) GetIssuer() string                   { return c.Auth.Issuer }
func (c *Config) GetAccessTokenTTL() time.Duration    { return c.Auth.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() time.Duration   { return c.Auth.RefreshTokenTTL }
func (c *Config) GetActivationCodeTTL() time.Duration { return c.Activation.CodeTTL }
func (c *Config) GetActivationCodeLength() int        { return c.Activation.CodeLength }
func (c *Config) GetContextKey() string               { return c.Auth.ContextKey }
func (c *Config) GetTokenLookup() string              { return c.Auth.TokenLookup }
func (c *Config) GetAuthScheme() string               { return c.Auth.AuthScheme }

// GetPublicRoutes falls back to auth.DefaultPublicRoutes when none are set
func (c *Config) GetPublicRoutes() []string {
	if len(c.Auth.PublicRoutes) == 0 {
		return auth.DefaultPublicRoutes
	}
	return c.Auth.PublicRoutes
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration following the source order documented on Config.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	var (
		c   *Config
		err error
	)

	switch {
	case path != "":
		c, err = tryRead(path)
	case os.Getenv("CONFIG_PATH") != "":
		c, err = tryRead(os.Getenv("CONFIG_PATH"))
	default:
		if _, statErr := os.Stat("local.yaml"); statErr == nil {
			c, err = tryRead("local.yaml")
		} else if err = cleanenv.ReadEnv(&cfg); err == nil {
			c = &cfg
		} else {
			err = fmt.Errorf("config not found: provide a path, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
	}

	if err != nil {
		return nil, err
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required")
	}
	if _, err := auth.NewSigningSecret(c.Auth.SigningKey); err != nil {
		return fmt.Errorf("auth.signing_key: %w", err)
	}
	if c.DB.URL == "" {
		return fmt.Errorf("db.url is required")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		return fmt.Errorf("auth.refresh_token_ttl must be greater than auth.access_token_ttl")
	}
	if c.Activation.CodeTTL <= 0 {
		return fmt.Errorf("activation.code_ttl must be > 0")
	}
	if c.Activation.CodeLength < 4 || c.Activation.CodeLength > 16 {
		return fmt.Errorf("activation.code_length must be between 4 and 16")
	}
	if c.Lockout.MaxAttempts <= 0 {
		return fmt.Errorf("lockout.max_attempts must be > 0")
	}
	return nil
}
