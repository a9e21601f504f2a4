// Package config parses server settings from command-line flags. Every flag
// takes its default from an environment variable, so either source works.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/and161185/taskhub/internal/crypto"
	"github.com/and161185/taskhub/internal/limiter"
	"github.com/and161185/taskhub/internal/notify"
	"github.com/and161185/taskhub/internal/token"
)

// Config is read once at startup and treated as immutable.
type Config struct {
	// Server
	Addr     string
	GRPCAddr string // empty disables the health server
	Dev      bool

	// Storage
	DSN       string // empty selects the in-memory store
	SeedAdmin bool

	// Tokens
	JWTKey      string
	JWTIssuer   string
	JWTAudience string

	// Passwords
	PasswordScheme crypto.Scheme

	// Broker
	RabbitMQHost   string
	RabbitMQPort   int
	RabbitMQUser   string
	RabbitMQPass   string
	PublishTimeout time.Duration
	PublishBuffer  int
	Consume        bool

	// HTTP
	CORSOrigin string
	RateLimit  int // requests per minute per client IP; 0 disables

	// Login lockout
	Login limiter.Policy
}

// Load parses args (without the program name) into a Config.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	def := notify.DefaultConfig()
	pol := limiter.DefaultPolicy()
	var scheme string

	fs := flag.NewFlagSet("taskhub-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", getEnvString("HTTP_ADDR", ":5000"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", getEnvString("GRPC_ADDR", ""), "gRPC health listen address (empty = disabled)")
	fs.BoolVar(&cfg.Dev, "dev", getEnvBool("DEV", false), "development logging and gRPC reflection")

	fs.StringVar(&cfg.DSN, "dsn", getEnvString("DATABASE_URL", ""), "PostgreSQL DSN (empty = in-memory store)")
	fs.BoolVar(&cfg.SeedAdmin, "seed-admin", getEnvBool("SEED_ADMIN", true), "create the default admin account on an empty store")

	fs.StringVar(&cfg.JWTKey, "jwt-key", getEnvString("JWT_KEY", token.DefaultKey), "HS256 signing key (at least 32 bytes)")
	fs.StringVar(&cfg.JWTIssuer, "jwt-issuer", getEnvString("JWT_ISSUER", token.DefaultIssuer), "token issuer")
	fs.StringVar(&cfg.JWTAudience, "jwt-audience", getEnvString("JWT_AUDIENCE", token.DefaultAudience), "token audience")

	fs.StringVar(&scheme, "password-scheme", getEnvString("PASSWORD_SCHEME", string(crypto.SchemeLegacy)), "digest scheme for new passwords: legacy|argon2id")

	fs.StringVar(&cfg.RabbitMQHost, "rabbitmq-host", getEnvString("RABBITMQ_HOST", def.Host), "RabbitMQ host")
	fs.IntVar(&cfg.RabbitMQPort, "rabbitmq-port", getEnvInt("RABBITMQ_PORT", def.Port), "RabbitMQ port")
	fs.StringVar(&cfg.RabbitMQUser, "rabbitmq-user", getEnvString("RABBITMQ_USER", def.Username), "RabbitMQ user")
	fs.StringVar(&cfg.RabbitMQPass, "rabbitmq-password", getEnvString("RABBITMQ_PASSWORD", def.Password), "RabbitMQ password")
	fs.DurationVar(&cfg.PublishTimeout, "publish-timeout", getEnvDuration("PUBLISH_TIMEOUT", def.PublishTimeout), "per-message publish timeout")
	fs.IntVar(&cfg.PublishBuffer, "publish-buffer", getEnvInt("PUBLISH_BUFFER", def.Buffer), "pending notification buffer size")
	fs.BoolVar(&cfg.Consume, "consume", getEnvBool("CONSUME", false), "consume and acknowledge notifications in-process")

	fs.StringVar(&cfg.CORSOrigin, "cors-origin", getEnvString("CORS_ORIGIN", "*"), "allowed CORS origin")
	fs.IntVar(&cfg.RateLimit, "rate-limit", getEnvInt("RATE_LIMIT", 300), "requests per minute per client IP (0 = unlimited)")

	fs.IntVar(&cfg.Login.MaxFails, "login-max-fails", getEnvInt("LOGIN_MAX_FAILS", pol.MaxFails), "failed logins before lockout")
	fs.DurationVar(&cfg.Login.Window, "login-window", getEnvDuration("LOGIN_WINDOW", pol.Window), "failed login counting window")
	fs.DurationVar(&cfg.Login.BlockFor, "login-block", getEnvDuration("LOGIN_BLOCK", pol.BlockFor), "lockout duration")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	s, err := crypto.ParseScheme(scheme)
	if err != nil {
		return nil, err
	}
	cfg.PasswordScheme = s

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []error
	if c.Addr == "" {
		problems = append(problems, errors.New("addr must not be empty"))
	}
	if c.PublishTimeout <= 0 {
		problems = append(problems, errors.New("publish-timeout must be positive"))
	}
	if c.PublishBuffer <= 0 {
		problems = append(problems, errors.New("publish-buffer must be positive"))
	}
	if c.RateLimit < 0 {
		problems = append(problems, errors.New("rate-limit must not be negative"))
	}
	if c.Login.MaxFails <= 0 || c.Login.Window <= 0 || c.Login.BlockFor <= 0 {
		problems = append(problems, errors.New("login lockout settings must be positive"))
	}
	if c.RabbitMQPort <= 0 || c.RabbitMQPort > 65535 {
		problems = append(problems, fmt.Errorf("rabbitmq-port %d out of range", c.RabbitMQPort))
	}
	return errors.Join(problems...)
}

// Notify returns the broker settings.
func (c *Config) Notify() notify.Config {
	return notify.Config{
		Host:           c.RabbitMQHost,
		Port:           c.RabbitMQPort,
		Username:       c.RabbitMQUser,
		Password:       c.RabbitMQPass,
		Queue:          notify.DefaultConfig().Queue,
		PublishTimeout: c.PublishTimeout,
		Buffer:         c.PublishBuffer,
	}
}

// Token returns the token service settings.
func (c *Config) Token() token.Config {
	return token.Config{Key: []byte(c.JWTKey), Issuer: c.JWTIssuer, Audience: c.JWTAudience}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
