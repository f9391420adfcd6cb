package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgauth "github.com/BradenHooton/tasktrack/pkg/auth"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	JWTAlgorithm       string
	JWTIssuer          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Password           pkgauth.Policy
	HashWorkers        int
	LockoutThreshold   int
	LockoutDuration    time.Duration
	FailureDelay       time.Duration
	FailureJitter      time.Duration
}

// RedisConfig enables the shared rate-limit counter when URL is set
type RedisConfig struct {
	URL string
}

// EmailConfig enables SES registration notices when Sender is set
type EmailConfig struct {
	Sender    string
	AWSRegion string
}

// policyFile is the optional YAML overlay for hashing and lockout policy
type policyFile struct {
	Password *struct {
		TimeCost    *uint32 `yaml:"time_cost"`
		MemoryKiB   *uint32 `yaml:"memory_kib"`
		Parallelism *uint8  `yaml:"parallelism"`
		KeyLength   *uint32 `yaml:"key_length"`
		SaltLength  *uint32 `yaml:"salt_length"`
		Workers     *int    `yaml:"workers"`
	} `yaml:"password"`
	Lockout *struct {
		Threshold *int    `yaml:"threshold"`
		Duration  *string `yaml:"duration"`
	} `yaml:"lockout"`
}

var supportedAlgorithms = map[string]bool{"HS256": true, "HS384": true, "HS512": true}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")
	envs := &envReader{}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              envs.asInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "tasktrack"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(envs.asIntN("DB_MAX_CONNS", 25, 32)),
			MinConns:          int32(envs.asIntN("DB_MIN_CONNS", 5, 32)),
			MaxConnLifetime:   envs.asDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   envs.asDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: envs.asDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       envs.asBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    envs.asDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   envs.asDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    envs.asDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: envs.asDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			AuthRateLimit:  envs.asInt("AUTH_RATE_LIMIT", 10),
			AuthRateWindow: envs.asDuration("AUTH_RATE_WINDOW", time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			JWTAlgorithm:       strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
			JWTIssuer:          getEnv("JWT_ISSUER", "tasktrack"),
			AccessTokenExpiry:  time.Duration(envs.asInt("ACCESS_TOKEN_MINUTES", 15)) * time.Minute,
			RefreshTokenExpiry: time.Duration(envs.asInt("REFRESH_TOKEN_DAYS", 7)) * 24 * time.Hour,
			Password: pkgauth.Policy{
				TimeCost:    uint32(envs.asUintN("PASSWORD_TIME_COST", 3, 32)),
				MemoryKiB:   uint32(envs.asUintN("PASSWORD_MEMORY_KIB", 64*1024, 32)),
				Parallelism: uint8(envs.asUintN("PASSWORD_PARALLELISM", 2, 8)),
				KeyLength:   uint32(envs.asUintN("PASSWORD_KEY_LENGTH", 32, 32)),
				SaltLength:  16,
			},
			HashWorkers:      envs.asInt("PASSWORD_HASH_WORKERS", 0),
			LockoutThreshold: envs.asInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:  envs.asDuration("LOCKOUT_DURATION", 30*time.Minute),
			FailureDelay:     envs.asDuration("LOGIN_FAILURE_DELAY", 250*time.Millisecond),
			FailureJitter:    envs.asDuration("LOGIN_FAILURE_JITTER", 100*time.Millisecond),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Email: EmailConfig{
			Sender:    getEnv("SES_SENDER", ""),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		},
	}

	if err := envs.err(); err != nil {
		return nil, err
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if path := getEnv("AUTH_POLICY_FILE", ""); path != "" {
		if err := applyPolicyFile(&cfg.Auth, path); err != nil {
			return nil, err
		}
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the signing algorithm, lifetimes, hashing policy and lockout policy
func (a *AuthConfig) Validate() error {
	if !supportedAlgorithms[a.JWTAlgorithm] {
		return fmt.Errorf("JWT_ALGORITHM must be one of HS256, HS384, HS512 (got %q)", a.JWTAlgorithm)
	}
	if a.AccessTokenExpiry <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_MINUTES must be positive")
	}
	if a.RefreshTokenExpiry <= a.AccessTokenExpiry {
		return fmt.Errorf("REFRESH_TOKEN_DAYS must outlast the access token lifetime")
	}
	if err := a.Password.Validate(); err != nil {
		return fmt.Errorf("invalid password policy: %w", err)
	}
	if a.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1 (got %d)", a.LockoutThreshold)
	}
	if a.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	return nil
}

// applyPolicyFile overlays values present in the YAML file onto cfg
func applyPolicyFile(cfg *AuthConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read AUTH_POLICY_FILE: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse AUTH_POLICY_FILE: %w", err)
	}

	if p := file.Password; p != nil {
		if p.TimeCost != nil {
			cfg.Password.TimeCost = *p.TimeCost
		}
		if p.MemoryKiB != nil {
			cfg.Password.MemoryKiB = *p.MemoryKiB
		}
		if p.Parallelism != nil {
			cfg.Password.Parallelism = *p.Parallelism
		}
		if p.KeyLength != nil {
			cfg.Password.KeyLength = *p.KeyLength
		}
		if p.SaltLength != nil {
			cfg.Password.SaltLength = *p.SaltLength
		}
		if p.Workers != nil {
			cfg.HashWorkers = *p.Workers
		}
	}

	if l := file.Lockout; l != nil {
		if l.Threshold != nil {
			cfg.LockoutThreshold = *l.Threshold
		}
		if l.Duration != nil {
			d, err := time.ParseDuration(*l.Duration)
			if err != nil {
				return fmt.Errorf("invalid lockout duration %q: %w", *l.Duration, err)
			}
			cfg.LockoutDuration = d
		}
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak || strings.Repeat(weak, len(secret)/len(weak)) == secretLower {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

// envReader parses typed environment values. Unset keys take the default;
// malformed or out-of-range values are collected so Load can refuse them all
// at once instead of silently running with a default.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	value := os.Getenv(key)
	return value, value != ""
}

func (e *envReader) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (e *envReader) asInt(key string, defaultVal int) int {
	return int(e.asIntN(key, int64(defaultVal), 0))
}

func (e *envReader) asIntN(key string, defaultVal int64, bits int) int64 {
	value, ok := e.lookup(key)
	if !ok {
		return defaultVal
	}
	n, err := strconv.ParseInt(value, 10, bits)
	if err != nil {
		e.fail(key, err)
		return defaultVal
	}
	return n
}

func (e *envReader) asUintN(key string, defaultVal uint64, bits int) uint64 {
	value, ok := e.lookup(key)
	if !ok {
		return defaultVal
	}
	n, err := strconv.ParseUint(value, 10, bits)
	if err != nil {
		e.fail(key, err)
		return defaultVal
	}
	return n
}

func (e *envReader) asBool(key string, defaultVal bool) bool {
	value, ok := e.lookup(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, err)
		return defaultVal
	}
	return b
}

func (e *envReader) asDuration(key string, defaultVal time.Duration) time.Duration {
	value, ok := e.lookup(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, err)
		return defaultVal
	}
	return d
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
