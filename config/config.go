// Package config loads taskgate settings from flags, environment variables
// (prefix TASKGATE) and an optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/adeilh/taskgate/auth"
	"github.com/adeilh/taskgate/ratelimit"
)

const EnvPrefix = "TASKGATE"

// Keys shared with command-line flag bindings.
const (
	ServerAddressKey = "server.address"
	JWTSecretKey     = "jwt.secret"
	DatabaseDSNKey   = "database.dsn"
	RedisAddrKey     = "redis.addr"
	LogLevelKey      = "log.level"
	LogFormatKey     = "log.format"
	LogNoColorKey    = "log.no_color"
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Directory    DirectoryConfig    `mapstructure:"directory"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   string        `mapstructure:"audience"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// TokenConfig converts the section into auth's issuance parameters.
func (c JWTConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:   []byte(c.Secret),
		Issuer:   c.Issuer,
		Audience: c.Audience,
		Validity: c.Expiration,
	}
}

type RefillConfig struct {
	Tokens   int64         `mapstructure:"tokens"`
	Duration time.Duration `mapstructure:"duration"`
}

type StatsConfig struct {
	Redis      bool `mapstructure:"redis"`
	TrackKeys  bool `mapstructure:"track_keys"`
	MaxEntries int  `mapstructure:"max_entries"`
}

type RateLimitConfig struct {
	Capacity         int64        `mapstructure:"capacity"`
	Refill           RefillConfig `mapstructure:"refill"`
	Greedy           bool         `mapstructure:"greedy"`
	TokensPerRequest int64        `mapstructure:"tokens_per_request"`
	Stats            StatsConfig  `mapstructure:"stats"`
}

// LimiterConfig converts the section into a ratelimit.Config.
func (c RateLimitConfig) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Capacity:         c.Capacity,
		RefillTokens:     c.Refill.Tokens,
		RefillInterval:   c.Refill.Duration,
		Strategy:         ratelimit.StrategyFor(c.Greedy),
		TokensPerRequest: c.TokensPerRequest,
	}
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

type DirectoryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RegistrationConfig lists the roles a caller may request when registering.
type RegistrationConfig struct {
	Roles []string `mapstructure:"roles"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(ServerAddressKey, ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})

	v.SetDefault(JWTSecretKey, "")
	v.SetDefault("jwt.issuer", "taskgate")
	v.SetDefault("jwt.audience", "taskgate-clients")
	v.SetDefault("jwt.expiration", time.Hour)

	v.SetDefault("ratelimit.capacity", 10)
	v.SetDefault("ratelimit.refill.tokens", 10)
	v.SetDefault("ratelimit.refill.duration", 60*time.Second)
	v.SetDefault("ratelimit.greedy", false)
	v.SetDefault("ratelimit.tokens_per_request", 1)
	v.SetDefault("ratelimit.stats.redis", false)
	v.SetDefault("ratelimit.stats.track_keys", false)
	v.SetDefault("ratelimit.stats.max_entries", 1024)

	v.SetDefault(DatabaseDSNKey, "")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault(RedisAddrKey, "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("directory.cache_ttl", 5*time.Minute)

	v.SetDefault("registration.roles", []string{auth.DefaultRole})

	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogFormatKey, "console")
	v.SetDefault(LogNoColorKey, false)
}

// BindEnv configures v to read TASKGATE_* variables, mapping "." and "-" to "_".
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
}

// Load decodes v into a Config. It does not validate.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Server.CORS.AllowedOrigins = splitList(cfg.Server.CORS.AllowedOrigins)
	cfg.Server.CORS.AllowedMethods = splitList(cfg.Server.CORS.AllowedMethods)
	cfg.Registration.Roles = splitList(cfg.Registration.Roles)
	return cfg, nil
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	var errs []error
	switch {
	case c.JWT.Secret == "":
		errs = append(errs, fmt.Errorf("%w: jwt.secret is required", ErrInvalid))
	case len(c.JWT.Secret) < auth.MinSecretLength:
		errs = append(errs, fmt.Errorf("%w: jwt.secret must be at least %d bytes", ErrInvalid, auth.MinSecretLength))
	}
	if c.JWT.Expiration <= 0 {
		errs = append(errs, fmt.Errorf("%w: jwt.expiration must be positive", ErrInvalid))
	}
	if err := c.RateLimit.LimiterConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	if c.RateLimit.Stats.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("%w: ratelimit.stats.max_entries must not be negative", ErrInvalid))
	}
	if c.Directory.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("%w: directory.cache_ttl must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// ValidateServe additionally requires what the server needs.
func (c Config) ValidateServe() error {
	err := c.Validate()
	if strings.TrimSpace(c.Database.DSN) == "" {
		err = errors.Join(err, fmt.Errorf("%w: database.dsn is required", ErrInvalid))
	}
	if c.RateLimit.Stats.Redis && !c.Redis.Enabled() {
		err = errors.Join(err, fmt.Errorf("%w: ratelimit.stats.redis requires redis.addr", ErrInvalid))
	}
	return err
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
