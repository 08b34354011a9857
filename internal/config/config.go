// Package config loads the service configuration from (in order of precedence) environment
// variables with a LIBRARY_ prefix, a .env file, an optional library.yaml file and defaults.
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
	EnvPrefix     = "LIBRARY"
	DefaultSecret = "library-development-secret"
)

type (
	Config struct {
		Addr     string         `mapstructure:"addr"`
		Path     string         `mapstructure:"path"` // URL path of the GraphQL endpoint
		Env      string         `mapstructure:"env"`  // "production" or anything else for development
		Seed     bool           `mapstructure:"seed"` // add sample authors and books at startup
		Database DatabaseConfig `mapstructure:"database"`
		JWT      JWTConfig      `mapstructure:"jwt"`
		Auth     AuthConfig     `mapstructure:"auth"`
		WS       WSConfig       `mapstructure:"ws"`
		HTTP     HTTPConfig     `mapstructure:"http"`
	}

	DatabaseConfig struct {
		URL      string `mapstructure:"url"` // empty means use the in-memory store
		MaxConns int32  `mapstructure:"max_conns"`
	}

	JWTConfig struct {
		Secret string        `mapstructure:"secret"`
		TTL    time.Duration `mapstructure:"ttl"`
		Issuer string        `mapstructure:"issuer"`
	}

	AuthConfig struct {
		SharedSecret string  `mapstructure:"shared_secret"` // password of users created without one
		LoginRate    float64 `mapstructure:"login_rate"`    // logins per second (0 = unlimited)
		LoginBurst   int     `mapstructure:"login_burst"`
	}

	WSConfig struct {
		InitialTimeout time.Duration `mapstructure:"initial_timeout"`
		PingFrequency  time.Duration `mapstructure:"ping_frequency"`
		PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	}

	HTTPConfig struct {
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	}
)

// SetDefaults sets the default of every key (which also lets environment variables override any key)
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":4000")
	v.SetDefault("path", "/graphql")
	v.SetDefault("env", "development")
	v.SetDefault("seed", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("jwt.secret", DefaultSecret)
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.issuer", "github.com/andrewwphillips/library")
	v.SetDefault("auth.shared_secret", "secret")
	v.SetDefault("auth.login_rate", 10.0)
	v.SetDefault("auth.login_burst", 20)
	v.SetDefault("ws.initial_timeout", 10*time.Second)
	v.SetDefault("ws.ping_frequency", 20*time.Second)
	v.SetDefault("ws.pong_timeout", 5*time.Second)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
}

// Load reads the configuration.  If file is empty library.yaml is looked for in the current directory
// (and it's not an error if there is none).  Environment variables are named like LIBRARY_JWT_SECRET.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("library")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Production returns true when running in production
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks for settings that can't work or are unsafe in production
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must be set"))
	}
	if !strings.HasPrefix(c.Path, "/") {
		errs = append(errs, fmt.Errorf("path %q must start with /", c.Path))
	}
	if c.JWT.Secret == "" || (c.Production() && c.JWT.Secret == DefaultSecret) {
		errs = append(errs, errors.New("jwt.secret must be set"))
	}
	for name, d := range map[string]time.Duration{
		"jwt.ttl":               c.JWT.TTL,
		"ws.initial_timeout":    c.WS.InitialTimeout,
		"ws.ping_frequency":     c.WS.PingFrequency,
		"ws.pong_timeout":       c.WS.PongTimeout,
		"http.read_timeout":     c.HTTP.ReadTimeout,
		"http.write_timeout":    c.HTTP.WriteTimeout,
		"http.shutdown_timeout": c.HTTP.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Auth.LoginRate < 0 || c.Auth.LoginBurst < 0 {
		errs = append(errs, errors.New("auth.login_rate and auth.login_burst must not be negative"))
	}
	if c.Database.MaxConns < 0 {
		errs = append(errs, errors.New("database.max_conns must not be negative"))
	}
	return errors.Join(errs...)
}
