package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug bool `yaml:"debug"`

	// Server
	Host             string `yaml:"host"`
	Port             string `yaml:"port"`
	HealthServerPort string `yaml:"health_server_port"` // empty disables the health server

	// Hardening. Zero values keep the unbounded behavior.
	MaxConnections int           `yaml:"max_connections"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: "8080",
	}
}

// Addr is the listen address of the main server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Load builds the configuration from, in increasing precedence: defaults,
// an optional YAML file (CONFIG_FILE or --config), environment variables
// and command-line flags.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("minihttp", pflag.ContinueOnError)
	configFile := fs.String("config", getEnv("CONFIG_FILE", ""), "path to a YAML config file")
	host := fs.String("host", "", "listen host")
	port := fs.String("port", "", "listen port")
	debug := fs.Bool("debug", false, "enable debug logging")
	healthPort := fs.String("health-port", "", "health server port (empty disables it)")
	maxConns := fs.Int("max-connections", 0, "maximum concurrent connections (0 = unlimited)")
	readTimeout := fs.Duration("read-timeout", 0, "deadline for reading a request head (0 = none)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configFile != "" {
		if err := cfg.loadFile(*configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// Flags win, but only when explicitly given
	if fs.Changed("host") {
		cfg.Host = *host
	}
	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("debug") {
		cfg.Debug = *debug
	}
	if fs.Changed("health-port") {
		cfg.HealthServerPort = *healthPort
	}
	if fs.Changed("max-connections") {
		cfg.MaxConnections = *maxConns
	}
	if fs.Changed("read-timeout") {
		cfg.ReadTimeout = *readTimeout
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from defaults and environment variables only
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnv("PORT", c.Port)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.HealthServerPort = getEnv("HEALTH_SERVER_PORT", c.HealthServerPort)
	c.MaxConnections = getEnvInt("MAX_CONNECTIONS", c.MaxConnections)

	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid READ_TIMEOUT %q: %w", v, err)
		}
		c.ReadTimeout = d
	}
	return nil
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	if err := validatePort(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if c.HealthServerPort != "" {
		if err := validatePort(c.HealthServerPort); err != nil {
			return fmt.Errorf("invalid HEALTH_SERVER_PORT: %w", err)
		}
		if c.HealthServerPort == c.Port {
			return fmt.Errorf("HEALTH_SERVER_PORT must differ from PORT (%s)", c.Port)
		}
	}

	if c.MaxConnections < 0 {
		return fmt.Errorf("MAX_CONNECTIONS must not be negative, got %d", c.MaxConnections)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("READ_TIMEOUT must not be negative, got %s", c.ReadTimeout)
	}
	return nil
}

func validatePort(port string) error {
	if port == "" {
		return errors.New("empty port")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%q is not a number", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%d out of range 1-65535", n)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}
