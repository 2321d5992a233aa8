package main

import (
	"fmt"
	"time"

	"github.com/kbukum/sttrelay/internal/config"
	"github.com/kbukum/sttrelay/internal/database"
	"github.com/kbukum/sttrelay/internal/gateway"
	"github.com/kbukum/sttrelay/internal/jwt"
	"github.com/kbukum/sttrelay/internal/server"
	"github.com/kbukum/sttrelay/internal/upstream"
	"github.com/kbukum/sttrelay/internal/writequeue"
)

// Config is the top-level sttrelay configuration. It embeds ServiceConfig
// so it automatically satisfies bootstrap.Config.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server     server.Config     `yaml:"server" mapstructure:"server"`
	Database   database.Config   `yaml:"database" mapstructure:"database"`
	Gateway    gateway.Config    `yaml:"gateway" mapstructure:"gateway"`
	Upstream   upstream.Config   `yaml:"upstream" mapstructure:"upstream"`
	WriteQueue writequeue.Config `yaml:"write_queue" mapstructure:"write_queue"`
	Session    SessionConfig     `yaml:"session" mapstructure:"session"`
}

// SessionConfig configures decoding of the inbound session cookie.
type SessionConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
}

// ApplyDefaults fills in zero-valued fields across the whole config tree.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Gateway.ApplyDefaults()
	c.WriteQueue.ApplyDefaults()
}

// Validate checks the full config tree.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Session.JWTSecret == "" {
		return fmt.Errorf("session.jwt_secret is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	return nil
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		Secret:         c.Session.JWTSecret,
		Method:         jwt.HS256,
		Issuer:         c.Session.Issuer,
		AccessTokenTTL: 24 * time.Hour,
	}
}
