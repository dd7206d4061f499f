package api

import "time"

// Config holds the REST API server configuration.
type Config struct {
	// Host is the address to bind. Defaults to localhost; use 0.0.0.0 to
	// accept connections from other machines.
	Host string

	// Port is the TCP port to listen on. Defaults to 5001.
	Port int

	// DisableAuthentication turns off token checks on the API surface.
	// Only do this on trusted networks.
	DisableAuthentication bool

	// Secret signs and verifies API tokens. Empty means derive a stable
	// secret from the machine identity, which keeps tokens valid across
	// restarts on the same host.
	Secret string

	// Version is reported by the health endpoint and the index page.
	Version string

	// HTTP server timeouts.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds the graceful drain when Start's context is
	// cancelled. Defaults to 30s.
	ShutdownTimeout time.Duration
}

// applyDefaults fills in zero values with production defaults.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5001
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}
