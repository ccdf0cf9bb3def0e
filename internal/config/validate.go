package config

import (
	"errors"
	"fmt"

	"github.com/manpreetbhatti/readtrail/internal/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateWebSocket(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("websocket.max_message_size must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return errors.New("websocket.send_buffer must be positive")
	}
	if c.WebSocket.WriteWaitSeconds <= 0 {
		return errors.New("websocket.write_wait_seconds must be positive")
	}
	if c.WebSocket.PongWaitSeconds <= 0 {
		return errors.New("websocket.pong_wait_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.MessagesPerSecond <= 0 {
		return errors.New("rate_limit.messages_per_second must be positive")
	}
	if c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be at least 1")
	}
	return nil
}

func (c *Config) validateHistory() error {
	switch c.History.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("history.backend must be %q or %q, got %q", BackendMemory, BackendSQLite, c.History.Backend)
	}
	if c.History.RetentionHours < 0 {
		return errors.New("history.retention_hours must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
}
