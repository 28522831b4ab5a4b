/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package server

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// Config holds server configuration.
type Config struct {
	// Server identity.
	Name    string
	Version string

	// Listen address.
	Address string
	Port    int

	// Rate limiting for the whole HTTP surface. The discovery engine
	// applies its own per-caller budget on top of this.
	RateLimit      rate.Limit
	RateLimitBurst int

	// Timeouts.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewConfig returns defaults with environment overrides applied.
func NewConfig() *Config {
	cfg := &Config{
		Name:            "atlasd",
		Version:         "dev",
		Address:         "",
		Port:            8080,
		RateLimit:       100,
		RateLimitBurst:  200,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err == nil {
			cfg.Port = port
		}
	}
	if s := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); s != "" {
		var seconds int
		if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && seconds > 0 {
			cfg.ShutdownTimeout = time.Duration(seconds) * time.Second
		}
	}
	return cfg
}
