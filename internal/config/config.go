// Package config provides centralized configuration for the writeup
// storage tooling. It loads configuration from CLI flags and
// environment variables, validates required fields, and provides
// sensible defaults.
//
// CLI flags control the operating mode (--no-db swaps the MongoDB
// backend for an in-memory one). Environment variables provide the
// database address and credentials.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultDBAddr     = "localhost:27017"
	defaultDatabase   = "writeup"
	defaultSessionTTL = 24 * time.Hour
)

// Config holds all application configuration.
type Config struct {
	// Database connection
	DBAddr     string // DB_ADDR, host:port
	DBName     string // DB_NAME
	DBUser     string // DB_USER
	DBPassword string // DB_PASSWORD

	// SessionTTL is how long saved sessions remain valid.
	SessionTTL time.Duration // SESSION_TTL, Go duration syntax

	// NoDB selects the in-memory backend (--no-db). Nothing persists
	// across runs; intended for tests and local experiments.
	NoDB bool
}

// ValidationError represents a configuration validation error with
// multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags and returns them. Call before Load.
func ParseFlags() (noDB bool, addr string) {
	flag.BoolVar(&noDB, "no-db", false, "Use in-memory storage backend (nothing persists)")
	flag.StringVar(&addr, "db-addr", "", "Database address host:port (overrides DB_ADDR env var)")
	flag.Parse()
	return noDB, addr
}

// Load builds a Config from environment variables and flag values.
// The addr flag overrides the DB_ADDR env var if non-empty.
func Load(noDB bool, addr string) (*Config, error) {
	cfg := &Config{
		DBAddr:     envOr("DB_ADDR", defaultDBAddr),
		DBName:     envOr("DB_NAME", defaultDatabase),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		SessionTTL: defaultSessionTTL,
		NoDB:       noDB,
	}
	if addr != "" {
		cfg.DBAddr = addr
	}

	var problems []string
	if raw := os.Getenv("SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SESSION_TTL %q is not a valid duration", raw))
		} else if ttl <= 0 {
			problems = append(problems, "SESSION_TTL must be positive")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if !cfg.NoDB {
		if cfg.DBUser == "" {
			problems = append(problems, "DB_USER is required (or pass --no-db)")
		}
		if cfg.DBPassword == "" {
			problems = append(problems, "DB_PASSWORD is required (or pass --no-db)")
		}
		if cfg.DBAddr == "" {
			problems = append(problems, "DB_ADDR must not be empty")
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
