// Package config loads runtime configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// App holds the runtime configuration with sensible defaults for local
// development. Command-line flags in cmd/server take precedence.
type App struct {
	Env       string
	HTTPPort  int
	DBPath    string
	RedisAddr string // empty disables the redis schedule cache
	Timezone  string
}

// Load populates App from environment variables.
func Load() App {
	return App{
		Env:       getEnv("APP_ENV", "dev"),
		HTTPPort:  intEnv("HTTP_PORT", 8080),
		DBPath:    getEnv("DB_PATH", "ojt.db"),
		RedisAddr: getEnv("REDIS_ADDR", ""),
		Timezone:  getEnv("TIMEZONE", "Local"),
	}
}

// Location resolves the configured timezone, falling back to local time.
func (a App) Location() *time.Location {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Printf("config: invalid TIMEZONE %q, using local: %v", a.Timezone, err)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			log.Printf("config: invalid int for %s: %v, using %d", key, err, fallback)
			return fallback
		}
		return n
	}
	return fallback
}
