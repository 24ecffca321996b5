package shared

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override values from config.toml.
const (
	EnvAPIURL   = "MARQUEE_API_URL"
	EnvDBPath   = "MARQUEE_DB_PATH"
	EnvLogLevel = "MARQUEE_LOG_LEVEL"
)

// ApplyEnv loads the optional .env files and overlays recognised environment variables onto c.
//
// A missing .env file is not an error.
func ApplyEnv(c *Config, files ...string) {
	_ = godotenv.Load(files...)

	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}
