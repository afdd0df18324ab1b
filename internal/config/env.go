package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env files into the process environment. Missing files are
// not an error.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// ApplyEnv overrides selected fields from AZUBI_* variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("AZUBI_DATA_DIR"); v != "" {
		cfg.App.DataDir = v
	}
	if v := os.Getenv("AZUBI_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = n
		}
	}
	if v := os.Getenv("AZUBI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AZUBI_SEARCH_TERMS"); v != "" {
		cfg.Scrape.SearchTerms = strings.Split(v, ",")
	}
	if v := os.Getenv("AZUBI_SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("AZUBI_SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("AZUBI_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("AZUBI_IMAP_PASSWORD"); v != "" {
		cfg.Bounce.Password = v
	}
}
