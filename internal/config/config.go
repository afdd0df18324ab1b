// engine/internal/config/config.go
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	Logging struct {
		Level string `yaml:"level" json:"level"`
		Debug bool   `yaml:"debug" json:"debug"`
	} `yaml:"logging" json:"logging"`

	Scrape struct {
		Sites             []string `yaml:"sites" json:"sites"`
		SearchTerms       []string `yaml:"search_terms" json:"search_terms"`
		MaxPages          int      `yaml:"max_pages" json:"max_pages"`
		MaxRuntimeSeconds int      `yaml:"max_runtime_seconds" json:"max_runtime_seconds"`
		RequireEmail      bool     `yaml:"require_email" json:"require_email"`
		DetailFetch       bool     `yaml:"detail_fetch" json:"detail_fetch"`
		IntervalMinutes   int      `yaml:"interval_minutes" json:"interval_minutes"` // 0 disables the poller
	} `yaml:"scrape" json:"scrape"`

	Filters struct {
		LocationsAllow []string `yaml:"locations_allow" json:"locations_allow"`
		LocationsBlock []string `yaml:"locations_block" json:"locations_block"`
	} `yaml:"filters" json:"filters"`

	Fetch struct {
		UserAgent         string `yaml:"user_agent" json:"user_agent"`
		MinDelayMillis    int    `yaml:"min_delay_ms" json:"min_delay_ms"`
		MaxRetries        int    `yaml:"max_retries" json:"max_retries"`
		BaseDelayMillis   int    `yaml:"base_delay_ms" json:"base_delay_ms"`
		MaxDelayMillis    int    `yaml:"max_delay_ms" json:"max_delay_ms"`
		RequestTimeoutSec int    `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
		GlobalConcurrency int    `yaml:"global_concurrency" json:"global_concurrency"`
		Render            bool   `yaml:"render" json:"render"`
	} `yaml:"fetch" json:"fetch"`

	Campaign struct {
		BatchSize        int    `yaml:"batch_size" json:"batch_size"`
		BatchDelayMillis int    `yaml:"batch_delay_ms" json:"batch_delay_ms"`
		MaxAttempts      int    `yaml:"max_attempts" json:"max_attempts"`
		BackoffMillis    int    `yaml:"backoff_ms" json:"backoff_ms"`
		MaxBackoffMillis int    `yaml:"max_backoff_ms" json:"max_backoff_ms"`
		SendTimeoutSec   int    `yaml:"send_timeout_seconds" json:"send_timeout_seconds"`
		Recipients       string `yaml:"recipients" json:"recipients"` // first | all
	} `yaml:"campaign" json:"campaign"`

	SMTP struct {
		Host     string `yaml:"host" json:"host"`
		Port     int    `yaml:"port" json:"port"`
		Username string `yaml:"username" json:"username"`
		From     string `yaml:"from" json:"from"`
		FromName string `yaml:"from_name" json:"from_name"`
		TLS      string `yaml:"tls" json:"tls"` // implicit | starttls | none
		Password string `yaml:"-" json:"-"`
	} `yaml:"smtp" json:"smtp"`

	Bounce struct {
		Enabled  bool   `yaml:"enabled" json:"enabled"`
		IMAPHost string `yaml:"imap_host" json:"imap_host"`
		IMAPPort int    `yaml:"imap_port" json:"imap_port"`
		Username string `yaml:"username" json:"username"`
		Mailbox  string `yaml:"mailbox" json:"mailbox"`
		Password string `yaml:"-" json:"-"`

		IntervalMinutes int `yaml:"interval_minutes" json:"interval_minutes"`
	} `yaml:"bounce" json:"bounce"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

// Defaults are applied before the YAML file is decoded over them.
func Defaults() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "."
	c.Logging.Level = "info"
	c.Scrape.Sites = []string{"azubi", "ausbildung"}
	c.Scrape.MaxPages = 5
	c.Scrape.MaxRuntimeSeconds = 600
	c.Scrape.DetailFetch = true
	c.Fetch.UserAgent = "Mozilla/5.0 (compatible; AzubiEngine/1.0)"
	c.Fetch.MinDelayMillis = 1500
	c.Fetch.MaxRetries = 3
	c.Fetch.BaseDelayMillis = 500
	c.Fetch.MaxDelayMillis = 30000
	c.Fetch.RequestTimeoutSec = 20
	c.Fetch.GlobalConcurrency = 4
	c.Campaign.BatchSize = 10
	c.Campaign.BatchDelayMillis = 60000
	c.Campaign.MaxAttempts = 3
	c.Campaign.BackoffMillis = 2000
	c.Campaign.MaxBackoffMillis = 60000
	c.Campaign.SendTimeoutSec = 30
	c.Campaign.Recipients = "first"
	c.SMTP.Port = 587
	c.SMTP.TLS = "starttls"
	c.Bounce.IMAPPort = 993
	c.Bounce.Mailbox = "INBOX"
	c.Bounce.IntervalMinutes = 15
	return c
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c Config) MinDelay() time.Duration       { return ms(c.Fetch.MinDelayMillis) }
func (c Config) BaseDelay() time.Duration      { return ms(c.Fetch.BaseDelayMillis) }
func (c Config) MaxDelay() time.Duration       { return ms(c.Fetch.MaxDelayMillis) }
func (c Config) BatchDelay() time.Duration     { return ms(c.Campaign.BatchDelayMillis) }
func (c Config) SendBackoff() time.Duration    { return ms(c.Campaign.BackoffMillis) }
func (c Config) SendMaxBackoff() time.Duration { return ms(c.Campaign.MaxBackoffMillis) }

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Fetch.RequestTimeoutSec) * time.Second
}

func (c Config) SendTimeout() time.Duration {
	return time.Duration(c.Campaign.SendTimeoutSec) * time.Second
}

func (c Config) MaxRuntime() time.Duration {
	return time.Duration(c.Scrape.MaxRuntimeSeconds) * time.Second
}
