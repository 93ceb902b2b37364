// Package config loads process configuration: a .env-backed struct for
// database/concurrency/env settings (envdecode + godotenv, grounded on
// pkg/config/config.go's New()/Load() split) and a YAML schedule file
// supplying the cron task table (§4.7/§6).
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide settings struct, bound from environment
// variables via struct tags.
type Config struct {
	Database DatabaseConfig
	Crawler  CrawlerConfig
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST,default=localhost"`
	Port     int    `env:"DB_PORT,default=5432"`
	Name     string `env:"DB_NAME,required"`
	User     string `env:"DB_USER,required"`
	Password string `env:"DB_PASSWORD,required"`
	SSLMode  string `env:"DB_SSLMODE,default=disable"`
}

// ConnectionString returns the lib/pq DSN for this database config.
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

type CrawlerConfig struct {
	SyncNum       int    `env:"SYNC_NUM,default=5"`
	BatchSize     int    `env:"BATCH_SIZE,default=100"`
	AccessKeyHint string `env:"ACCESS_KEY_HINT,default="`
	VersionFile   string `env:"VERSION_FILE,default=version.txt"`
	RedisAddr     string `env:"REDIS_ADDR,default="`
	ScheduleFile  string `env:"SCHEDULE_FILE,default=schedule.yaml"`
	APIBaseURL    string `env:"API_BASE_URL,required"`
}

// Load reads a .env file (if present; missing is not an error) then decodes
// environment variables into a Config via struct tags.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode env: %w", err)
	}
	return &cfg, nil
}

// ScheduleEntry is one row of the YAML task table described in §4.7/§6.
type ScheduleEntry struct {
	TaskName   string         `yaml:"task_name"`
	Enabled    bool           `yaml:"enabled"`
	Minute     string         `yaml:"minute"`
	Hour       string         `yaml:"hour"`
	DayOfMonth string         `yaml:"day_of_month"`
	Month      string         `yaml:"month"`
	DayOfWeek  string         `yaml:"day_of_week"`
	Mode       string         `yaml:"mode,omitempty"`
	Params     map[string]any `yaml:"params,omitempty"`
}

// LoadSchedule parses the YAML schedule file into the task table the
// scheduler dispatches from.
func LoadSchedule(path string) ([]ScheduleEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read schedule file: %w", err)
	}
	var entries []ScheduleEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("config: parse schedule file: %w", err)
	}
	return entries, nil
}
