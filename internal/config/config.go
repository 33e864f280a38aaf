package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	DBPath      string   `yaml:"db_path"`
	DefaultFarm string   `yaml:"default_farm"`
	Farms       []string `yaml:"farms"`
	Workers     int      `yaml:"workers"`
	DaemonAddr  string   `yaml:"daemon_addr"`
	DaemonToken string   `yaml:"daemon_token"`
	LogLevel    string   `yaml:"log_level"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/taskmigrate/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		Workers:  1,
		LogLevel: "info",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// Load ~/.config/taskmigrate/config.yaml if it exists
	if err := loadYAMLConfig(cfg); err != nil {
		// YAML config is optional, so we don't fail if it doesn't exist
	}

	// Override with environment variables
	if dbPath := getEnvOrFile("FARMKONNECT_DB_PATH", "FARMKONNECT_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if farm := os.Getenv("FARMKONNECT_FARM"); farm != "" {
		cfg.DefaultFarm = farm
	}
	if farms := os.Getenv("FARMKONNECT_FARMS"); farms != "" {
		cfg.Farms = splitList(farms)
	}
	if workers := os.Getenv("FARMKONNECT_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid FARMKONNECT_WORKERS value: %q", workers)
		}
		cfg.Workers = n
	}
	if addr := os.Getenv("FARMKONNECT_DAEMON_ADDR"); addr != "" {
		cfg.DaemonAddr = addr
	}
	if token := getEnvOrFile("FARMKONNECT_DAEMON_TOKEN", "FARMKONNECT_DAEMON_TOKEN_FILE"); token != "" {
		cfg.DaemonToken = token
	}
	if logLevel := os.Getenv("FARMKONNECT_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Set defaults if not configured
	if cfg.DBPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(homeDir, ".local", "share", "taskmigrate", "taskmigrate.db")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return cfg, nil
}

// FarmAllowed reports whether a farm is within the configured allow-list.
// An empty list allows any farm.
func (c *Config) FarmAllowed(farmID string) bool {
	if len(c.Farms) == 0 {
		return true
	}
	for _, farm := range c.Farms {
		if farm == farmID {
			return true
		}
	}
	return false
}

// loadYAMLConfig loads configuration from ~/.config/taskmigrate/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "taskmigrate", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Clean paths for reliable comparison
	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		// Stop if we've reached home directory
		if dir == homeDir {
			break
		}

		// Get parent directory
		parent := filepath.Dir(dir)

		// Stop if we've reached the filesystem root
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
