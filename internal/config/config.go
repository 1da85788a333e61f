package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port           int      `yaml:"port"`
	DBPath         string   `yaml:"db_path"`
	DBDriver       string   `yaml:"db_driver"`
	RootPath       string   `yaml:"root"`
	ShowHidden     bool     `yaml:"show_hidden"`
	ScanSchedule   string   `yaml:"scan_schedule"`   // Cron expression, empty = no scheduled scans
	ProcessCommand string   `yaml:"process_command"` // External per-file command, empty = built-in hasher
	RetentionDays  int      `yaml:"retention_days"`
	AllowedPaths   []string `yaml:"allowed_paths"` // Empty = unrestricted

	RetentionDaysFromEnv bool `yaml:"-"` // True if retention came from env var or config file
}

// Load builds the configuration from defaults, the optional YAML file named
// by TREESCAN_CONFIG, then environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:          8080,
		DBPath:        "./data/treescan.db",
		DBDriver:      "sqlite",
		RootPath:      "~",
		RetentionDays: 30,
	}

	if path := getEnv("TREESCAN_CONFIG", ""); path != "" {
		if err := cfg.loadFile(ExpandPath(path)); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnvInt("TREESCAN_PORT", cfg.Port)
	cfg.DBPath = getEnv("TREESCAN_DB_PATH", cfg.DBPath)
	cfg.DBDriver = getEnv("TREESCAN_DB_DRIVER", cfg.DBDriver)
	cfg.RootPath = getEnv("TREESCAN_ROOT", cfg.RootPath)
	cfg.ShowHidden = getEnvBool("TREESCAN_SHOW_HIDDEN", cfg.ShowHidden)
	cfg.ScanSchedule = getEnv("TREESCAN_SCAN_SCHEDULE", cfg.ScanSchedule)
	cfg.ProcessCommand = getEnv("TREESCAN_PROCESS_COMMAND", cfg.ProcessCommand)

	if os.Getenv("TREESCAN_RETENTION_DAYS") != "" {
		cfg.RetentionDaysFromEnv = true
	}
	cfg.RetentionDays = getEnvInt("TREESCAN_RETENTION_DAYS", cfg.RetentionDays)

	if paths := getEnvPaths("TREESCAN_ALLOWED_PATHS"); paths != nil {
		cfg.AllowedPaths = paths
	}

	cfg.DBPath = ExpandPath(cfg.DBPath)
	cfg.RootPath = ExpandPath(cfg.RootPath)
	if abs, err := filepath.Abs(cfg.RootPath); err == nil {
		cfg.RootPath = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if _, ok := raw["retention_days"]; ok {
		c.RetentionDaysFromEnv = true
	}

	for i, p := range c.AllowedPaths {
		c.AllowedPaths[i] = ExpandPath(p)
	}
	return nil
}

// Validate checks the configuration for values the application cannot run
// with
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "sqlite3" {
		return fmt.Errorf("unknown database driver %q (want sqlite or sqlite3)", c.DBDriver)
	}
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention days must be between 1 and 365, got %d", c.RetentionDays)
	}
	if !c.IsPathAllowed(c.RootPath) {
		return fmt.Errorf("root %s is outside the allowed paths", c.RootPath)
	}
	return nil
}

// IsPathAllowed reports whether path is inside one of the allowed paths.
// An empty allow list permits everything.
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}

	path = filepath.Clean(path)
	for _, allowed := range c.AllowedPaths {
		allowed = filepath.Clean(allowed)
		if path == allowed {
			return true
		}
		prefix := allowed
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ExpandPath expands a leading ~ to the user's home directory and cleans the
// result
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvPaths parses a comma-separated path list, or returns nil if unset
func getEnvPaths(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}

	var paths []string
	for _, p := range strings.Split(val, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, ExpandPath(p))
		}
	}
	return paths
}
