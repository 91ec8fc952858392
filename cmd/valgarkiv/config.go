package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configFileName = "valgarkiv.yaml"

// Config holds the binary's configuration. Loaded from valgarkiv.yaml if
// present, then overridden by VALGARKIV_* environment variables.
type Config struct {
	// DataDir is where BadgerDB stores data, one subdirectory per year.
	DataDir string `yaml:"dataDir"`

	// APIBaseURL is the upstream result API.
	APIBaseURL string `yaml:"apiBaseURL"`

	// Years lists the election years to monitor.
	Years []string `yaml:"years"`

	// DynamoTable selects the DynamoDB backend when non-empty: snapshots
	// go to the table "<DynamoTable>-<year>" instead of local BadgerDB.
	DynamoTable string `yaml:"dynamoTable"`

	// EntitiesFile is an optional static registry definition. When empty
	// the registry is discovered from the API at startup.
	EntitiesFile string `yaml:"entitiesFile"`

	// ListenAddr is the HTTP address for the serve command.
	ListenAddr string `yaml:"listenAddr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig returns the configuration used when no file or overrides
// are present.
func DefaultConfig() Config {
	return Config{
		DataDir:    "./data",
		APIBaseURL: "https://valgresultat.no/api",
		Years:      []string{"2025"},
		ListenAddr: ":8080",
		LogLevel:   "info",
	}
}

// LoadConfig searches for valgarkiv.yaml starting from the current
// directory and walking up to the filesystem root, then applies
// environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := findConfigFile(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("VALGARKIV_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VALGARKIV_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("VALGARKIV_YEARS"); v != "" {
		cfg.Years = strings.Split(v, ",")
	}
	if v := os.Getenv("VALGARKIV_DYNAMO_TABLE"); v != "" {
		cfg.DynamoTable = v
	}

	return cfg, nil
}

// findConfigFile searches for valgarkiv.yaml walking up from the current
// directory.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// yearDir returns the per-year database directory. Keeping years in
// separate databases keeps their histories and sweeps independent.
func (c Config) yearDir(year string) string {
	return filepath.Join(c.DataDir, year)
}

// dynamoTableFor returns the per-year DynamoDB table name.
func (c Config) dynamoTableFor(year string) string {
	return c.DynamoTable + "-" + year
}

func (c Config) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
