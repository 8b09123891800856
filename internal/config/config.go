// =============================================================================
// Tally Import - Configuration Module
// =============================================================================
//
// This module is responsible for loading the application configuration.
//
// CONFIGURATION SOURCES (later sources win):
//   1. Main Config (config.yaml): Global application settings
//   2. .env file next to the working directory, if present
//   3. Process environment (DATABASE_URL, TALLY_OWNER_ID, TALLY_LOG_LEVEL)
//
// Command line flags are applied on top of this by the cmd package.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/tally-import/internal/storage"
	"github.com/ginjaninja78/tally-import/internal/types"
)

// Environment variables that override the YAML file.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvOwnerID     = "TALLY_OWNER_ID"
	EnvLogLevel    = "TALLY_LOG_LEVEL"
)

// Summary formats written next to each processed export.
const (
	SummaryJSON = "json"
	SummaryNone = "none"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
// This is loaded from the main config.yaml file.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is the directory where Tally XML exports are placed.
	// The application will scan this directory for files to import.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir is the directory where run summaries and reports are written.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir is the directory where imported exports are moved.
	// Files are only moved here after a run completes without a storage error.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is the path to the application log file. Empty disables the
	// file sink.
	// Default: "./logs/tally-import.log"
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// IMPORT SETTINGS
	// =========================================================================

	// OwnerID is the account every imported record belongs to.
	// Required.
	OwnerID string `yaml:"owner_id"`

	// ImportType selects which passes run: "customers", "invoices" or "both".
	// Default: "both"
	ImportType string `yaml:"import_type"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// SummaryFormat controls the per-file run summary: "json" or "none".
	// Default: "json"
	SummaryFormat string `yaml:"summary_format"`

	// Report enables the XLSX report (Summary, Invoices and Skipped sheets).
	// Default: false
	Report bool `yaml:"report"`

	// =========================================================================
	// VALIDATION SETTINGS
	// =========================================================================

	Validation ValidationConfig `yaml:"validation"`

	// =========================================================================
	// WATCH SETTINGS
	// =========================================================================

	// WatchSchedule is the cron expression used by the watch command.
	// Both five-field expressions and descriptors such as "@every 5m" work.
	// Default: "@every 5m"
	WatchSchedule string `yaml:"watch_schedule"`

	// =========================================================================
	// STORAGE SETTINGS
	// =========================================================================

	Storage StorageConfig `yaml:"storage"`
}

// ValidationConfig tunes the checks run before anything is stored.
type ValidationConfig struct {
	// TreatWarningsAsErrors drops records that only have warnings instead
	// of importing them.
	// Default: false
	TreatWarningsAsErrors bool `yaml:"treat_warnings_as_errors"`

	// SkipGSTINCheck disables the GSTIN shape warning, for ledgers that keep
	// foreign tax identifiers in the GSTIN field.
	// Default: false
	SkipGSTINCheck bool `yaml:"skip_gstin_check"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps nothing
	// between runs and is meant for dry runs.
	// Default: "postgres"
	Driver string `yaml:"driver"`

	// DatabaseURL is a PostgreSQL connection URL. DATABASE_URL overrides it.
	DatabaseURL string `yaml:"database_url"`

	// MaxConns caps the connection pool. Zero keeps the pgx default.
	MaxConns int32 `yaml:"max_conns"`

	// Migrate applies pending schema migrations before each import.
	// Default: false
	Migrate bool `yaml:"migrate"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file. A missing file is
//     not an error; defaults and the environment are used instead.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be parsed or the result is invalid.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults and environment only.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	applyEnvOverrides(&config)

	// Apply default values.
	applyMainConfigDefaults(&config)

	// Validate the configuration.
	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadDotEnv reads .env into the process environment without overriding
// variables that are already set.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyEnvOverrides copies non-empty environment values onto the config.
func applyEnvOverrides(config *MainConfig) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		config.Storage.DatabaseURL = v
	}
	if v := os.Getenv(EnvOwnerID); v != "" {
		config.OwnerID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		config.LogLevel = v
	}
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.LogFile == "" {
		config.LogFile = "./logs/tally-import.log"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.ImportType == "" {
		config.ImportType = string(types.ImportBoth)
	}
	if config.SummaryFormat == "" {
		config.SummaryFormat = SummaryJSON
	}
	if config.WatchSchedule == "" {
		config.WatchSchedule = "@every 5m"
	}
	if config.Storage.Driver == "" {
		config.Storage.Driver = storage.DriverPostgres
	}
}

// validateMainConfig validates the main configuration. The owner is checked
// by Validate, after command line flags have been applied.
func validateMainConfig(config *MainConfig) error {
	if _, err := types.ParseImportType(config.ImportType); err != nil {
		return err
	}

	switch strings.ToLower(config.SummaryFormat) {
	case SummaryJSON, SummaryNone:
	default:
		return fmt.Errorf("unknown summary_format %q (want json or none)", config.SummaryFormat)
	}

	switch config.Storage.Driver {
	case storage.DriverMemory, storage.DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q (want postgres or memory)", config.Storage.Driver)
	}

	return nil
}

// Validate checks the settings an import cannot run without.
func (c *MainConfig) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("owner_id is required (config file, %s or --owner)", EnvOwnerID)
	}
	if c.Storage.Driver == storage.DriverPostgres && c.Storage.DatabaseURL == "" {
		return fmt.Errorf("storage.database_url is required for the postgres driver (or set %s)", EnvDatabaseURL)
	}
	return nil
}

// EnsureDirectories creates the input, output and archive directories.
func (c *MainConfig) EnsureDirectories() error {
	for _, dir := range []string{c.InputDir, c.OutputDir, c.InputArchiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
