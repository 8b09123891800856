// =============================================================================
// Tally Import - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (tally-import)
//   ├── importCmd  (tally-import import)
//   ├── watchCmd   (tally-import watch)
//   ├── migrateCmd (tally-import migrate up|down)
//   └── versionCmd (tally-import version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the configuration before any subcommand runs
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/tally-import/internal/config"
	"github.com/ginjaninja78/tally-import/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
// This can be overridden using the --config flag.
var cfgFile string

// verbose enables debug logging on the console when set to true.
var verbose bool

// Set by PersistentPreRunE for every command except those annotated with
// skipSetup.
var (
	mainConfig  *config.MainConfig
	logger      = zap.NewNop()
	closeLogger = func() {}
)

// skipSetup marks commands that run without configuration or logging.
const skipSetup = "skip-setup"

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tally-import",
	Short: "Tally Import - Reconcile Tally ERP XML exports into customers and invoices",
	Long: `Tally Import reads XML exports from Tally ERP (masters and day books) and
reconciles them into the customer and invoice records of one account.

Key Features:
  - Sundry Debtor ledgers become customers, sales vouchers become invoices
  - Re-importing the same export is safe: records are matched by customer
    name and invoice number
  - Outstanding balances are recomputed for every customer an import touched
  - UTF-16 exports are handled transparently
  - A JSON summary (and optional XLSX report) per imported file

Example Usage:
  tally-import import                          # Import every export in the input directory
  tally-import import --file daybook.xml       # Import one export
  tally-import import --type customers         # Only the customer pass
  tally-import watch                           # Import on the configured schedule
  tally-import migrate up                      # Create or update the database schema`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipSetup] == "true" {
			return nil
		}
		return setup()
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogger()
	},

	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print the help message.
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). SIGINT and SIGTERM cancel
// the command's context; an import in progress stops before its next
// storage call.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	// ==========================================================================
	// PERSISTENT FLAGS
	// ==========================================================================
	// Persistent flags are available to this command and all subcommands.

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug output on the console",
	)
}

// setup loads the configuration and builds the logger.
func setup() error {
	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load main config: %w", err)
	}

	log, closeFn, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Verbose: verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	mainConfig = cfg
	logger = log
	closeLogger = closeFn

	logger.Debug("configuration loaded",
		zap.String("config", cfgFile),
		zap.String("input_dir", cfg.InputDir),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("database", logging.RedactURL(cfg.Storage.DatabaseURL)),
	)
	return nil
}
