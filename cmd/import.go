// =============================================================================
// Tally Import - Import Command
// =============================================================================
//
// This file defines the 'import' command, the main command of the tool. It
// imports Tally exports into the configured account.
//
// COMMAND USAGE:
//   tally-import import [flags]
//
// FLAGS:
//   --file        : Import a single export instead of the input directory
//   --type        : customers, invoices or both (overrides import_type)
//   --owner       : Account to import into (overrides owner_id)
//   --no-archive  : Leave imported exports in place
//   --report      : Also write the XLSX report
//   --dry-run     : Use the in-memory store; nothing is persisted or archived
//
// PROCESSING PIPELINE:
//   1. Apply flag overrides and validate the configuration
//   2. Open the store (running migrations if configured)
//   3. Import each export, one at a time
//   4. Write the batch summary and, if anything failed, an error log
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/tally-import/internal/config"
	"github.com/ginjaninja78/tally-import/internal/importer"
	"github.com/ginjaninja78/tally-import/internal/reconcile"
	"github.com/ginjaninja78/tally-import/internal/storage"
	"github.com/ginjaninja78/tally-import/internal/storage/memory"
	"github.com/ginjaninja78/tally-import/internal/storage/postgres"
	"github.com/ginjaninja78/tally-import/internal/types"
	"github.com/ginjaninja78/tally-import/internal/validation"
	"github.com/ginjaninja78/tally-import/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// importFlags holds the overrides shared by import and watch.
type importFlags struct {
	importType string
	ownerID    string
	noArchive  bool
	report     bool
	dryRun     bool
}

var (
	importOpts importFlags

	// filePath is a single export to import.
	filePath string
)

// =============================================================================
// IMPORT COMMAND DEFINITION
// =============================================================================

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import Tally XML exports",
	Long: `The import command reads Tally XML exports from the input directory (or the
file given with --file) and reconciles them into the account's customers and
invoices.

Files are imported one at a time, in name order. An export that fails does not
stop the batch.

On success:
  - A JSON run summary is written to the output directory
  - The export is moved to the input archive

On error:
  - The export stays in the input directory
  - If the failure happened while writing to the database, the partial
    summary is still written; re-running the import is safe
  - An error log is created in the output directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), importOpts)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&filePath, "file", "", "Import a single export instead of the input directory")
	addImportFlags(importCmd, &importOpts)
}

// addImportFlags registers the overrides on cmd.
func addImportFlags(cmd *cobra.Command, f *importFlags) {
	cmd.Flags().StringVar(&f.importType, "type", "", "What to import: customers, invoices or both")
	cmd.Flags().StringVar(&f.ownerID, "owner", "", "Account to import into")
	cmd.Flags().BoolVar(&f.noArchive, "no-archive", false, "Leave imported exports in the input directory")
	cmd.Flags().BoolVar(&f.report, "report", false, "Also write an XLSX report per export")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Use the in-memory store; nothing is persisted or archived")
}

// apply copies the flag overrides onto cfg.
func (f importFlags) apply(cfg *config.MainConfig) error {
	if f.importType != "" {
		if _, err := types.ParseImportType(f.importType); err != nil {
			return err
		}
		cfg.ImportType = f.importType
	}
	if f.ownerID != "" {
		cfg.OwnerID = f.ownerID
	}
	if f.report {
		cfg.Report = true
	}
	if f.dryRun {
		cfg.Storage.Driver = storage.DriverMemory
		cfg.Storage.Migrate = false
	}
	return cfg.Validate()
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runImport(ctx context.Context, flags importFlags) error {
	// =========================================================================
	// STEP 1: APPLY OVERRIDES
	// =========================================================================

	if err := flags.apply(mainConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := mainConfig.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: OPEN STORE
	// =========================================================================

	store, closeStore, err := openStore(ctx, mainConfig)
	if err != nil {
		return err
	}
	defer closeStore()

	im, files, err := newImporter(store, mainConfig, flags)
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 3: IMPORT
	// =========================================================================

	if filePath != "" {
		res := im.ImportFile(ctx, filePath)
		printResult(res)
		if !res.Success {
			writeErrorLog(files, []importer.Result{res})
			return fmt.Errorf("import of %s failed: %w", filepath.Base(filePath), res.Error)
		}
		return nil
	}

	results, batch, err := im.ImportDir(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover input files: %w", err)
	}
	if batch.TotalFiles == 0 && batch.PendingFiles == 0 {
		logger.Info("no exports found", zap.String("input_dir", mainConfig.InputDir))
		return nil
	}

	// =========================================================================
	// STEP 4: SUMMARY
	// =========================================================================

	return finishBatch(files, results, batch)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// openStore opens the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.MainConfig) (storage.Store, func(), error) {
	switch cfg.Storage.Driver {
	case storage.DriverMemory:
		logger.Warn("using the in-memory store; nothing will be persisted")
		return memory.New(), func() {}, nil

	case storage.DriverPostgres:
		if cfg.Storage.Migrate {
			if err := postgres.RunMigrations(cfg.Storage.DatabaseURL); err != nil {
				return nil, nil, err
			}
			logger.Info("schema is up to date")
		}

		store, err := postgres.Open(ctx, postgres.Config{
			DatabaseURL: cfg.Storage.DatabaseURL,
			MaxConns:    cfg.Storage.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// newImporter builds the importer and its file manager from cfg.
func newImporter(store storage.Store, cfg *config.MainConfig, flags importFlags) (*importer.Importer, *utils.FileManager, error) {
	files := utils.NewFileManager(cfg.InputDir, cfg.OutputDir, cfg.InputArchiveDir)
	files.ArchiveOnSuccess = !flags.noArchive && !flags.dryRun

	im, err := importer.New(store, files, importer.Options{
		OwnerID:      cfg.OwnerID,
		ImportType:   types.ImportType(cfg.ImportType),
		WriteSummary: cfg.SummaryFormat == config.SummaryJSON,
		WriteReport:  cfg.Report,
		Validation:   validationOptions(cfg.Validation),
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return im, files, nil
}

// validationOptions maps the validation section of the config.
func validationOptions(cfg config.ValidationConfig) validation.ValidationOptions {
	opts := validation.DefaultValidationOptions()
	opts.TreatWarningsAsErrors = cfg.TreatWarningsAsErrors
	opts.SkipGSTINCheck = cfg.SkipGSTINCheck
	return opts
}

// finishBatch prints the batch summary, writes the summary and error logs,
// and reports whether any file failed.
func finishBatch(files *utils.FileManager, results []importer.Result, batch utils.ProcessingSummary) error {
	for _, res := range results {
		printResult(res)
	}

	fmt.Println("\n=== Import Complete ===")
	fmt.Printf("Total files:     %d\n", batch.TotalFiles)
	fmt.Printf("Successful:      %d\n", batch.SuccessfulFiles)
	fmt.Printf("Errors:          %d\n", batch.FailedFiles)
	if batch.PendingFiles > 0 {
		fmt.Printf("Not attempted:   %d (interrupted)\n", batch.PendingFiles)
	}
	fmt.Printf("Customers:       %d created, %d updated, %d skipped\n",
		batch.Customers.Created, batch.Customers.Updated, batch.Customers.Skipped)
	fmt.Printf("Invoices:        %d created, %d updated, %d skipped\n",
		batch.Invoices.Created, batch.Invoices.Updated, batch.Invoices.Skipped)
	fmt.Printf("Time elapsed:    %s\n", batch.EndTime.Sub(batch.StartTime).Round(time.Millisecond))

	if path, err := utils.WriteSummaryLog(batch, files.OutputDir); err != nil {
		logger.Warn("failed to write processing summary", zap.Error(err))
	} else {
		logger.Debug("processing summary written", zap.String("path", path))
	}

	if batch.FailedFiles > 0 {
		writeErrorLog(files, results)
		return fmt.Errorf("%d of %d export(s) failed", batch.FailedFiles, batch.TotalFiles)
	}
	if batch.PendingFiles > 0 {
		return fmt.Errorf("interrupted; %d export(s) not attempted", batch.PendingFiles)
	}
	return nil
}

// printResult prints one line per imported file.
func printResult(res importer.Result) {
	name := filepath.Base(res.FilePath)
	if !res.Success {
		fmt.Printf("  ✗ %s: %v\n", name, res.Error)
		return
	}
	fmt.Printf("  ✓ %s: customers %d/%d/%d, invoices %d/%d/%d (created/updated/skipped)\n",
		name,
		res.Summary.Customers.Created, res.Summary.Customers.Updated, res.Summary.Customers.Skipped,
		res.Summary.Invoices.Created, res.Summary.Invoices.Updated, res.Summary.Invoices.Skipped,
	)
	for _, msg := range res.Summary.Errors {
		fmt.Printf("      ! %s\n", msg)
	}
}

// writeErrorLog records the failed results in the output directory.
func writeErrorLog(files *utils.FileManager, results []importer.Result) {
	var entries []utils.ErrorLogEntry
	for _, res := range results {
		if res.Success {
			continue
		}
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    time.Now(),
			FileName:     filepath.Base(res.FilePath),
			ErrorType:    res.Stage,
			ErrorMessage: res.Error.Error(),
			Stage:        failedOp(res.Error),
			RunID:        res.RunID,
		})
	}

	path, err := utils.WriteErrorLog(entries, files.OutputDir)
	if err != nil {
		logger.Error("failed to write error log", zap.Error(err))
		return
	}
	if path != "" {
		fmt.Printf("\nErrors have been logged to %s\n", path)
	}
}

// failedOp names the storage operation behind a reconciliation failure.
func failedOp(err error) string {
	var runErr *reconcile.RunError
	if errors.As(err, &runErr) {
		return runErr.Op
	}
	return ""
}
