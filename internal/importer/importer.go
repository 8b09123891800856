// =============================================================================
// Tally Import - Importer Module
// =============================================================================
//
// This module contains the per-file import pipeline. It orchestrates one run,
// from reading a Tally export to the reconciled run summary.
//
// IMPORT PIPELINE:
//   1. Read the export
//   2. Decode and parse it into a Node tree
//   3. Extract customer and invoice fragments
//   4. Validate the fragments against the storage schema
//   5. Reconcile them with the owner's stored records
//   6. Write the run summary (and the optional XLSX report)
//   7. Archive the export
//
// CONCURRENCY:
//   Imports are serialized. The reconciliation engine indexes the owner's
//   customers once per run and expects no other writer in the meantime, so
//   an Importer never runs two files at once.
//
// =============================================================================

package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ginjaninja78/tally-import/internal/reconcile"
	"github.com/ginjaninja78/tally-import/internal/report"
	"github.com/ginjaninja78/tally-import/internal/storage"
	"github.com/ginjaninja78/tally-import/internal/tally"
	"github.com/ginjaninja78/tally-import/internal/types"
	"github.com/ginjaninja78/tally-import/internal/validation"
	"github.com/ginjaninja78/tally-import/pkg/utils"
)

// Stages reported in Result.Stage when a run fails.
const (
	StageRead      = "read"
	StageParse     = "parse"
	StageReconcile = "reconcile"
	StageOutput    = "output"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of importing a single file.
type Result struct {
	// FilePath is the path to the export that was processed.
	FilePath string

	// RunID identifies the run in logs, summary files and reports.
	RunID string

	// SummaryFile is the path to the JSON run summary, if one was written.
	SummaryFile string

	// ReportFile is the path to the XLSX report, if one was written.
	ReportFile string

	// FindingsFile lists the validation findings of the run. It is written
	// next to the summary when there was at least one finding.
	FindingsFile string

	// ArchivePath is where the export was moved. Empty if it was not archived.
	ArchivePath string

	// Success indicates whether the run completed.
	Success bool

	// Error contains the error if the run failed.
	Error error

	// Stage names the pipeline step that failed.
	Stage string

	// Summary holds the run's counts. After a storage failure it holds the
	// counts reached before the failure; after a parse failure it is nil.
	Summary *types.RunSummary

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// LedgersSeen and VouchersSeen count the nodes each pass considered.
	LedgersSeen  int
	VouchersSeen int

	// CustomerFragments and InvoiceFragments count the records that reached
	// the reconciliation engine.
	CustomerFragments int
	InvoiceFragments  int

	// ValidationErrors is the number of records dropped by validation.
	ValidationErrors int

	// ValidationWarnings is the number of warnings added to the summary.
	ValidationWarnings int

	// BalancesRecalculated is the number of customers whose outstanding
	// balance was recomputed.
	BalancesRecalculated int

	// ProcessingTime is the time taken to process the file.
	ProcessingTime time.Duration
}

// =============================================================================
// IMPORTER STRUCTURE
// =============================================================================

// Options configures an Importer.
type Options struct {
	// OwnerID is the account every record is stored under. Required.
	OwnerID string

	// ImportType selects the customer pass, the invoice pass, or both.
	ImportType types.ImportType

	// WriteSummary writes <export>_<run id>.json to the output directory,
	// plus <export>_<run id>_findings.txt when validation found anything.
	WriteSummary bool

	// WriteReport writes <export>_<run id>.xlsx to the output directory.
	WriteReport bool

	// Validation tunes the pre-persistence checks.
	Validation validation.ValidationOptions
}

// Importer runs the pipeline for one owner.
type Importer struct {
	engine    *reconcile.Engine
	validator *validation.Validator
	files     *utils.FileManager
	opts      Options
	logger    *zap.Logger

	// mu serializes runs.
	mu sync.Mutex

	// now is replaced in tests.
	now func() time.Time
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// New creates a new Importer instance.
//
// PARAMETERS:
//   - store: The persistence backend.
//   - files: Directory layout for discovery, output and archival.
//   - opts: Owner, import type and output switches.
//   - logger: Structured logger. A nil logger discards output.
//
// RETURNS:
//   - A new Importer instance, or an error if opts is incomplete.
func New(store storage.Store, files *utils.FileManager, opts Options, logger *zap.Logger) (*Importer, error) {
	if strings.TrimSpace(opts.OwnerID) == "" {
		return nil, errors.New("owner id is required")
	}
	if opts.ImportType == "" {
		opts.ImportType = types.ImportBoth
	}
	if _, err := types.ParseImportType(string(opts.ImportType)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Importer{
		engine:    reconcile.New(store, logger),
		validator: validation.NewValidatorWithOptions(opts.Validation),
		files:     files,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// =============================================================================
// MAIN PROCESSING FUNCTIONS
// =============================================================================

// Outcome is the in-memory result of importing one document.
type Outcome struct {
	Summary    *types.RunSummary
	Extraction tally.Extraction
	Validation *validation.ValidationResult
}

// ImportBytes runs steps 2 to 5 of the pipeline on an export already in
// memory. Nothing is written to disk.
//
// PARAMETERS:
//   - ctx: Cancelling it stops the run before the next storage call.
//   - raw: The export bytes (UTF-8 or UTF-16).
//
// RETURNS:
//   - The outcome. On a storage failure Summary holds the partial counts.
//   - tally.ErrEmptyDocument or a parse error before any storage call, or a
//     *reconcile.RunError when a storage call fails.
func (im *Importer) ImportBytes(ctx context.Context, raw []byte) (Outcome, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.importBytes(ctx, raw)
}

func (im *Importer) importBytes(ctx context.Context, raw []byte) (Outcome, error) {
	var out Outcome

	// =========================================================================
	// STEP 2: PARSE DOCUMENT
	// =========================================================================
	// Decode UTF-16 exports, strip invalid character references and build
	// the Node tree. Nothing has touched storage yet.

	root, err := tally.ParseBytes(raw)
	if err != nil {
		return out, err
	}

	// =========================================================================
	// STEP 3: EXTRACT FRAGMENTS
	// =========================================================================
	// Classify LEDGER and VOUCHER nodes. Rejected nodes become skips.

	today := im.now().Format(time.DateOnly)
	out.Extraction = tally.Extract(root, im.opts.ImportType, today)

	im.logger.Debug("extracted fragments",
		zap.Int("ledgers", out.Extraction.Ledgers),
		zap.Int("vouchers", out.Extraction.Vouchers),
		zap.Int("customers", len(out.Extraction.Customers)),
		zap.Int("invoices", len(out.Extraction.Invoices)),
		zap.Int("skipped", len(out.Extraction.Skips)),
	)

	// =========================================================================
	// STEP 4: VALIDATE FRAGMENTS
	// =========================================================================
	// Records that would not fit the storage schema are dropped and counted
	// as skipped. Warnings are kept for the summary.

	ext, result := im.validator.Apply(out.Extraction)
	out.Extraction = ext
	out.Validation = result

	for _, ve := range result.Errors {
		im.logger.Warn("validation finding",
			zap.String("severity", ve.Severity),
			zap.String("kind", ve.Kind),
			zap.String("ref", ve.Ref),
			zap.String("field", ve.Field),
			zap.String("message", ve.Message),
		)
	}

	// =========================================================================
	// STEP 5: RECONCILE
	// =========================================================================

	summary, err := im.engine.Run(ctx, im.opts.OwnerID, ext, im.opts.ImportType)
	if err != nil {
		var runErr *reconcile.RunError
		if errors.As(err, &runErr) {
			summary = runErr.Summary
		}
	}
	if summary != nil {
		summary.Errors = append(summary.Errors, result.Warnings()...)
	}
	out.Summary = summary

	return out, err
}

// ImportFile executes the whole pipeline for one export.
//
// PARAMETERS:
//   - ctx: Passed to every storage call.
//   - path: The export to import.
//
// RETURNS:
//   - A Result struct containing the outcome of the processing.
//
// A failed run leaves the export where it is. The summary of a run that
// stopped on a storage error is still written so the partial counts are
// not lost.
func (im *Importer) ImportFile(ctx context.Context, path string) Result {
	im.mu.Lock()
	defer im.mu.Unlock()

	startTime := im.now()
	result := Result{
		FilePath: path,
		RunID:    uuid.New().String(),
	}
	logger := im.logger.With(zap.String("run_id", result.RunID), zap.String("file", filepath.Base(path)))
	logger.Info("processing file", zap.String("owner", im.opts.OwnerID), zap.String("import_type", string(im.opts.ImportType)))

	// =========================================================================
	// STEP 1: READ EXPORT
	// =========================================================================

	raw, err := os.ReadFile(path)
	if err != nil {
		result.Stage = StageRead
		result.Error = fmt.Errorf("failed to read export: %w", err)
		return result
	}

	// =========================================================================
	// STEPS 2-5: PARSE, EXTRACT, VALIDATE, RECONCILE
	// =========================================================================

	outcome, err := im.importBytes(ctx, raw)
	result.Summary = outcome.Summary
	result.Stats = statsFor(outcome)
	if err != nil {
		result.Error = err
		result.Stage = StageReconcile
		if outcome.Summary == nil {
			result.Stage = StageParse
		}
	}

	// =========================================================================
	// STEP 6: WRITE SUMMARY AND REPORT
	// =========================================================================
	// A parse failure has no summary to write. A storage failure writes the
	// partial one.

	if result.Summary != nil {
		if err := im.writeOutputs(&result, outcome, startTime); err != nil {
			logger.Error("failed to write run outputs", zap.Error(err))
			if result.Error == nil {
				result.Stage = StageOutput
				result.Error = err
			}
		}
	}

	if result.Error != nil {
		result.Stats.ProcessingTime = im.now().Sub(startTime)
		logger.Error("import failed", zap.String("stage", result.Stage), zap.Error(result.Error))
		return result
	}

	// =========================================================================
	// STEP 7: ARCHIVE EXPORT
	// =========================================================================

	if archived, err := im.files.ArchiveInputFile(path); err != nil {
		// Log the error but don't fail the run; the data is already stored.
		logger.Warn("failed to archive export", zap.Error(err))
	} else if archived != path {
		result.ArchivePath = archived
	}

	// =========================================================================
	// COMPLETE
	// =========================================================================

	result.Success = true
	result.Stats.ProcessingTime = im.now().Sub(startTime)

	logger.Info("import complete",
		zap.Int("customers_created", result.Summary.Customers.Created),
		zap.Int("customers_updated", result.Summary.Customers.Updated),
		zap.Int("invoices_created", result.Summary.Invoices.Created),
		zap.Int("invoices_updated", result.Summary.Invoices.Updated),
		zap.Int("messages", len(result.Summary.Errors)),
		zap.Duration("elapsed", result.Stats.ProcessingTime),
	)

	return result
}

// ImportDir imports every export waiting in the input directory, one at a
// time and in name order. A failed file does not stop the batch, but a
// cancelled context does.
//
// RETURNS:
//   - One Result per file attempted.
//   - The batch totals. TotalFiles counts the attempted files; files left
//     behind by a cancellation are counted in PendingFiles.
//   - An error only if the input directory cannot be read.
func (im *Importer) ImportDir(ctx context.Context) ([]Result, utils.ProcessingSummary, error) {
	batch := utils.ProcessingSummary{StartTime: im.now()}

	files, err := im.files.DiscoverInputFiles(utils.ExportExtension)
	if err != nil {
		return nil, batch, err
	}
	results := make([]Result, 0, len(files))
	for i, path := range files {
		if ctx.Err() != nil {
			batch.PendingFiles = len(files) - i
			break
		}

		res := im.ImportFile(ctx, path)
		results = append(results, res)
		batch.TotalFiles++

		if res.Success {
			batch.ValidationWarnings += res.Stats.ValidationWarnings
			batch.Add(utils.ProcessedFileInfo{
				InputFile:   path,
				SummaryFile: res.SummaryFile,
				ArchivePath: res.ArchivePath,
				Customers:   res.Summary.Customers,
				Invoices:    res.Summary.Invoices,
				ProcessTime: res.Stats.ProcessingTime,
			})
			continue
		}

		batch.Fail(utils.FailedFileInfo{
			InputFile:    path,
			ErrorMessage: res.Error.Error(),
			ErrorType:    res.Stage,
		})
	}

	batch.EndTime = im.now()
	return results, batch, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// summaryFile is the JSON document written for every run that reached
// reconciliation.
type summaryFile struct {
	RunID      string            `json:"run_id"`
	File       string            `json:"file"`
	OwnerID    string            `json:"owner_id"`
	ImportType types.ImportType  `json:"import_type"`
	StartedAt  time.Time         `json:"started_at"`
	Completed  bool              `json:"completed"`
	Error      string            `json:"error,omitempty"`
	Summary    *types.RunSummary `json:"summary"`
	Skips      []tally.Skip      `json:"skips"`
	Stats      summaryFileStats  `json:"stats"`
}

type summaryFileStats struct {
	Ledgers              int `json:"ledgers"`
	Vouchers             int `json:"vouchers"`
	ValidationWarnings   int `json:"validation_warnings"`
	BalancesRecalculated int `json:"balances_recalculated"`
}

// writeOutputs writes the JSON summary and the report as enabled.
func (im *Importer) writeOutputs(result *Result, outcome Outcome, started time.Time) error {
	stem := strings.TrimSuffix(filepath.Base(result.FilePath), filepath.Ext(result.FilePath))
	params := map[string]string{"original": stem, "run": result.RunID}

	if im.opts.WriteSummary {
		doc := summaryFile{
			RunID:      result.RunID,
			File:       filepath.Base(result.FilePath),
			OwnerID:    im.opts.OwnerID,
			ImportType: im.opts.ImportType,
			StartedAt:  started.UTC(),
			Completed:  result.Error == nil,
			Summary:    result.Summary,
			Skips:      outcome.Extraction.Skips,
			Stats: summaryFileStats{
				Ledgers:              result.Stats.LedgersSeen,
				Vouchers:             result.Stats.VouchersSeen,
				ValidationWarnings:   result.Stats.ValidationWarnings,
				BalancesRecalculated: result.Stats.BalancesRecalculated,
			},
		}
		if result.Error != nil {
			doc.Error = result.Error.Error()
		}
		if doc.Skips == nil {
			doc.Skips = []tally.Skip{}
		}

		path := im.files.OutputPath(utils.GenerateOutputFileName("{original}_{run}", params, ".json"))
		if err := utils.WriteJSON(path, doc); err != nil {
			return err
		}
		result.SummaryFile = path

		if outcome.Validation != nil && len(outcome.Validation.Errors) > 0 {
			path := im.files.OutputPath(utils.GenerateOutputFileName("{original}_{run}_findings", params, ".txt"))
			if err := validation.WriteErrorLog(outcome.Validation.Errors, path); err != nil {
				return err
			}
			result.FindingsFile = path
		}
	}

	if im.opts.WriteReport {
		path := im.files.OutputPath(utils.GenerateOutputFileName("{original}_{run}", params, ".xlsx"))
		err := report.Write(path, report.Data{
			RunID:       result.RunID,
			File:        filepath.Base(result.FilePath),
			OwnerID:     im.opts.OwnerID,
			ImportType:  im.opts.ImportType,
			GeneratedAt: im.now(),
			Completed:   result.Error == nil,
			Summary:     result.Summary,
			Invoices:    outcome.Extraction.Invoices,
			Skips:       outcome.Extraction.Skips,
		})
		if err != nil {
			return err
		}
		result.ReportFile = path
	}

	return nil
}

// statsFor derives the statistics of an outcome.
func statsFor(outcome Outcome) ProcessingStats {
	stats := ProcessingStats{
		LedgersSeen:       outcome.Extraction.Ledgers,
		VouchersSeen:      outcome.Extraction.Vouchers,
		CustomerFragments: len(outcome.Extraction.Customers),
		InvoiceFragments:  len(outcome.Extraction.Invoices),
	}
	if outcome.Validation != nil {
		stats.ValidationErrors = outcome.Validation.ErrorCount
		stats.ValidationWarnings = outcome.Validation.WarningCount
	}
	if outcome.Summary != nil {
		stats.BalancesRecalculated = len(outcome.Summary.TouchedCustomerIDs)
	}
	return stats
}
