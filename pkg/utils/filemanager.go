// =============================================================================
// Tally Import - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the importer, including:
//   - Export discovery in the input directory
//   - Archival of imported exports
//   - Run summary files (JSON) and error logs
//   - Output file naming
//
// ARCHIVAL STRATEGY:
//   - Exports are moved to input_archive after a run completes
//   - Exports whose run failed stay in the input directory so they are picked
//     up again by the next run
//   - Summaries, reports and error logs are written to the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/tally-import/internal/types"
)

// ExportExtension is the extension of Tally XML exports.
const ExportExtension = ".xml"

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the importer.
type FileManager struct {
	// InputDir is the directory where Tally exports are placed.
	InputDir string

	// OutputDir is the directory where summaries, reports and logs are written.
	OutputDir string

	// InputArchiveDir is the directory for imported exports.
	InputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: input_archive/2024/01/15/daybook.xml
	UseTimestampSubdirs bool

	// ArchiveOnSuccess determines whether exports are archived after a
	// successful run.
	ArchiveOnSuccess bool

	// now is replaced in tests.
	now func() time.Time
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir, inputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:            inputDir,
		OutputDir:           outputDir,
		InputArchiveDir:     inputArchiveDir,
		UseTimestampSubdirs: false,
		ArchiveOnSuccess:    true,
		now:                 time.Now,
	}
}

func (fm *FileManager) clock() time.Time {
	if fm.now == nil {
		return time.Now()
	}
	return fm.now()
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates all required directories if they don't exist.
//
// RETURNS:
//   - An error if any directory cannot be created.
func (fm *FileManager) EnsureDirectories() error {
	dirs := []string{
		fm.InputDir,
		fm.OutputDir,
		fm.InputArchiveDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles lists the exports waiting in the input directory.
//
// PARAMETERS:
//   - extension: The extension to match, compared case-insensitively so that
//     DAYBOOK.XML from a Windows share is found. Defaults to ".xml".
//
// RETURNS:
//   - The file paths, sorted by name so runs are processed in a stable order.
//   - An error if the directory cannot be read.
func (fm *FileManager) DiscoverInputFiles(extension string) ([]string, error) {
	if extension == "" {
		extension = ExportExtension
	}

	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var result []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), extension) {
			result = append(result, filepath.Join(fm.InputDir, entry.Name()))
		}
	}
	sort.Strings(result)

	return result, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an imported export to the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file. When archiving is disabled this is
//     filePath itself.
//   - An error if archival fails.
//
// An export with the same name already in the archive is not overwritten;
// the new copy gets a timestamp suffix.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	// Determine the archive path.
	archivePath := fm.getArchivePath(fm.InputArchiveDir, filePath)

	// Ensure the archive directory exists.
	archiveDir := filepath.Dir(archivePath)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	// Move the file.
	if err := os.Rename(filePath, archivePath); err != nil {
		// If rename fails (e.g., cross-device), try copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := filepath.Base(filePath)
	now := fm.clock()

	dir := archiveDir
	if fm.UseTimestampSubdirs {
		// Create date-based subdirectory structure.
		dir = filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
		)
	}

	path := filepath.Join(dir, fileName)
	if FileExists(path) {
		ext := filepath.Ext(fileName)
		stem := strings.TrimSuffix(fileName, ext)
		path = filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, now.Format("20060102_150405"), ext))
	}
	return path
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates a unique output file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {time}      - Current time (HHMMSS)
//     {<key>}     - Any key of params
//   - params: A map of placeholder values.
//   - extension: Appended when the result does not already end with it.
//
// RETURNS:
//   - The generated file name.
//
// EXAMPLE:
//
//	format: "{original}_{timestamp}_summary"
//	params: {"original": "daybook"}
//	output: "daybook_20240115_143022_summary.json"
func GenerateOutputFileName(format string, params map[string]string, extension string) string {
	now := time.Now()

	// Build replacements.
	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}

	// Add custom params.
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	// Apply replacements.
	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if extension != "" && !strings.HasSuffix(strings.ToLower(result), strings.ToLower(extension)) {
		result += extension
	}

	return result
}

// OutputPath joins a generated name to the output directory.
func (fm *FileManager) OutputPath(name string) string {
	return filepath.Join(fm.OutputDir, name)
}

// =============================================================================
// RUN SUMMARY FILES
// =============================================================================

// WriteJSON writes v, indented, to path.
//
// PARAMETERS:
//   - path: The destination file. Its directory must exist.
//   - v: Any JSON-encodable value, typically a run summary.
//
// RETURNS:
//   - An error if encoding or writing fails.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single error log entry.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	// Stage is the pipeline step or storage operation that failed.
	Stage string
	RunID string
}

// WriteErrorLog writes error entries to a log file.
//
// PARAMETERS:
//   - entries: The error entries to write.
//   - outputDir: The directory to write the log file.
//
// RETURNS:
//   - The path to the error log file, or "" when there was nothing to write.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	// Generate log file name.
	timestamp := time.Now().Format("20060102_150405")
	logFileName := fmt.Sprintf("error_log_%s.txt", timestamp)
	logPath := filepath.Join(outputDir, logFileName)

	// Create the file.
	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	// Write header.
	fmt.Fprintf(writer, "Tally Import - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	// Write each entry.
	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:      %s\n"+
			"  File:           %s\n"+
			"  Error Type:     %s\n"+
			"  Message:        %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.ErrorType,
			entry.ErrorMessage)

		if entry.Stage != "" {
			fmt.Fprintf(writer, "  Stage:          %s\n", entry.Stage)
		}
		if entry.RunID != "" {
			fmt.Fprintf(writer, "  Run ID:         %s\n", entry.RunID)
		}

		writer.WriteString("\n")
	}

	// Write footer.
	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a batch of imports.
type ProcessingSummary struct {
	StartTime          time.Time
	EndTime            time.Time
	TotalFiles         int
	PendingFiles       int
	SuccessfulFiles    int
	FailedFiles        int
	Customers          types.Counts
	Invoices           types.Counts
	ValidationWarnings int
	ProcessedFiles     []ProcessedFileInfo
	FailedFilesList    []FailedFileInfo
}

// ProcessedFileInfo contains information about a successfully imported file.
type ProcessedFileInfo struct {
	InputFile   string
	SummaryFile string
	ArchivePath string
	Customers   types.Counts
	Invoices    types.Counts
	ProcessTime time.Duration
}

// FailedFileInfo contains information about a failed file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
	ErrorType    string
}

// Add folds one file's counts into the batch totals.
func (s *ProcessingSummary) Add(info ProcessedFileInfo) {
	s.SuccessfulFiles++
	s.Customers = addCounts(s.Customers, info.Customers)
	s.Invoices = addCounts(s.Invoices, info.Invoices)
	s.ProcessedFiles = append(s.ProcessedFiles, info)
}

// Fail records a file that did not complete.
func (s *ProcessingSummary) Fail(info FailedFileInfo) {
	s.FailedFiles++
	s.FailedFilesList = append(s.FailedFilesList, info)
}

func addCounts(a, b types.Counts) types.Counts {
	return types.Counts{
		Created: a.Created + b.Created,
		Updated: a.Updated + b.Updated,
		Skipped: a.Skipped + b.Skipped,
	}
}

// WriteSummaryLog writes a processing summary to a log file.
//
// PARAMETERS:
//   - summary: The processing summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	// Generate summary file name.
	timestamp := time.Now().Format("20060102_150405")
	summaryFileName := fmt.Sprintf("processing_summary_%s.txt", timestamp)
	summaryPath := filepath.Join(outputDir, summaryFileName)

	// Create the file.
	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	// Write header.
	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Fprintf(writer, "Tally Import - Processing Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Total Files:         %d\n"+
		"  Successful:          %d\n"+
		"  Failed:              %d\n"+
		"  Not Attempted:       %d\n"+
		"  Customers:           %d created, %d updated, %d skipped\n"+
		"  Invoices:            %d created, %d updated, %d skipped\n"+
		"  Validation Warnings: %d\n\n",
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.FailedFiles,
		summary.PendingFiles,
		summary.Customers.Created, summary.Customers.Updated, summary.Customers.Skipped,
		summary.Invoices.Created, summary.Invoices.Updated, summary.Invoices.Skipped,
		summary.ValidationWarnings)

	// Write successful files.
	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Successful Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			if pf.SummaryFile != "" {
				fmt.Fprintf(writer, "  Summary:      %s\n", pf.SummaryFile)
			}
			fmt.Fprintf(writer, "  Customers:    %d created, %d updated, %d skipped\n",
				pf.Customers.Created, pf.Customers.Updated, pf.Customers.Skipped)
			fmt.Fprintf(writer, "  Invoices:     %d created, %d updated, %d skipped\n",
				pf.Invoices.Created, pf.Invoices.Updated, pf.Invoices.Skipped)
			fmt.Fprintf(writer, "  Process Time: %s\n\n", pf.ProcessTime.String())
		}
	}

	// Write failed files.
	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	// Write footer.
	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
