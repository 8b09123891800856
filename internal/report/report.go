// =============================================================================
// Tally Import - XLSX Run Report
// =============================================================================
//
// This module writes an optional workbook describing one import run, for
// operators who review imports in a spreadsheet rather than in JSON.
//
// WORKBOOK STRUCTURE:
//
//   | Sheet    | Contents                                                  |
//   |----------|-----------------------------------------------------------|
//   | Summary  | Run metadata, created/updated/skipped counts, messages    |
//   | Invoices | One row per accepted invoice fragment, in document order  |
//   | Skipped  | One row per ledger or voucher that was not imported       |
//
// The first row of every sheet is a bold header.
//
// =============================================================================

package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/tally-import/internal/tally"
	"github.com/ginjaninja78/tally-import/internal/types"
)

// Sheet names.
const (
	SheetSummary  = "Summary"
	SheetInvoices = "Invoices"
	SheetSkipped  = "Skipped"
)

var (
	invoiceHeader = []interface{}{"Invoice Number", "Customer", "Invoice Date", "Due Date", "Amount", "Line Items", "Amount Source", "Position"}
	skippedHeader = []interface{}{"Kind", "Position", "Reason", "Reference"}
)

// Data is everything the report shows about one run.
type Data struct {
	RunID       string
	File        string
	OwnerID     string
	ImportType  types.ImportType
	GeneratedAt time.Time

	// Completed is false when the run stopped on a storage error; the counts
	// are then partial.
	Completed bool

	Summary  *types.RunSummary
	Invoices []types.InvoiceFragment
	Skips    []tally.Skip
}

// =============================================================================
// MAIN WRITE FUNCTION
// =============================================================================

// Write builds the workbook and saves it to path.
//
// PARAMETERS:
//   - path: The destination .xlsx file.
//   - data: The run to describe. A nil Summary is treated as empty.
//
// RETURNS:
//   - An error if the workbook cannot be built or saved.
func Write(path string, data Data) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	// The default sheet becomes the summary sheet.
	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetInvoices, SheetSkipped} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	if err := writeSummary(f, data, header); err != nil {
		return err
	}
	if err := writeInvoices(f, data.Invoices, header); err != nil {
		return err
	}
	if err := writeSkipped(f, data.Skips, header); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// =============================================================================
// SHEET WRITERS
// =============================================================================

func writeSummary(f *excelize.File, data Data, header int) error {
	summary := data.Summary
	if summary == nil {
		summary = types.NewRunSummary()
	}

	status := "completed"
	if !data.Completed {
		status = "aborted (partial counts)"
	}

	rows := [][]interface{}{
		{"Field", "Value"},
		{"Run ID", data.RunID},
		{"File", data.File},
		{"Owner", data.OwnerID},
		{"Import Type", string(data.ImportType)},
		{"Generated", data.GeneratedAt.Format(time.RFC3339)},
		{"Status", status},
		{},
		{"Entity", "Created", "Updated", "Skipped"},
		{"Customers", summary.Customers.Created, summary.Customers.Updated, summary.Customers.Skipped},
		{"Invoices", summary.Invoices.Created, summary.Invoices.Updated, summary.Invoices.Skipped},
		{"Balances Recalculated", len(summary.TouchedCustomerIDs)},
	}
	if len(summary.Errors) > 0 {
		rows = append(rows, []interface{}{}, []interface{}{"Messages"})
		for _, msg := range summary.Errors {
			rows = append(rows, []interface{}{msg})
		}
	}

	if err := setRows(f, SheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetSummary, 1, 1, header); err != nil {
		return fmt.Errorf("failed to style %s: %w", SheetSummary, err)
	}
	if err := f.SetRowStyle(SheetSummary, 9, 9, header); err != nil {
		return fmt.Errorf("failed to style %s: %w", SheetSummary, err)
	}
	return f.SetColWidth(SheetSummary, "A", "B", 24)
}

func writeInvoices(f *excelize.File, invoices []types.InvoiceFragment, header int) error {
	rows := make([][]interface{}, 0, len(invoices)+1)
	rows = append(rows, invoiceHeader)
	for _, inv := range invoices {
		rows = append(rows, []interface{}{
			inv.InvoiceNumber,
			inv.CustomerName,
			inv.InvoiceDate,
			inv.DueDate,
			inv.Amount.InexactFloat64(),
			len(inv.Items),
			inv.Strategy,
			inv.Position,
		})
	}

	if err := setRows(f, SheetInvoices, rows); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetInvoices, 1, 1, header); err != nil {
		return fmt.Errorf("failed to style %s: %w", SheetInvoices, err)
	}
	return f.SetColWidth(SheetInvoices, "A", "D", 18)
}

func writeSkipped(f *excelize.File, skips []tally.Skip, header int) error {
	rows := make([][]interface{}, 0, len(skips)+1)
	rows = append(rows, skippedHeader)
	for _, s := range skips {
		rows = append(rows, []interface{}{s.Kind, s.Position, string(s.Reason), s.Ref})
	}

	if err := setRows(f, SheetSkipped, rows); err != nil {
		return err
	}
	return f.SetRowStyle(SheetSkipped, 1, 1, header)
}

// setRows writes rows starting at A1. Empty rows are left blank.
func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
