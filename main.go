// =============================================================================
// Tally Import - Main Entry Point
// =============================================================================
//
// This is the main entry point for the Tally Import CLI application. It
// delegates command execution to the cmd package.
//
// USAGE:
//   tally-import import     - Import Tally XML exports from the input directory
//   tally-import watch      - Import new exports on a schedule
//   tally-import migrate    - Apply or roll back the database schema
//   tally-import version    - Display the application version
//
// ARCHITECTURE:
//   - cmd/               : CLI command definitions (Cobra)
//   - internal/tally     : XML loading, field coercion, ledger and voucher classification
//   - internal/reconcile : Merging fragments into stored customers and invoices
//   - internal/importer  : The per-file pipeline
//   - internal/storage   : The Store contract with memory and postgres adapters
//   - pkg/utils          : File discovery, archival and summaries
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/tally-import/cmd"
)

// main is the entry point of the application.
func main() {
	cmd.Execute()
}
