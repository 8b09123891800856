// =============================================================================
// Tally Import - Extraction
// =============================================================================
//
// Extract is the single entry point from a parsed document to the fragments
// the reconciliation engine consumes. It:
//   1. Collects LEDGER nodes (customer pass) and VOUCHER nodes (invoice pass)
//   2. Classifies every node
//   3. Records a Skip for every node that was rejected
//
// Nothing in this file touches storage.
//
// =============================================================================

package tally

import (
	"github.com/ginjaninja78/tally-import/internal/types"
)

// Tags of the nodes the classifiers consume.
const (
	LedgerTag  = "LEDGER"
	VoucherTag = "VOUCHER"
)

// Kinds of skipped records.
const (
	KindLedger  = "ledger"
	KindVoucher = "voucher"
)

// Skip describes a node that was not turned into a fragment.
type Skip struct {
	Kind     string     `json:"kind"`
	Position int        `json:"position"`
	Reason   SkipReason `json:"reason"`
	// Ref is the best available identifier (ledger name, voucher number).
	Ref string `json:"ref,omitempty"`
}

// Extraction is everything pulled out of one document.
type Extraction struct {
	Customers []types.CustomerFragment
	Invoices  []types.InvoiceFragment
	Skips     []Skip

	// Ledgers and Vouchers count the nodes considered by each pass.
	Ledgers  int
	Vouchers int
}

// SkippedCustomers returns the number of ledgers rejected by classification.
func (e Extraction) SkippedCustomers() int {
	return e.countSkips(KindLedger)
}

// SkippedInvoices returns the number of vouchers rejected by classification.
func (e Extraction) SkippedInvoices() int {
	return e.countSkips(KindVoucher)
}

func (e Extraction) countSkips(kind string) int {
	n := 0
	for _, s := range e.Skips {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Extract classifies the ledgers and vouchers of root for the passes enabled
// by importType. today (YYYY-MM-DD) is the fallback invoice date.
func Extract(root any, importType types.ImportType, today string) Extraction {
	var ext Extraction

	if importType.IncludesCustomers() {
		ledgers := Collect(root, LedgerTag)
		ext.Ledgers = len(ledgers)
		for i, node := range ledgers {
			frag, reason, ok := ClassifyLedger(node)
			if !ok {
				ext.Skips = append(ext.Skips, Skip{
					Kind:     KindLedger,
					Position: i,
					Reason:   reason,
					Ref:      ledgerName(node),
				})
				continue
			}
			frag.Position = i
			ext.Customers = append(ext.Customers, frag)
		}
	}

	if importType.IncludesInvoices() {
		vouchers := Collect(root, VoucherTag)
		ext.Vouchers = len(vouchers)
		for i, node := range vouchers {
			frag, reason, ok := ClassifyVoucher(node, i, today)
			if !ok {
				ext.Skips = append(ext.Skips, Skip{
					Kind:     KindVoucher,
					Position: i,
					Reason:   reason,
					Ref:      firstText(node, "VOUCHERNUMBER", "REFERENCE"),
				})
				continue
			}
			ext.Invoices = append(ext.Invoices, frag)
		}
	}

	return ext
}
