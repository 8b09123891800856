package tally

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/tally-import/internal/types"
)

// ClassifyVoucher decides whether a VOUCHER node is a sales invoice and, if
// so, extracts its invoice fragment.
//
// position is the 0-based index of the voucher among all vouchers of the
// document; it names invoices that carry no number. today is the
// YYYY-MM-DD date used when the voucher date is unreadable.
//
// Rejections are checked in order and the first match is returned:
// cancelled or deleted, not a sales voucher, no party, non-positive total.
func ClassifyVoucher(node any, position int, today string) (types.InvoiceFragment, SkipReason, bool) {
	return classifyVoucher(node, position, today, DefaultStrategies)
}

func classifyVoucher(node any, position int, today string, strategies []AmountStrategy) (types.InvoiceFragment, SkipReason, bool) {
	if isYes(node, "ISCANCELLED") || isYes(node, "ISDELETED") {
		return types.InvoiceFragment{}, SkipCancelled, false
	}

	if !isSalesVoucher(node) {
		return types.InvoiceFragment{}, SkipNotSales, false
	}

	party := firstText(node, "PARTYNAME", "PARTYLEDGERNAME")
	if party == "" {
		return types.InvoiceFragment{}, SkipMissingParty, false
	}

	total := VoucherTotal(node, strategies)
	if !total.Amount.IsPositive() {
		return types.InvoiceFragment{}, SkipNonPositiveTotal, false
	}

	number := firstText(node, "VOUCHERNUMBER", "REFERENCE")
	if number == "" {
		number = SyntheticInvoiceNumber(position)
	}

	invoiceDate := Date(field(node, "DATE"))
	if invoiceDate == "" {
		invoiceDate = today
	}
	dueDate := Date(field(node, "DUEDATE"))
	if dueDate == "" {
		dueDate = invoiceDate
	}

	return types.InvoiceFragment{
		InvoiceNumber: number,
		CustomerName:  party,
		Amount:        total.Amount,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Items:         total.Items,
		Notes:         Text(field(node, "NARRATION")),
		Strategy:      total.Strategy,
		Position:      position,
	}, "", true
}

// SyntheticInvoiceNumber names a voucher that has neither a number nor a
// reference. Numbers are unique within one document but shift if the export
// is re-ordered.
func SyntheticInvoiceNumber(position int) string {
	return fmt.Sprintf("TALLY-%d", position+1)
}

// isSalesVoucher checks the voucher type name (element, then the VCHTYPE
// attribute) for "sales" or "invoice", or an explicit ISINVOICE flag.
func isSalesVoucher(node any) bool {
	voucherType := strings.ToLower(firstText(node, "VOUCHERTYPENAME", "VOUCHERTYPE", AttrPrefix+"VCHTYPE"))
	return strings.Contains(voucherType, "sales") ||
		strings.Contains(voucherType, "invoice") ||
		isYes(node, "ISINVOICE")
}
