package tally

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/tally-import/internal/types"
)

// SkipReason explains why a ledger or voucher was not imported.
type SkipReason string

const (
	SkipMissingName      SkipReason = "missing-name"
	SkipNotCustomer      SkipReason = "not-a-customer"
	SkipCancelled        SkipReason = "cancelled"
	SkipNotSales         SkipReason = "not-sales"
	SkipMissingParty     SkipReason = "missing-party"
	SkipNonPositiveTotal SkipReason = "non-positive-total"

	// SkipInvalidField marks a fragment rejected by validation before it
	// reached storage.
	SkipInvalidField SkipReason = "invalid-field"
)

// debtorGroups are parent groups whose ledgers are trade receivables.
var debtorGroups = []string{"sundry debtors", "trade debtors"}

// ClassifyLedger decides whether a LEDGER node is a customer and, if so,
// extracts its customer fragment.
//
// A ledger is a customer when it sits under a debtors group, has bill-wise
// tracking on, or carries any contact information. Everything else (expense,
// tax and bank ledgers) is skipped.
func ClassifyLedger(node any) (types.CustomerFragment, SkipReason, bool) {
	name := ledgerName(node)
	if name == "" {
		return types.CustomerFragment{}, SkipMissingName, false
	}

	parent := strings.ToLower(Text(field(node, "PARENT")))
	isCustomerLedger := isYes(node, "ISBILLWISEON")
	for _, g := range debtorGroups {
		if strings.Contains(parent, g) {
			isCustomerLedger = true
		}
	}

	email := Text(field(node, "EMAIL"))
	phone := firstText(node, "PHONE", "MOBILE", "LEDGERPHONE", "LEDGERMOBILE")
	gst := firstText(node, "GSTIN", "GSTREGISTRATIONNUMBER")
	hasContactInfo := email != "" || phone != "" || gst != ""

	if !isCustomerLedger && !hasContactInfo {
		return types.CustomerFragment{}, SkipNotCustomer, false
	}

	frag := types.CustomerFragment{
		Name:         name,
		Email:        email,
		Phone:        phone,
		GST:          gst,
		Address:      ledgerAddress(node),
		CreditLimit:  decimal.Zero,
		PaymentTerms: types.DefaultPaymentTerms,
		RiskScore:    types.RiskLow,
		Outstanding:  decimal.Zero,
	}
	if limit, ok := Number(field(node, "CREDITLIMIT")); ok && !limit.IsZero() {
		frag.CreditLimit = limit.Abs()
		frag.CreditLimitSet = true
	}
	if terms, ok := Number(field(node, "PAYMENTTERMS")); ok {
		if days := int(terms.IntPart()); days > 0 {
			frag.PaymentTerms = days
			frag.PaymentTermsSet = true
		}
	}
	return frag, "", true
}

// ledgerName reads NAME, falling back to the NAME attribute and the first
// NAME.LIST entry used by master exports.
func ledgerName(node any) string {
	if name := Text(field(node, "NAME")); name != "" {
		return name
	}
	if name := Text(field(node, AttrPrefix+"NAME")); name != "" {
		return name
	}
	for _, list := range Each(field(node, "NAME.LIST")) {
		for _, n := range Each(field(list, "NAME")) {
			if name := Text(n); name != "" {
				return name
			}
		}
	}
	return ""
}

// ledgerAddress joins every non-empty address line with ", ".
func ledgerAddress(node any) string {
	var lines []string
	for _, entry := range Each(field(node, "ADDRESS.LIST")) {
		if addr := field(entry, "ADDRESS"); addr != nil {
			for _, line := range Each(addr) {
				if s := Text(line); s != "" {
					lines = append(lines, s)
				}
			}
			continue
		}
		if s := Text(entry); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, ", ")
}
