// =============================================================================
// Tally Import - Shared Types
// =============================================================================
//
// This package contains the record types shared by the extraction, validation,
// reconciliation and storage packages. Keeping them here avoids import cycles:
//   - tally       produces fragments
//   - validation  inspects fragments
//   - reconcile   merges fragments into records
//   - storage     persists records
//
// =============================================================================

package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IMPORT TYPE
// =============================================================================

// ImportType selects which passes of an import run are executed.
type ImportType string

const (
	ImportCustomers ImportType = "customers"
	ImportInvoices  ImportType = "invoices"
	ImportBoth      ImportType = "both"
)

// ParseImportType normalizes a user supplied selector. An empty value means both.
func ParseImportType(s string) (ImportType, error) {
	switch ImportType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ImportBoth:
		return ImportBoth, nil
	case ImportCustomers:
		return ImportCustomers, nil
	case ImportInvoices:
		return ImportInvoices, nil
	default:
		return "", fmt.Errorf("unknown import type %q (want customers, invoices or both)", s)
	}
}

// IncludesCustomers reports whether the customer-ledger pass runs.
func (t ImportType) IncludesCustomers() bool {
	return t == ImportCustomers || t == ImportBoth
}

// IncludesInvoices reports whether the voucher pass runs.
func (t ImportType) IncludesInvoices() bool {
	return t == ImportInvoices || t == ImportBoth
}

// =============================================================================
// FRAGMENTS
// =============================================================================

// Risk scores assigned to customers.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Invoice statuses.
const (
	StatusPending = "pending"
)

// DefaultPaymentTerms is used when a ledger does not carry usable terms.
const DefaultPaymentTerms = 30

// CustomerFragment is the customer information extracted from one ledger.
type CustomerFragment struct {
	Name         string
	Email        string
	Phone        string
	GST          string
	Address      string
	CreditLimit  decimal.Decimal
	PaymentTerms int
	RiskScore    string
	Outstanding  decimal.Decimal

	// CreditLimitSet and PaymentTermsSet record whether the values came
	// from the ledger rather than from defaults.
	CreditLimitSet  bool
	PaymentTermsSet bool

	// Position is the 0-based index of the ledger in the document.
	Position int
}

// BareCustomer returns the fragment used when an invoice names a party that
// has no customer record yet.
func BareCustomer(name string) CustomerFragment {
	return CustomerFragment{
		Name:         name,
		CreditLimit:  decimal.Zero,
		PaymentTerms: DefaultPaymentTerms,
		RiskScore:    RiskLow,
		Outstanding:  decimal.Zero,
	}
}

// LineItem is one inventory line of an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

// Total returns quantity * rate.
func (li LineItem) Total() decimal.Decimal {
	return li.Quantity.Mul(li.Rate)
}

// InvoiceFragment is the invoice information extracted from one sales voucher.
type InvoiceFragment struct {
	InvoiceNumber string
	CustomerName  string
	Amount        decimal.Decimal
	InvoiceDate   string // YYYY-MM-DD
	DueDate       string // YYYY-MM-DD
	Items         []LineItem
	Notes         string

	// Strategy names the amount strategy that produced Amount.
	Strategy string

	// Position is the 0-based index of the voucher in the document.
	Position int
}

// =============================================================================
// PERSISTED RECORDS
// =============================================================================

// Customer is a persisted customer record.
type Customer struct {
	ID           string
	OwnerID      string
	Name         string
	Email        string
	Phone        string
	GST          string
	Address      string
	CreditLimit  decimal.Decimal
	PaymentTerms int
	RiskScore    string
	Outstanding  decimal.Decimal
}

// Invoice is a persisted invoice record.
type Invoice struct {
	ID            string
	OwnerID       string
	CustomerID    string
	InvoiceNumber string
	CustomerName  string
	Amount        decimal.Decimal
	InvoiceDate   string
	DueDate       string
	Status        string
	PaidAmount    decimal.Decimal
	Items         []LineItem
	Notes         string
}

// CustomerUpdate is a partial customer update. Nil fields are left untouched.
type CustomerUpdate struct {
	Name         *string
	Email        *string
	Phone        *string
	GST          *string
	Address      *string
	CreditLimit  *decimal.Decimal
	PaymentTerms *int
}

// IsEmpty reports whether the update would change nothing.
func (u CustomerUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.GST == nil &&
		u.Address == nil && u.CreditLimit == nil && u.PaymentTerms == nil
}

// Apply copies the set fields of u onto c.
func (u CustomerUpdate) Apply(c *Customer) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.GST != nil {
		c.GST = *u.GST
	}
	if u.Address != nil {
		c.Address = *u.Address
	}
	if u.CreditLimit != nil {
		c.CreditLimit = *u.CreditLimit
	}
	if u.PaymentTerms != nil {
		c.PaymentTerms = *u.PaymentTerms
	}
}

// InvoiceUpdate is the set of invoice fields refreshed by a re-import.
type InvoiceUpdate struct {
	CustomerID   string
	CustomerName string
	Amount       decimal.Decimal
	DueDate      string
	Items        []LineItem
	Notes        string
}

// Apply copies the update onto inv.
func (u InvoiceUpdate) Apply(inv *Invoice) {
	inv.CustomerID = u.CustomerID
	inv.CustomerName = u.CustomerName
	inv.Amount = u.Amount
	inv.DueDate = u.DueDate
	inv.Items = u.Items
	inv.Notes = u.Notes
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// Counts holds created/updated/skipped counters for one entity kind.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// RunSummary is the outcome of one import run.
type RunSummary struct {
	Customers Counts   `json:"customers"`
	Invoices  Counts   `json:"invoices"`
	Errors    []string `json:"errors"`

	// TouchedCustomerIDs lists, sorted, the customers whose outstanding
	// balance was recomputed.
	TouchedCustomerIDs []string `json:"-"`
}

// NewRunSummary returns a summary with a non-nil error list so it serializes as [].
func NewRunSummary() *RunSummary {
	return &RunSummary{Errors: []string{}}
}

// AddError appends a caller supplied message.
func (s *RunSummary) AddError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// SetTouched stores the touched set in sorted order.
func (s *RunSummary) SetTouched(ids map[string]struct{}) {
	s.TouchedCustomerIDs = make([]string, 0, len(ids))
	for id := range ids {
		s.TouchedCustomerIDs = append(s.TouchedCustomerIDs, id)
	}
	sort.Strings(s.TouchedCustomerIDs)
}

// NameKey lower-cases a display name for case-insensitive matching.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
