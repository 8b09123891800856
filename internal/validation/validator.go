// =============================================================================
// Tally Import - Validation Engine
// =============================================================================
//
// This module checks extracted fragments before they reach storage.
//
// VALIDATION STRATEGY:
//   Validation is performed at two levels:
//   1. Field-level: lengths and numeric ranges against the storage schema,
//      GSTIN and email shape, presence of digits in phone numbers
//   2. Record-level: cross-field checks such as a due date before the
//      invoice date
//
// SEVERITY:
//   - "error"   : the record cannot be stored as is (for example a value
//                 longer than its column). The fragment is dropped and
//                 counted as skipped with reason "invalid-field".
//   - "warning" : the record is stored; the message is added to the run
//                 summary's error list for the operator to review.
//
// Errors are collected, not thrown: one bad record never stops a run.
//
// =============================================================================

package validation

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/tally-import/internal/tally"
	"github.com/ginjaninja78/tally-import/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Column limits of the customers and invoices tables.
const (
	MaxNameLength          = 255
	MaxEmailLength         = 255
	MaxPhoneLength         = 50
	MaxGSTLength           = 50
	MaxInvoiceNumberLength = 100
)

// maxMoney bounds NUMERIC(15, 2): 13 integer digits.
var maxMoney = decimal.New(1, 13)

var (
	// gstinPattern is the 15 character Indian GST identification number:
	// state code, PAN, entity number, 'Z', checksum.
	gstinPattern = regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation finding.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// Kind is tally.KindLedger or tally.KindVoucher.
	Kind string

	// Ref identifies the record (customer name or invoice number).
	Ref string

	// Field is the name of the field that failed validation.
	Field string

	// Value is the actual value that failed validation.
	Value string

	// Rule is the validation rule that was violated.
	Rule string

	// Message is a human-readable error message.
	Message string

	// Position is the record's index in the document.
	Position int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s %q, field '%s': %s",
		strings.ToUpper(e.Severity),
		e.Kind,
		e.Ref,
		e.Field,
		e.Message,
	)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// Errors contains all findings, including warnings.
	Errors []*ValidationError

	// ErrorCount is the number of records dropped.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// RecordsValidated is the total number of fragments checked.
	RecordsValidated int
}

// Warnings returns the warning messages in document order.
func (r *ValidationResult) Warnings() []string {
	var out []string
	for _, e := range r.Errors {
		if e.Severity == SeverityWarning {
			out = append(out, e.Error())
		}
	}
	return out
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator checks fragments.
type Validator struct {
	options ValidationOptions
}

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// TreatWarningsAsErrors drops records that only have warnings.
	// Default: false
	TreatWarningsAsErrors bool

	// SkipGSTINCheck disables the GSTIN shape check for exports that keep
	// non-Indian tax identifiers in the GSTIN field.
	// Default: false
	SkipGSTINCheck bool
}

// DefaultValidationOptions returns the default validation options.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{}
}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{options: DefaultValidationOptions()}
}

// NewValidatorWithOptions creates a new Validator with custom options.
func NewValidatorWithOptions(options ValidationOptions) *Validator {
	return &Validator{options: options}
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// Apply validates every fragment of ext and returns a copy in which records
// with errors are removed and recorded as skips.
//
// PARAMETERS:
//   - ext: The extraction to validate. It is not modified.
//
// RETURNS:
//   - The filtered extraction.
//   - The validation result with every finding.
func (v *Validator) Apply(ext tally.Extraction) (tally.Extraction, *ValidationResult) {
	result := &ValidationResult{
		Errors:           make([]*ValidationError, 0),
		RecordsValidated: len(ext.Customers) + len(ext.Invoices),
	}

	out := ext
	out.Customers = make([]types.CustomerFragment, 0, len(ext.Customers))
	out.Invoices = make([]types.InvoiceFragment, 0, len(ext.Invoices))
	out.Skips = append([]tally.Skip(nil), ext.Skips...)

	for _, frag := range ext.Customers {
		findings := v.ValidateCustomer(frag)
		if v.record(result, findings) {
			out.Skips = append(out.Skips, tally.Skip{
				Kind:     tally.KindLedger,
				Position: frag.Position,
				Reason:   tally.SkipInvalidField,
				Ref:      frag.Name,
			})
			continue
		}
		out.Customers = append(out.Customers, frag)
	}

	for _, frag := range ext.Invoices {
		findings := v.ValidateInvoice(frag)
		if v.record(result, findings) {
			out.Skips = append(out.Skips, tally.Skip{
				Kind:     tally.KindVoucher,
				Position: frag.Position,
				Reason:   tally.SkipInvalidField,
				Ref:      frag.InvoiceNumber,
			})
			continue
		}
		out.Invoices = append(out.Invoices, frag)
	}

	return out, result
}

// record adds findings to result and reports whether the record is dropped.
func (v *Validator) record(result *ValidationResult, findings []*ValidationError) bool {
	drop := false
	for _, f := range findings {
		if v.options.TreatWarningsAsErrors {
			f.Severity = SeverityError
		}
		result.Errors = append(result.Errors, f)
		if f.Severity == SeverityError {
			drop = true
		} else {
			result.WarningCount++
		}
	}
	if drop {
		result.ErrorCount++
	}
	return drop
}

// ValidateCustomer checks one customer fragment.
func (v *Validator) ValidateCustomer(frag types.CustomerFragment) []*ValidationError {
	var errs []*ValidationError
	add := func(severity, field, value, rule, message string) {
		errs = append(errs, &ValidationError{
			Severity: severity,
			Kind:     tally.KindLedger,
			Ref:      frag.Name,
			Field:    field,
			Value:    value,
			Rule:     rule,
			Message:  message,
			Position: frag.Position,
		})
	}

	// =========================================================================
	// LENGTH VALIDATION
	// =========================================================================

	for _, c := range []struct {
		field string
		value string
		max   int
	}{
		{"name", frag.Name, MaxNameLength},
		{"email", frag.Email, MaxEmailLength},
		{"phone", frag.Phone, MaxPhoneLength},
		{"gst", frag.GST, MaxGSTLength},
	} {
		if msg := validateLength(c.value, c.max); msg != "" {
			add(SeverityError, c.field, c.value, "max_length", msg)
		}
	}

	// =========================================================================
	// RANGE VALIDATION
	// =========================================================================

	if msg := validateMoney(frag.CreditLimit); msg != "" {
		add(SeverityError, "credit_limit", frag.CreditLimit.String(), "range", msg)
	}
	if msg := validateMoney(frag.Outstanding); msg != "" {
		add(SeverityError, "outstanding", frag.Outstanding.String(), "range", msg)
	}
	if frag.PaymentTerms > math.MaxInt32 || frag.PaymentTerms < math.MinInt32 {
		add(SeverityError, "payment_terms", fmt.Sprint(frag.PaymentTerms), "range",
			fmt.Sprintf("Value %d does not fit a 32-bit integer", frag.PaymentTerms))
	}

	// =========================================================================
	// FORMAT VALIDATION
	// =========================================================================

	if frag.Email != "" && !emailPattern.MatchString(frag.Email) {
		add(SeverityWarning, "email", frag.Email, "format", fmt.Sprintf("Value '%s' is not a valid email address", frag.Email))
	}
	if frag.GST != "" && !v.options.SkipGSTINCheck && !gstinPattern.MatchString(strings.ToUpper(frag.GST)) {
		add(SeverityWarning, "gst", frag.GST, "format", fmt.Sprintf("Value '%s' is not a valid GSTIN", frag.GST))
	}
	if frag.Phone != "" && !containsDigit(frag.Phone) {
		add(SeverityWarning, "phone", frag.Phone, "format", fmt.Sprintf("Value '%s' contains no digits", frag.Phone))
	}

	return errs
}

// ValidateInvoice checks one invoice fragment.
func (v *Validator) ValidateInvoice(frag types.InvoiceFragment) []*ValidationError {
	var errs []*ValidationError
	add := func(severity, field, value, rule, message string) {
		errs = append(errs, &ValidationError{
			Severity: severity,
			Kind:     tally.KindVoucher,
			Ref:      frag.InvoiceNumber,
			Field:    field,
			Value:    value,
			Rule:     rule,
			Message:  message,
			Position: frag.Position,
		})
	}

	if msg := validateLength(frag.InvoiceNumber, MaxInvoiceNumberLength); msg != "" {
		add(SeverityError, "invoice_number", frag.InvoiceNumber, "max_length", msg)
	}
	if msg := validateLength(frag.CustomerName, MaxNameLength); msg != "" {
		add(SeverityError, "customer_name", frag.CustomerName, "max_length", msg)
	}
	if msg := validateMoney(frag.Amount); msg != "" {
		add(SeverityError, "amount", frag.Amount.String(), "range", msg)
	}

	// Dates are YYYY-MM-DD, so string order is date order.
	if frag.DueDate != "" && frag.InvoiceDate != "" && frag.DueDate < frag.InvoiceDate {
		add(SeverityWarning, "due_date", frag.DueDate, "date_order",
			fmt.Sprintf("Due date %s is before invoice date %s", frag.DueDate, frag.InvoiceDate))
	}

	return errs
}

// =============================================================================
// FIELD VALIDATORS
// =============================================================================

// validateLength checks the length in characters, the unit VARCHAR limits use.
func validateLength(value string, max int) string {
	if n := utf8.RuneCountInString(value); n > max {
		return fmt.Sprintf("Value is %d characters long, the limit is %d", n, max)
	}
	return ""
}

// validateMoney checks that value survives rounding into NUMERIC(15, 2).
func validateMoney(value decimal.Decimal) string {
	if value.Round(2).Abs().GreaterThanOrEqual(maxMoney) {
		return fmt.Sprintf("Value %s exceeds the largest storable amount", value)
	}
	return ""
}

func containsDigit(value string) bool {
	for _, r := range value {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d finding(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes validation errors to a log file.
//
// PARAMETERS:
//   - errors: The validation errors to write.
//   - filePath: The path to the output file.
//
// RETURNS:
//   - An error if writing fails.
func WriteErrorLog(errors []*ValidationError, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create validation log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.WriteString(FormatErrors(errors)); err != nil {
		return fmt.Errorf("failed to write validation log: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write validation log: %w", err)
	}
	return nil
}
