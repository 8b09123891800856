package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/tally-import/internal/tally"
	"github.com/ginjaninja78/tally-import/internal/types"
)

func customer(name string) types.CustomerFragment {
	return types.BareCustomer(name)
}

func invoice(number string, position int) types.InvoiceFragment {
	return types.InvoiceFragment{
		InvoiceNumber: number,
		CustomerName:  "Acme",
		Amount:        decimal.NewFromInt(100),
		InvoiceDate:   "2024-01-15",
		DueDate:       "2024-02-15",
		Position:      position,
	}
}

func TestValidateCustomer(t *testing.T) {
	v := NewValidator()

	good := customer("Acme")
	good.Email = "accounts@acme.example"
	good.GST = "27aapfu0939f1zv"
	good.Phone = "+91 98765 43210"
	assert.Empty(t, v.ValidateCustomer(good))

	bad := customer("Acme")
	bad.Email = "accounts at acme"
	bad.GST = "GST-PENDING"
	bad.Phone = "n/a"
	bad.Position = 3
	findings := v.ValidateCustomer(bad)
	require.Len(t, findings, 3)
	for _, f := range findings {
		assert.Equal(t, SeverityWarning, f.Severity)
		assert.Equal(t, "format", f.Rule)
		assert.Equal(t, 3, f.Position)
	}

	long := customer(strings.Repeat("x", MaxNameLength+1))
	findings = v.ValidateCustomer(long)
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityError, findings[0].Severity)
	assert.Equal(t, "name", findings[0].Field)

	// Limits count characters, not bytes.
	assert.Empty(t, v.ValidateCustomer(customer(strings.Repeat("é", MaxNameLength))))
}

func TestValidateCustomer_SkipGSTIN(t *testing.T) {
	frag := customer("Acme")
	frag.GST = "DE123456789"

	assert.Len(t, NewValidator().ValidateCustomer(frag), 1)
	assert.Empty(t, NewValidatorWithOptions(ValidationOptions{SkipGSTINCheck: true}).ValidateCustomer(frag))
}

func TestValidateRanges(t *testing.T) {
	withCustomer := func(f func(*types.CustomerFragment)) []*ValidationError {
		frag := customer("Acme")
		f(&frag)
		return NewValidator().ValidateCustomer(frag)
	}
	withInvoice := func(f func(*types.InvoiceFragment)) []*ValidationError {
		frag := invoice("INV-1", 0)
		f(&frag)
		return NewValidator().ValidateInvoice(frag)
	}

	tests := []struct {
		name     string
		findings []*ValidationError
		field    string
	}{
		{
			name:     "largest credit limit fits",
			findings: withCustomer(func(f *types.CustomerFragment) { f.CreditLimit = decimal.RequireFromString("9999999999999.99") }),
		},
		{
			name:     "credit limit of 10^13",
			findings: withCustomer(func(f *types.CustomerFragment) { f.CreditLimit = decimal.New(1, 13) }),
			field:    "credit_limit",
		},
		{
			name:     "credit limit that rounds up to 10^13",
			findings: withCustomer(func(f *types.CustomerFragment) { f.CreditLimit = decimal.RequireFromString("9999999999999.995") }),
			field:    "credit_limit",
		},
		{
			name:     "huge credit limit",
			findings: withCustomer(func(f *types.CustomerFragment) { f.CreditLimit = decimal.RequireFromString("99999999999999999") }),
			field:    "credit_limit",
		},
		{
			name:     "negative outstanding beyond the column",
			findings: withCustomer(func(f *types.CustomerFragment) { f.Outstanding = decimal.RequireFromString("-10000000000000") }),
			field:    "outstanding",
		},
		{
			name:     "largest payment terms fit",
			findings: withCustomer(func(f *types.CustomerFragment) { f.PaymentTerms = 2147483647 }),
		},
		{
			name:     "payment terms beyond int32",
			findings: withCustomer(func(f *types.CustomerFragment) { f.PaymentTerms = 3000000000 }),
			field:    "payment_terms",
		},
		{
			name:     "huge invoice amount",
			findings: withInvoice(func(f *types.InvoiceFragment) { f.Amount = decimal.RequireFromString("100000000000000.00") }),
			field:    "amount",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.field == "" {
				assert.Empty(t, tt.findings)
				return
			}
			require.Len(t, tt.findings, 1)
			assert.Equal(t, SeverityError, tt.findings[0].Severity)
			assert.Equal(t, "range", tt.findings[0].Rule)
			assert.Equal(t, tt.field, tt.findings[0].Field)
		})
	}
}

func TestApply_OversizedNumbersBecomeSkips(t *testing.T) {
	root, err := tally.Parse(`<ENVELOPE>
<LEDGER NAME="Acme"><PARENT>Sundry Debtors</PARENT><CREDITLIMIT>99999999999999999</CREDITLIMIT></LEDGER>
<LEDGER NAME="Bharat"><PARENT>Sundry Debtors</PARENT><PAYMENTTERMS>3000000000</PAYMENTTERMS></LEDGER>
<LEDGER NAME="Chola"><PARENT>Sundry Debtors</PARENT><CREDITLIMIT>50000</CREDITLIMIT></LEDGER>
<VOUCHER VCHTYPE="Sales"><VOUCHERNUMBER>V1</VOUCHERNUMBER><PARTYNAME>Chola</PARTYNAME>
  <LEDGERENTRIES.LIST><AMOUNT>100000000000000.00</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>
<VOUCHER VCHTYPE="Sales"><VOUCHERNUMBER>V2</VOUCHERNUMBER><PARTYNAME>Chola</PARTYNAME>
  <LEDGERENTRIES.LIST><AMOUNT>1500.00</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>
</ENVELOPE>`)
	require.NoError(t, err)

	out, result := NewValidator().Apply(tally.Extract(root, types.ImportBoth, "2024-06-30"))

	require.Len(t, out.Customers, 1)
	assert.Equal(t, "Chola", out.Customers[0].Name)
	require.Len(t, out.Invoices, 1)
	assert.Equal(t, "V2", out.Invoices[0].InvoiceNumber)
	assert.Equal(t, 3, result.ErrorCount)

	assert.Equal(t, []tally.Skip{
		{Kind: tally.KindLedger, Position: 0, Reason: tally.SkipInvalidField, Ref: "Acme"},
		{Kind: tally.KindLedger, Position: 1, Reason: tally.SkipInvalidField, Ref: "Bharat"},
		{Kind: tally.KindVoucher, Position: 0, Reason: tally.SkipInvalidField, Ref: "V1"},
	}, out.Skips)
}

func TestApply_LedgerSkipsUseDocumentPosition(t *testing.T) {
	root, err := tally.Parse(`<ENVELOPE>
<LEDGER NAME="Rent"><PARENT>Indirect Expenses</PARENT></LEDGER>
<LEDGER NAME="Acme"><PARENT>Sundry Debtors</PARENT><LEDGERPHONE>` + strings.Repeat("9", 60) + `</LEDGERPHONE></LEDGER>
</ENVELOPE>`)
	require.NoError(t, err)

	out, _ := NewValidator().Apply(tally.Extract(root, types.ImportCustomers, "2024-06-30"))

	assert.Empty(t, out.Customers)
	assert.Equal(t, []tally.Skip{
		{Kind: tally.KindLedger, Position: 0, Reason: tally.SkipNotCustomer, Ref: "Rent"},
		{Kind: tally.KindLedger, Position: 1, Reason: tally.SkipInvalidField, Ref: "Acme"},
	}, out.Skips)
}

func TestValidateInvoice(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.ValidateInvoice(invoice("INV-1", 0)))

	early := invoice("INV-2", 0)
	early.DueDate = "2024-01-01"
	findings := v.ValidateInvoice(early)
	require.Len(t, findings, 1)
	assert.Equal(t, "date_order", findings[0].Rule)
	assert.Equal(t, SeverityWarning, findings[0].Severity)

	findings = v.ValidateInvoice(invoice(strings.Repeat("9", MaxInvoiceNumberLength+1), 0))
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityError, findings[0].Severity)
}

func TestApply(t *testing.T) {
	warned := customer("Warned")
	warned.Email = "nope"
	early := invoice("INV-2", 4)
	early.DueDate = "2023-12-31"

	long := customer(strings.Repeat("x", 300))
	long.Position = 1
	warned.Position = 2

	ext := tally.Extraction{
		Customers: []types.CustomerFragment{customer("Acme"), long, warned},
		Invoices:  []types.InvoiceFragment{invoice("INV-1", 0), invoice(strings.Repeat("9", 101), 2), early},
		Skips:     []tally.Skip{{Kind: tally.KindVoucher, Position: 1, Reason: tally.SkipCancelled}},
		Ledgers:   3,
		Vouchers:  5,
	}

	out, result := NewValidator().Apply(ext)

	assert.Len(t, out.Customers, 2)
	assert.Len(t, out.Invoices, 2)
	assert.Equal(t, 6, result.RecordsValidated)
	assert.Equal(t, 2, result.ErrorCount)
	assert.Equal(t, 2, result.WarningCount)
	assert.Len(t, result.Warnings(), 2)

	assert.Equal(t, 1, out.SkippedCustomers())
	assert.Equal(t, 2, out.SkippedInvoices())
	assert.Equal(t, tally.Skip{Kind: tally.KindLedger, Position: 1, Reason: tally.SkipInvalidField, Ref: strings.Repeat("x", 300)}, out.Skips[1])
	assert.Equal(t, tally.KindVoucher, out.Skips[2].Kind)
	assert.Equal(t, 2, out.Skips[2].Position)

	// The input extraction is untouched.
	assert.Len(t, ext.Customers, 3)
	assert.Len(t, ext.Skips, 1)
}

func TestApply_WarningsAsErrors(t *testing.T) {
	warned := customer("Warned")
	warned.Email = "nope"

	out, result := NewValidatorWithOptions(ValidationOptions{TreatWarningsAsErrors: true}).
		Apply(tally.Extraction{Customers: []types.CustomerFragment{warned}})

	assert.Empty(t, out.Customers)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Zero(t, result.WarningCount)
}

func TestWriteErrorLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validation.log")
	findings := NewValidator().ValidateInvoice(invoice(strings.Repeat("9", 101), 0))

	require.NoError(t, WriteErrorLog(findings, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "1 finding(s)")
	assert.Contains(t, string(raw), "[ERROR] voucher")

	assert.Equal(t, "No validation errors.", FormatErrors(nil))
}
