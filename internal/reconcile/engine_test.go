package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ginjaninja78/tally-import/internal/storage/memory"
	"github.com/ginjaninja78/tally-import/internal/tally"
	"github.com/ginjaninja78/tally-import/internal/types"
)

const (
	owner = "owner-1"
	today = "2024-06-30"
)

const singleSaleXML = `<ENVELOPE><BODY><IMPORTDATA><REQUESTDATA>
<TALLYMESSAGE>
  <LEDGER NAME="Acme Traders">
    <PARENT>Sundry Debtors</PARENT>
    <EMAIL>accounts@acme.example</EMAIL>
  </LEDGER>
</TALLYMESSAGE>
<TALLYMESSAGE>
  <VOUCHER VCHTYPE="Sales">
    <DATE>20240115</DATE>
    <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
    <VOUCHERNUMBER>INV-001</VOUCHERNUMBER>
    <PARTYLEDGERNAME>Acme Traders</PARTYLEDGERNAME>
    <ALLINVENTORYENTRIES.LIST>
      <STOCKITEMNAME>Widget</STOCKITEMNAME>
      <RATE>33.33/Nos</RATE>
      <BILLEDQTY>3 Nos</BILLEDQTY>
      <AMOUNT>99.99</AMOUNT>
    </ALLINVENTORYENTRIES.LIST>
  </VOUCHER>
</TALLYMESSAGE>
</REQUESTDATA></IMPORTDATA></BODY></ENVELOPE>`

func extract(t *testing.T, xml string, importType types.ImportType) tally.Extraction {
	t.Helper()
	root, err := tally.Parse(xml)
	require.NoError(t, err)
	return tally.Extract(root, importType, today)
}

func runImport(t *testing.T, store *memory.Store, xml string, importType types.ImportType) *types.RunSummary {
	t.Helper()
	summary, err := New(store, zap.NewNop()).Run(context.Background(), owner, extract(t, xml, importType), importType)
	require.NoError(t, err)
	return summary
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestRun_FirstImportThenIdenticalReimport(t *testing.T) {
	store := memory.New()

	first := runImport(t, store, singleSaleXML, types.ImportBoth)
	assert.Equal(t, types.Counts{Created: 1}, first.Customers)
	assert.Equal(t, types.Counts{Created: 1}, first.Invoices)
	assert.Empty(t, first.Errors)

	acme, ok := store.CustomerByName(owner, "Acme Traders")
	require.True(t, ok)
	assert.Equal(t, []string{acme.ID}, first.TouchedCustomerIDs)
	assertDecimal(t, "99.99", acme.Outstanding)

	invoices := store.Invoices(owner)
	require.Len(t, invoices, 1)
	assert.Equal(t, types.StatusPending, invoices[0].Status)
	assertDecimal(t, "0", invoices[0].PaidAmount)
	assertDecimal(t, "99.99", invoices[0].Amount)
	assert.Equal(t, acme.ID, invoices[0].CustomerID)

	second := runImport(t, store, singleSaleXML, types.ImportBoth)
	assert.Equal(t, types.Counts{Skipped: 1}, second.Customers)
	assert.Equal(t, types.Counts{Updated: 1}, second.Invoices)

	invoices = store.Invoices(owner)
	require.Len(t, invoices, 1)
	assertDecimal(t, "99.99", invoices[0].Amount)
	acme, _ = store.CustomerByName(owner, "Acme Traders")
	assertDecimal(t, "99.99", acme.Outstanding)
}

func TestRun_FixtureDocument(t *testing.T) {
	store := memory.New()
	ext := extract(t, fixtureXML(t), types.ImportBoth)

	summary, err := New(store, nil).Run(context.Background(), owner, ext, types.ImportBoth)
	require.NoError(t, err)

	// Acme from its ledger, Bharat Stores from its invoice party.
	assert.Equal(t, types.Counts{Created: 2, Skipped: 1}, summary.Customers)
	assert.Equal(t, types.Counts{Created: 2, Skipped: 2}, summary.Invoices)
	assert.Len(t, summary.TouchedCustomerIDs, 2)
	assert.Equal(t, 2, store.Calls(memory.OpRecalcOutstanding))

	bharat, ok := store.CustomerByName(owner, "Bharat Stores")
	require.True(t, ok)
	assertDecimal(t, "1180", bharat.Outstanding)
	assert.Empty(t, bharat.Email)
	assert.Equal(t, types.DefaultPaymentTerms, bharat.PaymentTerms)
}

func TestRun_InvoicesOnlyCreatesUnknownCustomers(t *testing.T) {
	store := memory.New()

	summary := runImport(t, store, singleSaleXML, types.ImportInvoices)
	assert.Equal(t, types.Counts{Created: 1}, summary.Customers)
	assert.Equal(t, types.Counts{Created: 1}, summary.Invoices)

	acme, ok := store.CustomerByName(owner, "Acme Traders")
	require.True(t, ok)
	// The ledger was not imported, so contact details are absent.
	assert.Empty(t, acme.Email)
}

func TestRun_CustomersOnlyTouchesNoBalances(t *testing.T) {
	store := memory.New()

	summary := runImport(t, store, singleSaleXML, types.ImportCustomers)
	assert.Equal(t, types.Counts{Created: 1}, summary.Customers)
	assert.Equal(t, types.Counts{}, summary.Invoices)
	assert.Empty(t, summary.TouchedCustomerIDs)
	assert.Zero(t, store.Calls(memory.OpRecalcOutstanding))
	assert.Zero(t, store.Calls(memory.OpFindInvoice))
}

func TestRun_TouchedSetIsDistinctInvoiceCustomers(t *testing.T) {
	xml := `<ENVELOPE>
		<LEDGER><NAME>Acme</NAME><PARENT>Sundry Debtors</PARENT></LEDGER>
		<LEDGER><NAME>Zenith</NAME><PARENT>Sundry Debtors</PARENT></LEDGER>
		<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><VOUCHERNUMBER>1</VOUCHERNUMBER><PARTYNAME>Acme</PARTYNAME>
			<LEDGERENTRIES.LIST><AMOUNT>10</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>
		<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><VOUCHERNUMBER>2</VOUCHERNUMBER><PARTYNAME>ACME</PARTYNAME>
			<LEDGERENTRIES.LIST><AMOUNT>20</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>
	</ENVELOPE>`
	store := memory.New()

	summary := runImport(t, store, xml, types.ImportBoth)
	assert.Equal(t, types.Counts{Created: 2}, summary.Customers)
	assert.Equal(t, types.Counts{Created: 2}, summary.Invoices)

	acme, ok := store.CustomerByName(owner, "Acme")
	require.True(t, ok)
	assert.Equal(t, []string{acme.ID}, summary.TouchedCustomerIDs)
	assert.Equal(t, []string{acme.ID}, store.Recalculated())
	assertDecimal(t, "30", acme.Outstanding)
}

func TestRun_CustomerMergeNeverBlanksFields(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	existing := types.BareCustomer("acme traders")
	existing.Email = "old@acme.example"
	existing.Address = "Pune"
	_, err := store.CreateCustomer(ctx, owner, existing)
	require.NoError(t, err)

	xml := `<ENVELOPE><LEDGER><NAME>Acme Traders</NAME><PARENT>Sundry Debtors</PARENT>
		<PHONE>020-1234</PHONE><PAYMENTTERMS>45</PAYMENTTERMS></LEDGER></ENVELOPE>`
	summary := runImport(t, store, xml, types.ImportCustomers)
	assert.Equal(t, types.Counts{Updated: 1}, summary.Customers)

	got, ok := store.CustomerByName(owner, "acme traders")
	require.True(t, ok)
	assert.Equal(t, "Acme Traders", got.Name)
	assert.Equal(t, "old@acme.example", got.Email)
	assert.Equal(t, "Pune", got.Address)
	assert.Equal(t, "020-1234", got.Phone)
	assert.Equal(t, 45, got.PaymentTerms)
	assertDecimal(t, "0", got.CreditLimit)
}

func TestRun_SameDocumentSeesItsOwnWrites(t *testing.T) {
	xml := `<ENVELOPE>
		<LEDGER><NAME>Acme</NAME><EMAIL>a@acme.example</EMAIL></LEDGER>
		<LEDGER><NAME>Acme</NAME><EMAIL>a@acme.example</EMAIL><PHONE>123</PHONE></LEDGER>
		<LEDGER><NAME>Acme</NAME><EMAIL>a@acme.example</EMAIL></LEDGER>
	</ENVELOPE>`
	store := memory.New()

	summary := runImport(t, store, xml, types.ImportCustomers)
	assert.Equal(t, types.Counts{Created: 1, Updated: 1, Skipped: 1}, summary.Customers)
	assert.Equal(t, 1, store.Calls(memory.OpCreateCustomer))
}

func TestRun_InvoiceUpdateKeepsNotesWithoutNarration(t *testing.T) {
	store := memory.New()
	withNarration := `<ENVELOPE><VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><VOUCHERNUMBER>INV-9</VOUCHERNUMBER>
		<PARTYNAME>Acme</PARTYNAME><NARRATION>Deliver Monday</NARRATION><DUEDATE>20240301</DUEDATE>
		<LEDGERENTRIES.LIST><AMOUNT>100</AMOUNT></LEDGERENTRIES.LIST></VOUCHER></ENVELOPE>`
	withoutNarration := `<ENVELOPE><VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><VOUCHERNUMBER>INV-9</VOUCHERNUMBER>
		<PARTYNAME>Acme</PARTYNAME><DUEDATE>20240315</DUEDATE>
		<LEDGERENTRIES.LIST><AMOUNT>150</AMOUNT></LEDGERENTRIES.LIST></VOUCHER></ENVELOPE>`

	runImport(t, store, withNarration, types.ImportInvoices)
	summary := runImport(t, store, withoutNarration, types.ImportInvoices)
	assert.Equal(t, types.Counts{Updated: 1}, summary.Invoices)
	assert.Equal(t, types.Counts{}, summary.Customers)

	invoices := store.Invoices(owner)
	require.Len(t, invoices, 1)
	assert.Equal(t, "Deliver Monday", invoices[0].Notes)
	assert.Equal(t, "2024-03-15", invoices[0].DueDate)
	assertDecimal(t, "150", invoices[0].Amount)
}

func TestRun_PaymentsReduceOutstandingOnReimport(t *testing.T) {
	store := memory.New()
	runImport(t, store, singleSaleXML, types.ImportBoth)
	require.NoError(t, store.RecordPayment(owner, "INV-001", decimal.RequireFromString("50")))

	runImport(t, store, singleSaleXML, types.ImportBoth)

	acme, _ := store.CustomerByName(owner, "Acme Traders")
	assertDecimal(t, "49.99", acme.Outstanding)
	// Re-import never resets payment state.
	assertDecimal(t, "50", store.Invoices(owner)[0].PaidAmount)
}

// =============================================================================
// FAILURES
// =============================================================================

var errDown = errors.New("database unavailable")

// failingStore fails one operation and delegates the rest.
type failingStore struct {
	*memory.Store
	failOn string
}

func (f *failingStore) FindCustomersByOwner(ctx context.Context, ownerID string) ([]types.Customer, error) {
	if f.failOn == memory.OpFindCustomers {
		return nil, errDown
	}
	return f.Store.FindCustomersByOwner(ctx, ownerID)
}

func (f *failingStore) CreateInvoice(ctx context.Context, ownerID string, frag types.InvoiceFragment, customerID string) (types.Invoice, error) {
	if f.failOn == memory.OpCreateInvoice {
		return types.Invoice{}, errDown
	}
	return f.Store.CreateInvoice(ctx, ownerID, frag, customerID)
}

func (f *failingStore) RecalculateCustomerOutstanding(ctx context.Context, ownerID, customerID string) error {
	if f.failOn == memory.OpRecalcOutstanding {
		return errDown
	}
	return f.Store.RecalculateCustomerOutstanding(ctx, ownerID, customerID)
}

func TestRun_StorageFailureReturnsPartialSummary(t *testing.T) {
	tests := []struct {
		failOn        string
		op            string
		customers     types.Counts
		invoices      types.Counts
		touched       int
		customerCount int
	}{
		{
			failOn:        memory.OpFindCustomers,
			op:            OpLoadCustomers,
			customers:     types.Counts{Skipped: 0},
			customerCount: 0,
		},
		{
			failOn:        memory.OpCreateInvoice,
			op:            OpInvoicePass,
			customers:     types.Counts{Created: 1},
			customerCount: 1,
		},
		{
			failOn:        memory.OpRecalcOutstanding,
			op:            OpRecalcBalances,
			customers:     types.Counts{Created: 1},
			invoices:      types.Counts{Created: 1},
			touched:       1,
			customerCount: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			mem := memory.New()
			store := &failingStore{Store: mem, failOn: tt.failOn}

			summary, err := New(store, nil).Run(context.Background(), owner, extract(t, singleSaleXML, types.ImportBoth), types.ImportBoth)
			assert.Nil(t, summary)
			require.Error(t, err)
			assert.ErrorIs(t, err, errDown)

			var runErr *RunError
			require.True(t, errors.As(err, &runErr))
			assert.Equal(t, tt.op, runErr.Op)
			require.NotNil(t, runErr.Summary)
			assert.Equal(t, tt.customers, runErr.Summary.Customers)
			assert.Equal(t, tt.invoices, runErr.Summary.Invoices)
			assert.Len(t, runErr.Summary.TouchedCustomerIDs, tt.touched)

			// Writes made before the failure stay committed.
			got, _ := mem.FindCustomersByOwner(context.Background(), owner)
			assert.Len(t, got, tt.customerCount)
		})
	}
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := memory.New()

	_, err := New(store, nil).Run(ctx, owner, extract(t, singleSaleXML, types.ImportBoth), types.ImportBoth)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Calls(memory.OpCreateCustomer))
}

func TestRun_LogsCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	_, err := New(memory.New(), zap.New(core)).Run(context.Background(), owner, extract(t, singleSaleXML, types.ImportBoth), types.ImportBoth)
	require.NoError(t, err)

	entries := logs.FilterMessage("reconciliation complete").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, owner, fields["owner"])
	assert.EqualValues(t, 1, fields["invoices_created"])
	assert.EqualValues(t, 1, fields["balances_recalculated"])
}
