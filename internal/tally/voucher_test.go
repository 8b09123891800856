package tally

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const today = "2024-06-30"

func TestClassifyVoucher_InventoryVoucher(t *testing.T) {
	node := Collect(loadFixture(t, "daybook.xml"), VoucherTag)[0]

	frag, reason, ok := ClassifyVoucher(node, 0, today)
	require.True(t, ok)
	assert.Empty(t, reason)

	assert.Equal(t, "INV-001", frag.InvoiceNumber)
	assert.Equal(t, "Acme Traders", frag.CustomerName)
	assert.Equal(t, "2024-01-15", frag.InvoiceDate)
	assert.Equal(t, "2024-01-15", frag.DueDate)
	assert.Equal(t, "January order", frag.Notes)
	assert.Equal(t, "items", frag.Strategy)
	assertDecimal(t, "175", frag.Amount)

	require.Len(t, frag.Items, 2)
	assert.Equal(t, "Widget", frag.Items[0].Description)
	assertDecimal(t, "2", frag.Items[0].Quantity)
	assertDecimal(t, "50", frag.Items[0].Rate)
	assert.Equal(t, "Gadget", frag.Items[1].Description)
	assertDecimal(t, "3", frag.Items[1].Quantity)
	assertDecimal(t, "25", frag.Items[1].Rate)
}

func TestClassifyVoucher_RejectionOrder(t *testing.T) {
	tests := []struct {
		name   string
		xml    string
		reason SkipReason
	}{
		{
			name: "cancelled wins over everything",
			xml: `<VOUCHER><ISCANCELLED>Yes</ISCANCELLED><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
				<PARTYNAME>Acme</PARTYNAME><LEDGERENTRIES.LIST><AMOUNT>100</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>`,
			reason: SkipCancelled,
		},
		{
			name:   "deleted",
			xml:    `<VOUCHER><ISDELETED>yes</ISDELETED><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME></VOUCHER>`,
			reason: SkipCancelled,
		},
		{
			name:   "receipt is not sales",
			xml:    `<VOUCHER><VOUCHERTYPENAME>Receipt</VOUCHERTYPENAME><PARTYNAME>Acme</PARTYNAME></VOUCHER>`,
			reason: SkipNotSales,
		},
		{
			name:   "no type at all",
			xml:    `<VOUCHER><PARTYNAME>Acme</PARTYNAME></VOUCHER>`,
			reason: SkipNotSales,
		},
		{
			name:   "missing party",
			xml:    `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><LEDGERENTRIES.LIST><AMOUNT>100</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>`,
			reason: SkipMissingParty,
		},
		{
			name:   "zero total",
			xml:    `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><PARTYNAME>Acme</PARTYNAME></VOUCHER>`,
			reason: SkipNonPositiveTotal,
		},
		{
			name: "zero ledger amounts",
			xml: `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><PARTYNAME>Acme</PARTYNAME>
				<LEDGERENTRIES.LIST><AMOUNT>0.00</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>`,
			reason: SkipNonPositiveTotal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, reason, ok := ClassifyVoucher(firstTag(t, tt.xml, VoucherTag), 0, today)
			assert.False(t, ok)
			assert.Equal(t, tt.reason, reason)
			assert.Empty(t, frag.InvoiceNumber)
		})
	}
}

func TestClassifyVoucher_SalesDetection(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"type name", `<VOUCHER><VOUCHERTYPENAME>GST Sales</VOUCHERTYPENAME>`},
		{"legacy type element", `<VOUCHER><VOUCHERTYPE>Tax Invoice</VOUCHERTYPE>`},
		{"type attribute", `<VOUCHER VCHTYPE="Sales">`},
		{"invoice flag", `<VOUCHER><VOUCHERTYPENAME>Journal</VOUCHERTYPENAME><ISINVOICE>Yes</ISINVOICE>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xml := tt.xml + `<PARTYNAME>Acme</PARTYNAME><LEDGERENTRIES.LIST><AMOUNT>10</AMOUNT></LEDGERENTRIES.LIST></VOUCHER>`
			_, reason, ok := ClassifyVoucher(firstTag(t, xml, VoucherTag), 0, today)
			assert.True(t, ok, "rejected as %s", reason)
		})
	}
}

func TestClassifyVoucher_LedgerTiers(t *testing.T) {
	nodes := Collect(loadFixture(t, "daybook.xml"), VoucherTag)
	require.Len(t, nodes, 4)

	frag, _, ok := ClassifyVoucher(nodes[3], 3, today)
	require.True(t, ok)
	assert.Equal(t, "deemed-positive-ledgers", frag.Strategy)
	assertDecimal(t, "1180", frag.Amount)
	assert.Empty(t, frag.Items)
	assert.Equal(t, "Bharat Stores", frag.CustomerName)

	frag, _, ok = ClassifyVoucher(firstTag(t, `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><PARTYNAME>Acme</PARTYNAME>
		<LEDGERENTRIES.LIST><AMOUNT>-300.50</AMOUNT></LEDGERENTRIES.LIST>
		<LEDGERENTRIES.LIST><AMOUNT>200</AMOUNT></LEDGERENTRIES.LIST>
	</VOUCHER>`, VoucherTag), 0, today)
	require.True(t, ok)
	assert.Equal(t, "all-ledgers", frag.Strategy)
	assertDecimal(t, "500.5", frag.Amount)
}

func TestClassifyVoucher_NegativeDeemedPositiveEntry(t *testing.T) {
	frag, _, ok := ClassifyVoucher(firstTag(t, `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><PARTYNAME>Acme Corp</PARTYNAME>
		<LEDGERENTRIES.LIST><LEDGERNAME>Acme Corp</LEDGERNAME><ISDEEMEDPOSITIVE>Yes</ISDEEMEDPOSITIVE><AMOUNT>-1200</AMOUNT></LEDGERENTRIES.LIST>
		<LEDGERENTRIES.LIST><LEDGERNAME>Sales</LEDGERNAME><ISDEEMEDPOSITIVE>No</ISDEEMEDPOSITIVE><AMOUNT>-500</AMOUNT></LEDGERENTRIES.LIST>
	</VOUCHER>`, VoucherTag), 0, today)
	require.True(t, ok)
	assert.Equal(t, "deemed-positive-ledgers", frag.Strategy)
	assertDecimal(t, "500", frag.Amount)
	assert.Empty(t, frag.Items)
}

func TestClassifyVoucher_ItemsFallBackToLedgersWhenZero(t *testing.T) {
	frag, _, ok := ClassifyVoucher(firstTag(t, `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><PARTYNAME>Acme</PARTYNAME>
		<INVENTORYENTRIES.LIST><STOCKITEMNAME>Free sample</STOCKITEMNAME><AMOUNT>0</AMOUNT></INVENTORYENTRIES.LIST>
		<LEDGERENTRIES.LIST><ISDEEMEDPOSITIVE>No</ISDEEMEDPOSITIVE><AMOUNT>250</AMOUNT></LEDGERENTRIES.LIST>
	</VOUCHER>`, VoucherTag), 0, today)
	require.True(t, ok)
	assert.Equal(t, "deemed-positive-ledgers", frag.Strategy)
	assertDecimal(t, "250", frag.Amount)
	assert.Empty(t, frag.Items)
}

func TestLineItem_Defaults(t *testing.T) {
	tests := []struct {
		name        string
		xml         string
		description string
		quantity    string
		rate        string
	}{
		{
			name:        "no description, no quantity",
			xml:         `<E><AMOUNT>-120.00</AMOUNT></E>`,
			description: "Item",
			quantity:    "1",
			rate:        "120",
		},
		{
			name:        "ledger name description, actual quantity",
			xml:         `<E><LEDGERNAME>Services</LEDGERNAME><ACTUALQTY>3 Hrs</ACTUALQTY><AMOUNT>100</AMOUNT></E>`,
			description: "Services",
			quantity:    "3",
			rate:        "33.33",
		},
		{
			name:        "negative billed quantity and rate are absolute",
			xml:         `<E><ITEMNAME>Bolt</ITEMNAME><BILLEDQTY>-4 Nos</BILLEDQTY><RATE>-2.50/Nos</RATE></E>`,
			description: "Bolt",
			quantity:    "4",
			rate:        "2.5",
		},
		{
			name:        "zero rate falls back to amount over quantity",
			xml:         `<E><STOCKITEMNAME>Nut</STOCKITEMNAME><BILLEDQTY>0</BILLEDQTY><ACTUALQTY>5</ACTUALQTY><RATE>0</RATE><AMOUNT>10</AMOUNT></E>`,
			description: "Nut",
			quantity:    "5",
			rate:        "2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := lineItem(mustParse(t, tt.xml).Get("E"))
			assert.Equal(t, tt.description, item.Description)
			assertDecimal(t, tt.quantity, item.Quantity)
			assertDecimal(t, tt.rate, item.Rate)
		})
	}
}

func TestClassifyVoucher_NumberAndDates(t *testing.T) {
	frag, _, ok := ClassifyVoucher(firstTag(t, `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><PARTYNAME>Acme</PARTYNAME>
		<REFERENCE>PO-77</REFERENCE><DATE>garbage</DATE><DUEDATE>20240801</DUEDATE>
		<LEDGERENTRIES.LIST><AMOUNT>10</AMOUNT></LEDGERENTRIES.LIST>
	</VOUCHER>`, VoucherTag), 6, today)
	require.True(t, ok)
	assert.Equal(t, "PO-77", frag.InvoiceNumber)
	assert.Equal(t, today, frag.InvoiceDate)
	assert.Equal(t, "2024-08-01", frag.DueDate)
	assert.Equal(t, 6, frag.Position)

	frag, _, ok = ClassifyVoucher(firstTag(t, `<VOUCHER><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><PARTYNAME>Acme</PARTYNAME>
		<LEDGERENTRIES.LIST><AMOUNT>10</AMOUNT></LEDGERENTRIES.LIST>
	</VOUCHER>`, VoucherTag), 6, today)
	require.True(t, ok)
	assert.Equal(t, "TALLY-7", frag.InvoiceNumber)
	assert.Equal(t, today, frag.DueDate)
}

func TestClassifyVoucher_NeverPanicsOnOddShapes(t *testing.T) {
	for _, node := range []any{nil, "", []any{}, NewNode()} {
		assert.NotPanics(t, func() {
			_, reason, ok := ClassifyVoucher(node, 0, today)
			assert.False(t, ok)
			assert.Equal(t, SkipNotSales, reason)
		})
	}
}
