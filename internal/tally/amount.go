// =============================================================================
// Tally Import - Voucher Amount Strategies
// =============================================================================
//
// A voucher's invoice total is computed by an ordered list of strategies.
// Each strategy either produces a total or declares itself not applicable;
// the first strategy with a positive total wins.
//
// STRATEGIES (in priority order):
//   1. items                    Sum of quantity x rate over inventory entries.
//   2. deemed-positive-ledgers  Sum of |AMOUNT| over ledger entries flagged
//                               ISDEEMEDPOSITIVE=No (Tally's debit side).
//   3. all-ledgers              Sum of |AMOUNT| over every ledger entry, used
//                               when the positivity flag is absent.
//
// Only the items strategy produces line items.
//
// =============================================================================

package tally

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/tally-import/internal/types"
)

// Tag variants that carry the same kind of entry.
var (
	inventoryEntryTags = []string{"INVENTORYENTRIES.LIST", "ALLINVENTORYENTRIES.LIST"}
	ledgerEntryTags    = []string{"ALLLEDGERENTRIES.LIST", "LEDGERENTRIES.LIST"}
)

// Total is the result of an amount strategy.
type Total struct {
	Amount   decimal.Decimal
	Items    []types.LineItem
	Strategy string
}

// AmountStrategy computes a voucher total. ok is false when the strategy does
// not apply or produced nothing positive.
type AmountStrategy interface {
	Name() string
	Compute(voucher any) (Total, bool)
}

// DefaultStrategies is the tier order used for every voucher.
var DefaultStrategies = []AmountStrategy{
	itemStrategy{},
	ledgerStrategy{name: "deemed-positive-ledgers", deemedPositiveOnly: true},
	ledgerStrategy{name: "all-ledgers"},
}

// VoucherTotal runs strategies in order and returns the first positive total.
// The zero Total is returned when none applies.
func VoucherTotal(voucher any, strategies []AmountStrategy) Total {
	for _, s := range strategies {
		if t, ok := s.Compute(voucher); ok && t.Amount.IsPositive() {
			t.Strategy = s.Name()
			return t
		}
	}
	return Total{Amount: decimal.Zero}
}

// entries unions the entries found under each tag variant, in tag order.
func entries(voucher any, tags []string) []any {
	var out []any
	for _, tag := range tags {
		out = append(out, Each(field(voucher, tag))...)
	}
	return out
}

// =============================================================================
// ITEM STRATEGY
// =============================================================================

type itemStrategy struct{}

func (itemStrategy) Name() string { return "items" }

func (itemStrategy) Compute(voucher any) (Total, bool) {
	list := entries(voucher, inventoryEntryTags)
	if len(list) == 0 {
		return Total{}, false
	}

	items := make([]types.LineItem, 0, len(list))
	sum := decimal.Zero
	for _, entry := range list {
		item := lineItem(entry)
		items = append(items, item)
		sum = sum.Add(item.Total())
	}
	return Total{Amount: sum, Items: items}, sum.IsPositive()
}

// lineItem builds one line from an inventory entry.
func lineItem(entry any) types.LineItem {
	description := firstText(entry, "STOCKITEMNAME", "LEDGERNAME", "ITEMNAME")
	if description == "" {
		description = "Item"
	}

	quantity := Quantity(field(entry, "BILLEDQTY")).Abs()
	if quantity.IsZero() {
		quantity = Quantity(field(entry, "ACTUALQTY")).Abs()
	}
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}

	amount, _ := Number(field(entry, "AMOUNT"))
	amount = amount.Abs()

	rate, ok := Number(field(entry, "RATE"))
	if !ok || rate.IsZero() {
		if quantity.IsZero() {
			rate = amount
		} else {
			rate = amount.Div(quantity).Round(2)
		}
	}

	return types.LineItem{
		Description: description,
		Quantity:    quantity,
		Rate:        rate.Abs(),
	}
}

// =============================================================================
// LEDGER STRATEGIES
// =============================================================================

type ledgerStrategy struct {
	name               string
	deemedPositiveOnly bool
}

func (s ledgerStrategy) Name() string { return s.name }

func (s ledgerStrategy) Compute(voucher any) (Total, bool) {
	sum := decimal.Zero
	for _, entry := range entries(voucher, ledgerEntryTags) {
		amount, ok := Number(field(entry, "AMOUNT"))
		if !ok {
			continue
		}
		if s.deemedPositiveOnly && !strings.EqualFold(Text(field(entry, "ISDEEMEDPOSITIVE")), "no") {
			continue
		}
		sum = sum.Add(amount.Abs())
	}
	return Total{Amount: sum}, sum.IsPositive()
}
