package reconcile

import "github.com/ginjaninja78/tally-import/internal/types"

// customerUpdate returns the fields of frag worth writing over existing.
//
// A field is included only when the fragment carries a non-empty value that
// differs from the stored one. Blank values never overwrite stored data.
// Names match ignoring case, so the name is rewritten when only its case
// changed. Credit limit and payment terms count only when the ledger actually
// supplied them.
// Risk score and outstanding belong to the receivables side and are never
// merged from an import.
func customerUpdate(existing types.Customer, frag types.CustomerFragment) types.CustomerUpdate {
	var u types.CustomerUpdate

	if frag.Name != "" && frag.Name != existing.Name {
		name := frag.Name
		u.Name = &name
	}
	u.Email = changedString(existing.Email, frag.Email)
	u.Phone = changedString(existing.Phone, frag.Phone)
	u.GST = changedString(existing.GST, frag.GST)
	u.Address = changedString(existing.Address, frag.Address)

	if frag.CreditLimitSet && !frag.CreditLimit.Equal(existing.CreditLimit) {
		limit := frag.CreditLimit
		u.CreditLimit = &limit
	}
	if frag.PaymentTermsSet && frag.PaymentTerms != existing.PaymentTerms {
		terms := frag.PaymentTerms
		u.PaymentTerms = &terms
	}
	return u
}

func changedString(current, incoming string) *string {
	if incoming == "" || incoming == current {
		return nil
	}
	return &incoming
}

// invoiceUpdate builds the refresh for an invoice that already exists.
// Notes fall back to the stored notes when the voucher has no narration.
func invoiceUpdate(existing types.Invoice, frag types.InvoiceFragment, customerID string) types.InvoiceUpdate {
	notes := frag.Notes
	if notes == "" {
		notes = existing.Notes
	}
	return types.InvoiceUpdate{
		CustomerID:   customerID,
		CustomerName: frag.CustomerName,
		Amount:       frag.Amount,
		DueDate:      frag.DueDate,
		Items:        frag.Items,
		Notes:        notes,
	}
}
