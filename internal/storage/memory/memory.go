// Package memory is an in-process Store. It backs tests and dry runs
// (storage.driver: memory) and keeps per-operation call counts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/tally-import/internal/storage"
	"github.com/ginjaninja78/tally-import/internal/types"
)

// Operation names used as call counter keys.
const (
	OpFindCustomers     = "FindCustomersByOwner"
	OpCreateCustomer    = "CreateCustomer"
	OpUpdateCustomer    = "UpdateCustomer"
	OpFindInvoice       = "FindInvoiceByNumber"
	OpCreateInvoice     = "CreateInvoice"
	OpUpdateInvoice     = "UpdateInvoice"
	OpRecalcOutstanding = "RecalculateCustomerOutstanding"
)

var _ storage.Store = (*Store)(nil)

// Store keeps records in maps keyed by ID.
type Store struct {
	mu        sync.Mutex
	customers map[string]*types.Customer
	invoices  map[string]*types.Invoice
	calls     map[string]int
	recalcLog []string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		customers: make(map[string]*types.Customer),
		invoices:  make(map[string]*types.Invoice),
		calls:     make(map[string]int),
	}
}

func (s *Store) count(op string) {
	s.calls[op]++
}

// FindCustomersByOwner returns the owner's customers ordered by name.
func (s *Store) FindCustomersByOwner(_ context.Context, ownerID string) ([]types.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count(OpFindCustomers)

	var out []types.Customer
	for _, c := range s.customers {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateCustomer(_ context.Context, ownerID string, frag types.CustomerFragment) (types.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count(OpCreateCustomer)

	c := &types.Customer{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Name:         frag.Name,
		Email:        frag.Email,
		Phone:        frag.Phone,
		GST:          frag.GST,
		Address:      frag.Address,
		CreditLimit:  frag.CreditLimit,
		PaymentTerms: frag.PaymentTerms,
		RiskScore:    frag.RiskScore,
		Outstanding:  frag.Outstanding,
	}
	s.customers[c.ID] = c
	return *c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, ownerID, id string, update types.CustomerUpdate) (types.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count(OpUpdateCustomer)

	c, ok := s.customers[id]
	if !ok || c.OwnerID != ownerID {
		return types.Customer{}, fmt.Errorf("customer %s: %w", id, storage.ErrNotFound)
	}
	update.Apply(c)
	return *c, nil
}

func (s *Store) FindInvoiceByNumber(_ context.Context, ownerID, number string) (*types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count(OpFindInvoice)

	for _, inv := range s.invoices {
		if inv.OwnerID == ownerID && inv.InvoiceNumber == number {
			found := *inv
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateInvoice(_ context.Context, ownerID string, frag types.InvoiceFragment, customerID string) (types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count(OpCreateInvoice)

	for _, inv := range s.invoices {
		if inv.OwnerID == ownerID && inv.InvoiceNumber == frag.InvoiceNumber {
			return types.Invoice{}, fmt.Errorf("invoice %s already exists", frag.InvoiceNumber)
		}
	}

	inv := &types.Invoice{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		CustomerID:    customerID,
		InvoiceNumber: frag.InvoiceNumber,
		CustomerName:  frag.CustomerName,
		Amount:        frag.Amount,
		InvoiceDate:   frag.InvoiceDate,
		DueDate:       frag.DueDate,
		Status:        types.StatusPending,
		PaidAmount:    decimal.Zero,
		Items:         frag.Items,
		Notes:         frag.Notes,
	}
	s.invoices[inv.ID] = inv
	return *inv, nil
}

func (s *Store) UpdateInvoice(_ context.Context, ownerID, id string, update types.InvoiceUpdate) (types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count(OpUpdateInvoice)

	inv, ok := s.invoices[id]
	if !ok || inv.OwnerID != ownerID {
		return types.Invoice{}, fmt.Errorf("invoice %s: %w", id, storage.ErrNotFound)
	}
	update.Apply(inv)
	return *inv, nil
}

func (s *Store) RecalculateCustomerOutstanding(_ context.Context, ownerID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count(OpRecalcOutstanding)
	s.recalcLog = append(s.recalcLog, customerID)

	c, ok := s.customers[customerID]
	if !ok || c.OwnerID != ownerID {
		return fmt.Errorf("customer %s: %w", customerID, storage.ErrNotFound)
	}

	total := decimal.Zero
	for _, inv := range s.invoices {
		if inv.OwnerID != ownerID || inv.CustomerID != customerID {
			continue
		}
		if due := inv.Amount.Sub(inv.PaidAmount); due.IsPositive() {
			total = total.Add(due)
		}
	}
	c.Outstanding = total
	return nil
}

// =============================================================================
// INSPECTION HELPERS
// =============================================================================

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Recalculated returns the customer IDs passed to
// RecalculateCustomerOutstanding, in call order.
func (s *Store) Recalculated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recalcLog...)
}

// Invoices returns the owner's invoices ordered by number.
func (s *Store) Invoices(ownerID string) []types.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Invoice
	for _, inv := range s.invoices {
		if inv.OwnerID == ownerID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out
}

// CustomerByName returns the owner's customer with the given name, compared
// case-insensitively.
func (s *Store) CustomerByName(ownerID, name string) (types.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.customers {
		if c.OwnerID == ownerID && strings.EqualFold(c.Name, name) {
			return *c, true
		}
	}
	return types.Customer{}, false
}

// RecordPayment adds amount to an invoice's paid amount.
func (s *Store) RecordPayment(ownerID, invoiceNumber string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invoices {
		if inv.OwnerID == ownerID && inv.InvoiceNumber == invoiceNumber {
			inv.PaidAmount = inv.PaidAmount.Add(amount)
			return nil
		}
	}
	return fmt.Errorf("invoice %s: %w", invoiceNumber, storage.ErrNotFound)
}
