// =============================================================================
// Tally Import - Storage Contract
// =============================================================================
//
// The reconciliation engine reads and writes customers and invoices only
// through Store. Two adapters exist:
//   - memory    in-process maps, used by tests and dry runs
//   - postgres  pgx connection pool against the receivables schema
//
// Every operation is scoped to an owner (the account the import runs for).
//
// =============================================================================

package storage

import (
	"context"

	"github.com/ginjaninja78/tally-import/internal/types"
)

// Store persists customers and invoices.
type Store interface {
	// FindCustomersByOwner returns every customer of the owner.
	FindCustomersByOwner(ctx context.Context, ownerID string) ([]types.Customer, error)

	// CreateCustomer inserts a customer built from a fragment.
	CreateCustomer(ctx context.Context, ownerID string, frag types.CustomerFragment) (types.Customer, error)

	// UpdateCustomer applies a partial update and returns the stored record.
	UpdateCustomer(ctx context.Context, ownerID, id string, update types.CustomerUpdate) (types.Customer, error)

	// FindInvoiceByNumber returns nil, nil when the owner has no invoice with
	// that number.
	FindInvoiceByNumber(ctx context.Context, ownerID, number string) (*types.Invoice, error)

	// CreateInvoice inserts a pending, unpaid invoice linked to customerID.
	CreateInvoice(ctx context.Context, ownerID string, frag types.InvoiceFragment, customerID string) (types.Invoice, error)

	// UpdateInvoice refreshes an existing invoice and returns the stored record.
	UpdateInvoice(ctx context.Context, ownerID, id string, update types.InvoiceUpdate) (types.Invoice, error)

	// RecalculateCustomerOutstanding sets the customer's outstanding balance
	// to the sum of max(amount - paid, 0) over its invoices.
	RecalculateCustomerOutstanding(ctx context.Context, ownerID, customerID string) error
}

// Driver names accepted in configuration.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)
