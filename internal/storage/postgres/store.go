// Package postgres is the PostgreSQL Store. Amounts are NUMERIC(15,2) scanned
// into decimal.Decimal, dates are DATE columns exchanged as YYYY-MM-DD and
// invoice line items are stored as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ginjaninja78/tally-import/internal/storage"
	"github.com/ginjaninja78/tally-import/internal/types"
)

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

const customerColumns = `id::text, owner_id, name, email, phone, gst, address,
	credit_limit, payment_terms, risk_score, outstanding`

const invoiceColumns = `id::text, owner_id, customer_id::text, invoice_number, customer_name,
	amount, invoice_date, due_date, status, paid_amount, items, notes`

// Store implements storage.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (s *Store) FindCustomersByOwner(ctx context.Context, ownerID string) ([]types.Customer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+customerColumns+`
		FROM customers
		WHERE owner_id = $1
		ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var customers []types.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, ownerID string, frag types.CustomerFragment) (types.Customer, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (id, owner_id, name, email, phone, gst, address,
			credit_limit, payment_terms, risk_score, outstanding)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11::numeric)
		RETURNING `+customerColumns,
		uuid.NewString(), ownerID, frag.Name, frag.Email, frag.Phone, frag.GST, frag.Address,
		frag.CreditLimit, frag.PaymentTerms, frag.RiskScore, frag.Outstanding)

	c, err := scanCustomer(row)
	if err != nil {
		return types.Customer{}, fmt.Errorf("insert customer %q: %w", frag.Name, err)
	}
	return c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, ownerID, id string, update types.CustomerUpdate) (types.Customer, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE customers SET
			name          = COALESCE($3::text, name),
			email         = COALESCE($4::text, email),
			phone         = COALESCE($5::text, phone),
			gst           = COALESCE($6::text, gst),
			address       = COALESCE($7::text, address),
			credit_limit  = COALESCE($8::numeric, credit_limit),
			payment_terms = COALESCE($9::integer, payment_terms),
			updated_at    = now()
		WHERE owner_id = $1 AND id = $2::uuid
		RETURNING `+customerColumns,
		ownerID, id, update.Name, update.Email, update.Phone, update.GST, update.Address,
		update.CreditLimit, update.PaymentTerms)

	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Customer{}, fmt.Errorf("customer %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Customer{}, fmt.Errorf("update customer %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) RecalculateCustomerOutstanding(ctx context.Context, ownerID, customerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE customers SET
			outstanding = COALESCE((
				SELECT SUM(GREATEST(amount - paid_amount, 0))
				FROM invoices
				WHERE owner_id = $1 AND customer_id = $2::uuid
			), 0),
			updated_at = now()
		WHERE owner_id = $1 AND id = $2::uuid`, ownerID, customerID)
	if err != nil {
		return fmt.Errorf("recalculate outstanding for %s: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", customerID, storage.ErrNotFound)
	}
	return nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) FindInvoiceByNumber(ctx context.Context, ownerID, number string) (*types.Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
		FROM invoices
		WHERE owner_id = $1 AND invoice_number = $2`, ownerID, number)

	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", number, err)
	}
	return &inv, nil
}

func (s *Store) CreateInvoice(ctx context.Context, ownerID string, frag types.InvoiceFragment, customerID string) (types.Invoice, error) {
	items, err := marshalItems(frag.Items)
	if err != nil {
		return types.Invoice{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO invoices (id, owner_id, customer_id, invoice_number, customer_name,
			amount, invoice_date, due_date, status, paid_amount, items, notes)
		VALUES ($1::uuid, $2, $3::uuid, $4, $5, $6::numeric, $7::date, $8::date, $9, 0, $10::jsonb, $11)
		RETURNING `+invoiceColumns,
		uuid.NewString(), ownerID, customerID, frag.InvoiceNumber, frag.CustomerName,
		frag.Amount, frag.InvoiceDate, frag.DueDate, types.StatusPending, items, frag.Notes)

	inv, err := scanInvoice(row)
	if err != nil {
		return types.Invoice{}, fmt.Errorf("insert invoice %s: %w", frag.InvoiceNumber, err)
	}
	return inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, ownerID, id string, update types.InvoiceUpdate) (types.Invoice, error) {
	items, err := marshalItems(update.Items)
	if err != nil {
		return types.Invoice{}, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE invoices SET
			customer_id   = $3::uuid,
			customer_name = $4,
			amount        = $5::numeric,
			due_date      = $6::date,
			items         = $7::jsonb,
			notes         = $8,
			updated_at    = now()
		WHERE owner_id = $1 AND id = $2::uuid
		RETURNING `+invoiceColumns,
		ownerID, id, update.CustomerID, update.CustomerName, update.Amount,
		update.DueDate, items, update.Notes)

	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Invoice{}, fmt.Errorf("invoice %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Invoice{}, fmt.Errorf("update invoice %s: %w", id, err)
	}
	return inv, nil
}

// =============================================================================
// SCANNING
// =============================================================================

func scanCustomer(row pgx.Row) (types.Customer, error) {
	var c types.Customer
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Phone, &c.GST, &c.Address,
		&c.CreditLimit, &c.PaymentTerms, &c.RiskScore, &c.Outstanding)
	if err != nil {
		return types.Customer{}, err
	}
	return c, nil
}

func scanInvoice(row pgx.Row) (types.Invoice, error) {
	var (
		inv         types.Invoice
		invoiceDate time.Time
		dueDate     time.Time
		items       []byte
	)
	err := row.Scan(&inv.ID, &inv.OwnerID, &inv.CustomerID, &inv.InvoiceNumber, &inv.CustomerName,
		&inv.Amount, &invoiceDate, &dueDate, &inv.Status, &inv.PaidAmount, &items, &inv.Notes)
	if err != nil {
		return types.Invoice{}, err
	}

	inv.InvoiceDate = invoiceDate.Format(time.DateOnly)
	inv.DueDate = dueDate.Format(time.DateOnly)
	if inv.Items, err = unmarshalItems(items); err != nil {
		return types.Invoice{}, err
	}
	return inv, nil
}

// marshalItems encodes line items for the JSONB column. A nil slice is
// stored as [].
func marshalItems(items []types.LineItem) (string, error) {
	if items == nil {
		items = []types.LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal invoice items: %w", err)
	}
	return string(b), nil
}

func unmarshalItems(raw []byte) ([]types.LineItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []types.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal invoice items: %w", err)
	}
	return items, nil
}
