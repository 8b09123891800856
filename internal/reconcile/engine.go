// =============================================================================
// Tally Import - Reconciliation Engine
// =============================================================================
//
// The engine merges one document's extraction into the owner's stored
// customers and invoices.
//
// RUN FLOW:
//   1. Seed skip counters from the extraction
//   2. Load the owner's customers once and index them by name
//   3. Customer pass: create, update or skip each customer fragment
//   4. Invoice pass: resolve (or create) the customer, then create or update
//      the invoice by number
//   5. Recalculate the outstanding balance of every customer touched in 4
//
// Runs are not transactional. A storage failure stops the run; writes made
// before it stay committed and the partial summary travels with the error.
// Re-running the same document is safe because matching is by customer name
// and invoice number.
//
// =============================================================================

package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ginjaninja78/tally-import/internal/storage"
	"github.com/ginjaninja78/tally-import/internal/tally"
	"github.com/ginjaninja78/tally-import/internal/types"
)

// Operations reported in RunError.Op.
const (
	OpLoadCustomers  = "load customers"
	OpCustomerPass   = "customer pass"
	OpInvoicePass    = "invoice pass"
	OpRecalcBalances = "recalculate outstanding"
)

// RunError is returned when a storage call fails mid-run.
type RunError struct {
	// Op names the stage that failed.
	Op string
	// Summary holds the counts reached before the failure.
	Summary *types.RunSummary
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("import aborted during %s: %v", e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Engine reconciles extractions against a Store.
type Engine struct {
	Store  storage.Store
	Logger *zap.Logger
}

// New creates an engine. A nil logger discards output.
func New(store storage.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Store: store, Logger: logger}
}

// run holds the state of one Run call.
type run struct {
	*Engine
	ownerID string
	summary *types.RunSummary
	index   *Index
	touched map[string]struct{}
}

// Run merges ext into the owner's records. importType selects the passes.
//
// On success the summary is complete. On a storage failure the error is a
// *RunError carrying the partial summary.
func (e *Engine) Run(ctx context.Context, ownerID string, ext tally.Extraction, importType types.ImportType) (*types.RunSummary, error) {
	r := &run{
		Engine:  e,
		ownerID: ownerID,
		summary: types.NewRunSummary(),
		touched: make(map[string]struct{}),
	}
	r.summary.Customers.Skipped = ext.SkippedCustomers()
	r.summary.Invoices.Skipped = ext.SkippedInvoices()

	existing, err := e.Store.FindCustomersByOwner(ctx, ownerID)
	if err != nil {
		return nil, r.fail(OpLoadCustomers, fmt.Errorf("failed to load customers: %w", err))
	}
	r.index = NewIndex(existing)

	if importType.IncludesCustomers() {
		for _, frag := range ext.Customers {
			if err := r.mergeCustomer(ctx, frag); err != nil {
				return nil, r.fail(OpCustomerPass, err)
			}
		}
	}

	if importType.IncludesInvoices() {
		for _, frag := range ext.Invoices {
			if err := r.mergeInvoice(ctx, frag); err != nil {
				return nil, r.fail(OpInvoicePass, err)
			}
		}
	}

	r.summary.SetTouched(r.touched)
	for _, id := range r.summary.TouchedCustomerIDs {
		if err := e.Store.RecalculateCustomerOutstanding(ctx, ownerID, id); err != nil {
			return nil, r.fail(OpRecalcBalances, fmt.Errorf("failed to recalculate outstanding for %s: %w", id, err))
		}
	}

	e.Logger.Info("reconciliation complete",
		zap.String("owner", ownerID),
		zap.String("import_type", string(importType)),
		zap.Int("customers_created", r.summary.Customers.Created),
		zap.Int("customers_updated", r.summary.Customers.Updated),
		zap.Int("customers_skipped", r.summary.Customers.Skipped),
		zap.Int("invoices_created", r.summary.Invoices.Created),
		zap.Int("invoices_updated", r.summary.Invoices.Updated),
		zap.Int("invoices_skipped", r.summary.Invoices.Skipped),
		zap.Int("balances_recalculated", len(r.summary.TouchedCustomerIDs)),
	)
	return r.summary, nil
}

func (r *run) fail(op string, err error) error {
	if r.summary.TouchedCustomerIDs == nil {
		r.summary.SetTouched(r.touched)
	}
	r.Logger.Error("reconciliation aborted",
		zap.String("owner", r.ownerID),
		zap.String("op", op),
		zap.Error(err),
	)
	return &RunError{Op: op, Summary: r.summary, Err: err}
}

// =============================================================================
// CUSTOMER PASS
// =============================================================================

func (r *run) mergeCustomer(ctx context.Context, frag types.CustomerFragment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, found := r.index.Lookup(frag.Name)
	if !found {
		created, err := r.Store.CreateCustomer(ctx, r.ownerID, frag)
		if err != nil {
			return fmt.Errorf("failed to create customer %q: %w", frag.Name, err)
		}
		r.index.Put(created)
		r.summary.Customers.Created++
		r.Logger.Debug("customer created", zap.String("name", created.Name), zap.String("id", created.ID))
		return nil
	}

	update := customerUpdate(existing, frag)
	if update.IsEmpty() {
		r.summary.Customers.Skipped++
		r.Logger.Debug("customer unchanged", zap.String("name", existing.Name))
		return nil
	}

	updated, err := r.Store.UpdateCustomer(ctx, r.ownerID, existing.ID, update)
	if err != nil {
		return fmt.Errorf("failed to update customer %q: %w", existing.Name, err)
	}
	r.index.Replace(existing.Name, updated)
	r.summary.Customers.Updated++
	r.Logger.Debug("customer updated", zap.String("name", updated.Name), zap.String("id", updated.ID))
	return nil
}

// =============================================================================
// INVOICE PASS
// =============================================================================

func (r *run) mergeInvoice(ctx context.Context, frag types.InvoiceFragment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	customer, err := r.resolveCustomer(ctx, frag.CustomerName)
	if err != nil {
		return err
	}

	existing, err := r.Store.FindInvoiceByNumber(ctx, r.ownerID, frag.InvoiceNumber)
	if err != nil {
		return fmt.Errorf("failed to look up invoice %s: %w", frag.InvoiceNumber, err)
	}

	if existing == nil {
		if _, err := r.Store.CreateInvoice(ctx, r.ownerID, frag, customer.ID); err != nil {
			return fmt.Errorf("failed to create invoice %s: %w", frag.InvoiceNumber, err)
		}
		r.summary.Invoices.Created++
		r.Logger.Debug("invoice created",
			zap.String("number", frag.InvoiceNumber),
			zap.String("customer", customer.Name),
			zap.String("amount", frag.Amount.StringFixed(2)),
			zap.String("strategy", frag.Strategy),
		)
	} else {
		if _, err := r.Store.UpdateInvoice(ctx, r.ownerID, existing.ID, invoiceUpdate(*existing, frag, customer.ID)); err != nil {
			return fmt.Errorf("failed to update invoice %s: %w", frag.InvoiceNumber, err)
		}
		r.summary.Invoices.Updated++
		r.Logger.Debug("invoice updated",
			zap.String("number", frag.InvoiceNumber),
			zap.String("customer", customer.Name),
			zap.String("amount", frag.Amount.StringFixed(2)),
		)
	}

	r.touched[customer.ID] = struct{}{}
	return nil
}

// resolveCustomer finds the invoice's customer by name, creating a bare
// record when the party has never been seen.
func (r *run) resolveCustomer(ctx context.Context, name string) (types.Customer, error) {
	if c, ok := r.index.Lookup(name); ok {
		return c, nil
	}

	created, err := r.Store.CreateCustomer(ctx, r.ownerID, types.BareCustomer(name))
	if err != nil {
		return types.Customer{}, fmt.Errorf("failed to create customer %q for invoice: %w", name, err)
	}
	r.index.Put(created)
	r.summary.Customers.Created++
	r.Logger.Debug("customer created from invoice party", zap.String("name", created.Name), zap.String("id", created.ID))
	return created, nil
}
