package inventorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/catalog"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/domain/reservation"
	"hvacstock/internal/domain/threshold"
)

// Catalog returns the catalog repository.
func (s *Store) Catalog() catalog.Repository { return catalogRepo{s} }

// Ledger returns the movement ledger repository.
func (s *Store) Ledger() stock.Repository { return ledgerRepo{s} }

// Settings returns the settings store.
func (s *Store) Settings() threshold.SettingsStore { return settingsStore{s} }

// Orders returns the order reader.
func (s *Store) Orders() reservation.OrderReader { return orderReader{s} }

type catalogRepo struct{ s *Store }

func (r catalogRepo) Get(_ context.Context, productID id.ID) (entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return entity.Product{}, apperror.NewProductNotFound(productID)
	}
	return p, nil
}

func (r catalogRepo) GetForUpdate(ctx context.Context, productID id.ID) (entity.Product, error) {
	if !InTx(ctx) {
		return entity.Product{}, ErrNoTransaction
	}
	return r.Get(ctx, productID)
}

func (r catalogRepo) GetBySKUs(_ context.Context, skus []string) (map[string]entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(skus))
	for _, sku := range skus {
		want[sku] = true
	}
	out := make(map[string]entity.Product)
	for _, p := range r.s.products {
		if want[p.SKU] {
			out[p.SKU] = p
		}
	}
	return out, nil
}

func (r catalogRepo) List(_ context.Context, filter catalog.ListFilter) ([]entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make(map[id.ID]bool, len(filter.IDs))
	for _, pid := range filter.IDs {
		ids[pid] = true
	}
	search := strings.ToLower(filter.Search)

	out := []entity.Product{}
	for _, p := range r.s.products {
		if filter.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *filter.CategoryID) {
			continue
		}
		if len(ids) > 0 && !ids[p.ID] {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r catalogRepo) SetThreshold(ctx context.Context, productID id.ID, t entity.Threshold) error {
	if !InTx(ctx) {
		return ErrNoTransaction
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return apperror.NewProductNotFound(productID)
	}
	p.LowStockOverride, p.LowStockThreshold = t.Columns()
	r.s.products[productID] = p
	return nil
}

func (r catalogRepo) ClearOverrides(ctx context.Context) (int64, error) {
	if !InTx(ctx) {
		return 0, ErrNoTransaction
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for pid, p := range r.s.products {
		if p.LowStockOverride {
			n++
		}
		p.LowStockOverride, p.LowStockThreshold = false, nil
		r.s.products[pid] = p
	}
	return n, nil
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) LockBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error) {
	if !InTx(ctx) {
		return entity.StockBalance{}, ErrNoTransaction
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[productID]
	if !ok {
		b = entity.StockBalance{ProductID: productID}
		r.s.balances[productID] = b
	}
	return b, nil
}

func (r ledgerRepo) AppendMovement(ctx context.Context, m entity.StockMovement) (entity.StockBalance, error) {
	if !InTx(ctx) {
		return entity.StockBalance{}, ErrNoTransaction
	}
	if m.Delta == 0 {
		return entity.StockBalance{}, apperror.NewValidation("delta must be non-zero")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.appendLocked(m), nil
}

func (r ledgerRepo) ListMovements(_ context.Context, productID id.ID, limit, offset int) ([]entity.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.StockMovement
	for _, m := range r.s.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return page(newestFirst(out), limit, offset), nil
}

func (r ledgerRepo) SearchMovements(_ context.Context, f stock.MovementFilter) ([]entity.MovementView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.SearchErr != nil {
		return nil, r.s.SearchErr
	}
	reasons := make(map[entity.Reason]bool, len(f.Reasons))
	for _, reason := range f.Reasons {
		reasons[reason] = true
	}
	search := strings.ToLower(f.Search)

	var matched []entity.StockMovement
	for _, m := range r.s.movements {
		p := r.s.products[m.ProductID]
		switch {
		case f.ProductID != nil && m.ProductID != *f.ProductID:
		case f.BatchID != nil && (m.BatchID == nil || *m.BatchID != *f.BatchID):
		case f.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *f.CategoryID):
		case len(reasons) > 0 && !reasons[m.Reason]:
		case search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search):
		case f.FromDate != nil && m.CreatedAt.Before(*f.FromDate):
		case f.ToDate != nil && m.CreatedAt.After(*f.ToDate):
		default:
			matched = append(matched, m)
		}
	}

	movements := page(newestFirst(matched), f.Limit, f.Offset)
	out := make([]entity.MovementView, len(movements))
	for i, m := range movements {
		p := r.s.products[m.ProductID]
		out[i] = entity.MovementView{StockMovement: m, ProductName: p.Name, SKU: p.SKU}
	}
	return out, nil
}

func (r ledgerRepo) LatestMovement(_ context.Context, productID id.ID) (*entity.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.StockMovement
	for _, m := range r.s.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	latest := newestFirst(out)[0]
	return &latest, nil
}

func (r ledgerRepo) PhysicalStock(_ context.Context, productIDs []id.ID) (map[id.ID]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[id.ID]int, len(productIDs))
	for _, pid := range productIDs {
		out[pid] = r.s.balances[pid].Physical
	}
	return out, nil
}

func (r ledgerRepo) RecalculateBalances(ctx context.Context) (int64, error) {
	if !InTx(ctx) {
		return 0, ErrNoTransaction
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var fixed int64
	for pid, b := range r.s.balances {
		if sum := r.s.sumLocked(pid); sum != b.Physical {
			b.Physical = sum
			r.s.balances[pid] = b
			fixed++
		}
	}
	return fixed, nil
}

// newestFirst orders by created_at then id, both descending. Append order breaks
// remaining ties so that equal clocks in tests stay deterministic.
func newestFirst(ms []entity.StockMovement) []entity.StockMovement {
	out := make([]entity.StockMovement, len(ms))
	for i := range ms {
		out[len(ms)-1-i] = ms[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type settingsStore struct{ s *Store }

func (st settingsStore) Get(_ context.Context) (threshold.Settings, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.s.settings, nil
}

func (st settingsStore) Set(_ context.Context, value int, expectedVersion *int64, actor *id.ID) (threshold.Settings, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if expectedVersion != nil && *expectedVersion != st.s.settings.Version {
		return threshold.Settings{}, apperror.NewConcurrentModification("inventory_settings", 1)
	}
	st.s.settings = threshold.Settings{
		DefaultLowStockThreshold: value,
		Version:                  st.s.settings.Version + 1,
		UpdatedAt:                time.Now().UTC(),
		UpdatedBy:                actor,
	}
	return st.s.settings, nil
}

type orderReader struct{ s *Store }

func (o orderReader) ReservedQuantities(_ context.Context, statuses []reservation.OrderStatus, productIDs []id.ID) (map[id.ID]int, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	want := make(map[id.ID]bool, len(productIDs))
	for _, pid := range productIDs {
		want[pid] = true
	}
	out := make(map[id.ID]int)
	for _, ord := range o.s.orders {
		if !hasStatus(statuses, ord.status) {
			continue
		}
		for pid, qty := range ord.lines {
			if want[pid] {
				out[pid] += qty
			}
		}
	}
	return out, nil
}

func (o orderReader) ReservingOrders(_ context.Context, statuses []reservation.OrderStatus, productID id.ID) ([]reservation.ReservedOrder, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	out := []reservation.ReservedOrder{}
	for _, ord := range o.s.orders {
		qty, ok := ord.lines[productID]
		if !ok || !hasStatus(statuses, ord.status) {
			continue
		}
		out = append(out, reservation.ReservedOrder{
			OrderID:       ord.id,
			Status:        ord.status,
			PaymentStatus: ord.paymentStatus,
			Quantity:      qty,
			CreatedAt:     ord.createdAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func hasStatus(statuses []reservation.OrderStatus, status reservation.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Auditor collects audit entries.
type Auditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

// Record implements audit.Recorder.
func (a *Auditor) Record(_ context.Context, entry audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

// Entries returns recorded entries in order.
func (a *Auditor) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// StockService wires a stock service over the store.
func (s *Store) StockService(auditor audit.Recorder, opts ...stock.ServiceOption) *stock.Service {
	return stock.NewService(s.Ledger(), s.Catalog(), s.TxManager(), s.Publisher(), auditor, opts...)
}
