// Package inventorytest provides in-memory implementations of the inventory
// repositories for domain tests.
//
// All repositories share one Store. Transactions are serialized by the
// TxManager and roll back every store change on error, which gives the same
// per-product serialization a row lock gives in Postgres.
package inventorytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/events"
	"hvacstock/internal/domain/reservation"
	"hvacstock/internal/domain/threshold"
)

// ErrNoTransaction is returned by writes attempted outside RunInTransaction.
var ErrNoTransaction = errors.New("inventorytest: no transaction in context")

type order struct {
	id            id.ID
	status        reservation.OrderStatus
	paymentStatus string
	createdAt     time.Time
	lines         map[id.ID]int
}

// Store is the shared in-memory state.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	products  map[id.ID]entity.Product
	movements []entity.StockMovement
	balances  map[id.ID]entity.StockBalance
	settings  threshold.Settings
	orders    []order
	events    []events.Event

	// PublishErr, when set, fails every Publish.
	PublishErr error
	// SearchErr, when set, fails every SearchMovements.
	SearchErr error
}

// NewStore returns an empty store with the initial default threshold.
func NewStore() *Store {
	return &Store{
		products: make(map[id.ID]entity.Product),
		balances: make(map[id.ID]entity.StockBalance),
		settings: threshold.Settings{
			DefaultLowStockThreshold: threshold.InitialDefault,
			Version:                  1,
		},
	}
}

// AddProduct creates a product that follows the default threshold.
func (s *Store) AddProduct(name, sku string) entity.Product {
	p := entity.Product{ID: id.New(), Name: name, SKU: sku}
	s.PutProduct(p)
	return p
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// Product returns the stored product.
func (s *Store) Product(productID id.ID) entity.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID]
}

// SeedMovement writes a movement bypassing the service, for history set-up.
func (s *Store) SeedMovement(m entity.StockMovement) entity.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	s.appendLocked(m)
	return m
}

// AddOrder records an order with the given lines and returns its ID.
func (s *Store) AddOrder(status reservation.OrderStatus, createdAt time.Time, lines map[id.ID]int) id.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := order{id: id.New(), status: status, paymentStatus: "paid", createdAt: createdAt, lines: lines}
	s.orders = append(s.orders, o)
	return o.id
}

// SetOrderStatus moves an order to a new status.
func (s *Store) SetOrderStatus(orderID id.ID, status reservation.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].id == orderID {
			s.orders[i].status = status
		}
	}
}

// Movements returns a product's movements in append order.
func (s *Store) Movements(productID id.ID) []entity.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.StockMovement
	for _, m := range s.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

// SumDeltas is the ledger-derived physical stock.
func (s *Store) SumDeltas(productID id.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(productID)
}

// Balance returns the cached aggregate.
func (s *Store) Balance(productID id.ID) entity.StockBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[productID]
}

// CorruptBalance overwrites the cached aggregate, simulating drift.
func (s *Store) CorruptBalance(productID id.ID, physical int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[productID]
	b.ProductID = productID
	b.Physical = physical
	s.balances[productID] = b
}

// Events returns published events in order.
func (s *Store) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

// EventsOfType returns published events with the given type.
func (s *Store) EventsOfType(eventType string) []events.Event {
	var out []events.Event
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// CurrentSettings returns the stored settings.
func (s *Store) CurrentSettings() threshold.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Store) appendLocked(m entity.StockMovement) entity.StockBalance {
	s.movements = append(s.movements, m)
	b := s.balances[m.ProductID]
	b.ProductID = m.ProductID
	b.Physical += m.Delta
	mid := m.ID
	b.LastMovementID = &mid
	b.UpdatedAt = m.CreatedAt
	s.balances[m.ProductID] = b
	return b
}

func (s *Store) sumLocked(productID id.ID) int {
	sum := 0
	for _, m := range s.movements {
		if m.ProductID == productID {
			sum += m.Delta
		}
	}
	return sum
}

type snapshot struct {
	products  map[id.ID]entity.Product
	movements []entity.StockMovement
	balances  map[id.ID]entity.StockBalance
	settings  threshold.Settings
	events    []events.Event
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		products:  make(map[id.ID]entity.Product, len(s.products)),
		movements: append([]entity.StockMovement(nil), s.movements...),
		balances:  make(map[id.ID]entity.StockBalance, len(s.balances)),
		settings:  s.settings,
		events:    append([]events.Event(nil), s.events...),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.balances {
		snap.balances[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.movements = snap.movements
	s.balances = snap.balances
	s.settings = snap.settings
	s.events = snap.events
}

type txKey struct{}

// InTx reports whether ctx carries a fake transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// TxManager serializes transactions over the store.
type TxManager struct {
	store *Store
}

// TxManager returns the store's transaction manager.
func (s *Store) TxManager() *TxManager {
	return &TxManager{store: s}
}

// RunInTransaction runs fn exclusively. Nested calls join the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := m.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// Publisher returns an events.Publisher that stores events transactionally.
func (s *Store) Publisher() events.Publisher {
	return publisher{s}
}

type publisher struct{ s *Store }

func (p publisher) Publish(ctx context.Context, event events.Event) error {
	if p.s.PublishErr != nil {
		return p.s.PublishErr
	}
	if !InTx(ctx) {
		return ErrNoTransaction
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.events = append(p.s.events, event)
	return nil
}
