// Package inventory derives the per-product inventory view: physical,
// reserved and available stock with a status classification.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/catalog"
	"hvacstock/internal/domain/threshold"
)

// Status is a product's inventory classification.
type Status string

const (
	StatusOut      Status = "OUT"
	StatusCritical Status = "CRITICAL"
	StatusReserved Status = "RESERVED"
	StatusOK       Status = "OK"
)

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusOut, StatusCritical, StatusReserved, StatusOK:
		return st, nil
	default:
		return "", apperror.NewValidation("unknown inventory status").WithDetail("status", s)
	}
}

// Classify maps stock figures to a status. Rules apply in order:
// OUT when nothing is available, CRITICAL at or below the threshold,
// RESERVED when any stock is held, OK otherwise.
func Classify(physical, reserved, threshold int) Status {
	available := physical - reserved
	switch {
	case available <= 0:
		return StatusOut
	case available <= threshold:
		return StatusCritical
	case reserved > 0:
		return StatusReserved
	default:
		return StatusOK
	}
}

// Row is one product line of the inventory summary.
type Row struct {
	ProductID  id.ID            `json:"productId"`
	Name       string           `json:"name"`
	SKU        string           `json:"sku"`
	CategoryID *id.ID           `json:"categoryId,omitempty"`
	Physical   int              `json:"physical"`
	Reserved   int              `json:"reserved"`
	Available  int              `json:"available"`
	Threshold  int              `json:"threshold"`
	Override   entity.Threshold `json:"override"`
	Status     Status           `json:"status"`
}

// Filter narrows the summary.
type Filter struct {
	CategoryID *id.ID
	Search     string
	// Statuses keeps only rows in one of these statuses; empty keeps all.
	Statuses []Status
}

// PhysicalReader reads on-hand stock.
type PhysicalReader interface {
	PhysicalStock(ctx context.Context, productIDs []id.ID) (map[id.ID]int, error)
}

// ReservedReader reads reserved stock.
type ReservedReader interface {
	ReservedByProducts(ctx context.Context, productIDs []id.ID) (map[id.ID]int, error)
}

// Aggregator builds inventory rows from the catalog, the ledger and the
// reservation tracker. Nothing is cached; each call reads current state.
type Aggregator struct {
	products catalog.Repository
	physical PhysicalReader
	reserved ReservedReader
	settings threshold.SettingsStore
}

// NewAggregator creates a new inventory aggregator.
func NewAggregator(
	products catalog.Repository,
	physical PhysicalReader,
	reserved ReservedReader,
	settings threshold.SettingsStore,
) *Aggregator {
	return &Aggregator{
		products: products,
		physical: physical,
		reserved: reserved,
		settings: settings,
	}
}

// Summary returns inventory rows sorted by product name.
func (a *Aggregator) Summary(ctx context.Context, filter Filter) ([]Row, error) {
	products, err := a.products.List(ctx, catalog.ListFilter{
		CategoryID: filter.CategoryID,
		Search:     strings.TrimSpace(filter.Search),
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	rows, err := a.build(ctx, products)
	if err != nil {
		return nil, err
	}

	if len(filter.Statuses) > 0 {
		keep := make(map[Status]bool, len(filter.Statuses))
		for _, s := range filter.Statuses {
			keep[s] = true
		}
		filtered := rows[:0]
		for _, r := range rows {
			if keep[r.Status] {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].SKU < rows[j].SKU
	})
	return rows, nil
}

// ProductRow returns the inventory row of a single product.
func (a *Aggregator) ProductRow(ctx context.Context, productID id.ID) (Row, error) {
	product, err := a.products.Get(ctx, productID)
	if err != nil {
		return Row{}, err
	}
	rows, err := a.build(ctx, []entity.Product{product})
	if err != nil {
		return Row{}, err
	}
	return rows[0], nil
}

func (a *Aggregator) build(ctx context.Context, products []entity.Product) ([]Row, error) {
	if len(products) == 0 {
		return []Row{}, nil
	}

	ids := make([]id.ID, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	settings, err := a.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	physical, err := a.physical.PhysicalStock(ctx, ids)
	if err != nil {
		return nil, err
	}
	reserved, err := a.reserved.ReservedByProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(products))
	for i, p := range products {
		t := threshold.Resolve(p.Threshold(), settings)
		ph, rs := physical[p.ID], reserved[p.ID]
		rows[i] = Row{
			ProductID:  p.ID,
			Name:       p.Name,
			SKU:        p.SKU,
			CategoryID: p.CategoryID,
			Physical:   ph,
			Reserved:   rs,
			Available:  ph - rs,
			Threshold:  t,
			Override:   p.Threshold(),
			Status:     Classify(ph, rs, t),
		}
	}
	return rows, nil
}
