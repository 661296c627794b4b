// Package reconciliation imports stock counts from SKU,TargetQuantity files.
//
// An import is previewed first and applied row by row: every row is its own
// atomic stock write and one failing row does not stop the others.
package reconciliation

import (
	"context"
	"fmt"
	"io"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/catalog"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/pkg/logger"
)

// Status summarizes an import.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Row results reported to the Observer.
const (
	ResultApplied   = "applied"
	ResultUnchanged = "unchanged"
	ResultFailed    = "failed"
	ResultInvalid   = "invalid"
)

const movementsTable = "inventory_movements"

// PreviewRow is a resolved line with the change it would make.
type PreviewRow struct {
	Line      int    `json:"line"`
	SKU       string `json:"sku"`
	ProductID id.ID  `json:"productId"`
	Name      string `json:"name"`
	Current   int    `json:"current"`
	Target    int    `json:"target"`
	Delta     int    `json:"delta"`
}

// RowFailure is a line that was not applied.
type RowFailure struct {
	Line    int    `json:"line"`
	SKU     string `json:"sku,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Preview is the validated content of a file.
type Preview struct {
	Rows    []PreviewRow `json:"rows"`
	Invalid []RowFailure `json:"invalid"`
}

// Changes counts rows with a non-zero delta.
func (p Preview) Changes() int {
	n := 0
	for _, r := range p.Rows {
		if r.Delta != 0 {
			n++
		}
	}
	return n
}

// Result is the outcome of Apply.
type Result struct {
	DryRun  bool    `json:"dryRun"`
	BatchID *id.ID  `json:"batchId,omitempty"`
	Status  Status  `json:"status"`
	Code    string  `json:"code,omitempty"`
	Preview Preview `json:"preview"`
	// Applied counts written rows; in a dry run, the rows that would be written.
	Applied   int          `json:"successCount"`
	Unchanged int          `json:"unchangedCount"`
	Failed    []RowFailure `json:"failed"`
}

// Writer is the part of the stock service the importer writes through.
type Writer interface {
	SetAbsolute(ctx context.Context, cmd stock.SetCommand) (entity.StockMovement, error)
}

// PhysicalReader reads on-hand stock.
type PhysicalReader interface {
	PhysicalStock(ctx context.Context, productIDs []id.ID) (map[id.ID]int, error)
}

// Observer receives one notification per processed row.
type Observer interface {
	ObserveImportRow(result string)
}

// Importer runs reconciliation imports.
type Importer struct {
	products catalog.Repository
	physical PhysicalReader
	writer   Writer
	auditor  audit.Recorder
	observer Observer
	maxRows  int
}

// Option configures an Importer.
type Option func(*Importer)

// WithObserver reports row results, typically to metrics.
func WithObserver(o Observer) Option {
	return func(i *Importer) { i.observer = o }
}

// WithMaxRows overrides DefaultMaxRows for Import.
func WithMaxRows(n int) Option {
	return func(i *Importer) { i.maxRows = n }
}

// NewImporter creates a new reconciliation importer.
func NewImporter(
	products catalog.Repository,
	physical PhysicalReader,
	writer Writer,
	auditor audit.Recorder,
	opts ...Option,
) *Importer {
	i := &Importer{
		products: products,
		physical: physical,
		writer:   writer,
		auditor:  auditor,
		maxRows:  DefaultMaxRows,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import parses, previews and applies a file.
func (i *Importer) Import(ctx context.Context, r io.Reader, dryRun bool, actorID id.ID) (Result, error) {
	rows, err := Parse(r, ParseOptions{MaxRows: i.maxRows})
	if err != nil {
		return Result{}, err
	}
	preview, err := i.Preview(ctx, rows)
	if err != nil {
		return Result{}, err
	}
	return i.Apply(ctx, preview, dryRun, actorID)
}

// Preview resolves SKUs and computes deltas against current stock.
// Rows keep file order. It never writes.
func (i *Importer) Preview(ctx context.Context, rows []Row) (Preview, error) {
	preview := Preview{Rows: []PreviewRow{}, Invalid: []RowFailure{}}

	skus := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Valid() {
			skus = append(skus, r.SKU)
		}
	}

	var products map[string]entity.Product
	if len(skus) > 0 {
		var err error
		if products, err = i.products.GetBySKUs(ctx, skus); err != nil {
			return Preview{}, fmt.Errorf("resolve skus: %w", err)
		}
	}

	ids := make([]id.ID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	current := map[id.ID]int{}
	if len(ids) > 0 {
		var err error
		if current, err = i.physical.PhysicalStock(ctx, ids); err != nil {
			return Preview{}, fmt.Errorf("physical stock: %w", err)
		}
	}

	for _, r := range rows {
		if !r.Valid() {
			preview.Invalid = append(preview.Invalid, RowFailure{
				Line:    r.Line,
				SKU:     r.SKU,
				Code:    apperror.CodeInvalidCsvRow,
				Message: r.Problem,
			})
			continue
		}
		p, ok := products[r.SKU]
		if !ok {
			preview.Invalid = append(preview.Invalid, RowFailure{
				Line:    r.Line,
				SKU:     r.SKU,
				Code:    apperror.CodeProductNotFound,
				Message: "unknown SKU",
			})
			continue
		}
		have := current[p.ID]
		preview.Rows = append(preview.Rows, PreviewRow{
			Line:      r.Line,
			SKU:       r.SKU,
			ProductID: p.ID,
			Name:      p.Name,
			Current:   have,
			Target:    r.Quantity,
			Delta:     r.Quantity - have,
		})
	}
	return preview, nil
}

// Apply writes the preview. A dry run returns the preview without writing.
//
// Targets are re-evaluated under each product's lock, so a row whose stock
// moved since the preview still lands on its target.
func (i *Importer) Apply(ctx context.Context, preview Preview, dryRun bool, actorID id.ID) (Result, error) {
	result := Result{
		DryRun:  dryRun,
		Preview: preview,
		Failed:  append([]RowFailure{}, preview.Invalid...),
	}

	if dryRun {
		for _, r := range preview.Rows {
			if r.Delta == 0 {
				result.Unchanged++
			} else {
				result.Applied++
			}
		}
		result.finish()
		return result, nil
	}

	for range preview.Invalid {
		i.observe(ResultInvalid)
	}

	batchID := id.New()
	result.BatchID = &batchID

	for _, r := range preview.Rows {
		if r.Delta == 0 {
			result.Unchanged++
			i.observe(ResultUnchanged)
			continue
		}

		_, err := i.writer.SetAbsolute(ctx, stock.SetCommand{
			ProductID: r.ProductID,
			Target:    r.Target,
			Reason:    entity.ReasonCSVImport,
			BatchID:   &batchID,
			ActorID:   actorID,
			Comment:   fmt.Sprintf("csv import line %d: %d -> %d", r.Line, r.Current, r.Target),
		})
		switch {
		case err == nil:
			result.Applied++
			i.observe(ResultApplied)
		case apperror.HasCode(err, apperror.CodeNoChange):
			result.Unchanged++
			i.observe(ResultUnchanged)
		default:
			result.Failed = append(result.Failed, failure(r, err))
			i.observe(ResultFailed)
			logger.Warn(ctx, "import row failed",
				"batch_id", batchID,
				"line", r.Line,
				"sku", r.SKU,
				"error", err,
			)
		}
	}
	result.finish()

	var actor *id.ID
	if !id.IsNil(actorID) {
		actor = &actorID
	}
	i.auditor.Record(ctx, audit.Entry{
		TableName: movementsTable,
		RowPK:     batchID.String(),
		Action:    audit.ActionCustom,
		After: map[string]any{
			"batch_id":  batchID.String(),
			"status":    string(result.Status),
			"applied":   result.Applied,
			"unchanged": result.Unchanged,
			"failed":    len(result.Failed),
		},
		Comment: "csv import",
		ActorID: actor,
	})

	logger.Info(ctx, "csv import applied",
		"batch_id", batchID,
		"status", result.Status,
		"applied", result.Applied,
		"unchanged", result.Unchanged,
		"failed", len(result.Failed),
	)
	return result, nil
}

func (r *Result) finish() {
	succeeded := r.Applied + r.Unchanged
	switch {
	case len(r.Failed) == 0:
		r.Status = StatusOK
	case succeeded == 0:
		r.Status = StatusFailed
		r.Code = apperror.CodePartialImportFailure
	default:
		r.Status = StatusPartial
		r.Code = apperror.CodePartialImportFailure
	}
}

func failure(r PreviewRow, err error) RowFailure {
	f := RowFailure{Line: r.Line, SKU: r.SKU, Code: apperror.CodeInternal, Message: "internal error"}
	if appErr, ok := apperror.AsAppError(err); ok {
		f.Code = appErr.Code
		f.Message = appErr.Message
	}
	return f
}

func (i *Importer) observe(result string) {
	if i.observer != nil {
		i.observer.ObserveImportRow(result)
	}
}
