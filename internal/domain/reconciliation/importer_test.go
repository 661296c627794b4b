package reconciliation_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/inventorytest"
	"hvacstock/internal/domain/reconciliation"
	"hvacstock/internal/domain/registers/stock"
)

type rowCounter map[string]int

func (c rowCounter) ObserveImportRow(result string) { c[result]++ }

type fixture struct {
	store    *inventorytest.Store
	auditor  *inventorytest.Auditor
	stock    *stock.Service
	importer *reconciliation.Importer
	rows     rowCounter
}

func newFixture() fixture {
	store := inventorytest.NewStore()
	auditor := &inventorytest.Auditor{}
	svc := store.StockService(auditor)
	rows := rowCounter{}
	imp := reconciliation.NewImporter(store.Catalog(), svc, svc, auditor, reconciliation.WithObserver(rows))
	return fixture{store: store, auditor: auditor, stock: svc, importer: imp, rows: rows}
}

func (f fixture) seed(t *testing.T, productID id.ID, qty int) {
	t.Helper()
	_, err := f.stock.Adjust(context.Background(), stock.AdjustCommand{ProductID: productID, Delta: qty, Reason: entity.ReasonPOReceipt})
	require.NoError(t, err)
}

func TestImport_PartialFailure(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "SKU1")
	ctx := context.Background()
	actor := id.New()

	res, err := f.importer.Import(ctx, strings.NewReader("SKU,TargetQuantity\nSKU1,10\nSKU-UNKNOWN,5\n"), false, actor)
	require.NoError(t, err)

	assert.Equal(t, reconciliation.StatusPartial, res.Status)
	assert.Equal(t, apperror.CodePartialImportFailure, res.Code)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "SKU-UNKNOWN", res.Failed[0].SKU)
	assert.Equal(t, apperror.CodeProductNotFound, res.Failed[0].Code)
	assert.Equal(t, 3, res.Failed[0].Line)

	movements := f.store.Movements(p.ID)
	require.Len(t, movements, 1)
	assert.Equal(t, 10, movements[0].Delta)
	assert.Equal(t, entity.ReasonCSVImport, movements[0].Reason)
	require.NotNil(t, res.BatchID)
	require.NotNil(t, movements[0].BatchID)
	assert.Equal(t, *res.BatchID, *movements[0].BatchID)
	require.NotNil(t, movements[0].ActorID)
	assert.Equal(t, actor, *movements[0].ActorID)

	entries := f.auditor.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, audit.ActionCustom, last.Action)
	assert.Equal(t, res.BatchID.String(), last.RowPK)
	assert.Equal(t, "partial", last.After["status"])

	assert.Equal(t, rowCounter{reconciliation.ResultApplied: 1, reconciliation.ResultInvalid: 1}, f.rows)
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	f := newFixture()
	a := f.store.AddProduct("Klima", "AC-1")
	b := f.store.AddProduct("Filtre", "FL-1")
	f.seed(t, a.ID, 4)
	f.seed(t, b.ID, 2)
	ctx := context.Background()
	file := "SKU,TargetQuantity\nAC-1,10\nFL-1,2\nXX-9,1\nAC-1,3\n"

	first, err := f.importer.Import(ctx, strings.NewReader(file), true, id.New())
	require.NoError(t, err)
	second, err := f.importer.Import(ctx, strings.NewReader(file), true, id.New())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, first.DryRun)
	assert.Nil(t, first.BatchID)
	assert.Equal(t, 1, first.Applied)
	assert.Equal(t, 1, first.Unchanged)
	assert.Len(t, first.Failed, 2)
	assert.Equal(t, reconciliation.StatusPartial, first.Status)

	require.Len(t, first.Preview.Rows, 2)
	assert.Equal(t, reconciliation.PreviewRow{
		Line: 2, SKU: "AC-1", ProductID: a.ID, Name: "Klima", Current: 4, Target: 10, Delta: 6,
	}, first.Preview.Rows[0])
	assert.Equal(t, 0, first.Preview.Rows[1].Delta)
	assert.Equal(t, 1, first.Preview.Changes())

	assert.Len(t, f.store.Movements(a.ID), 1)
	assert.Len(t, f.store.Movements(b.ID), 1)
	assert.Empty(t, f.rows)
}

func TestApply_TargetReevaluatedUnderLock(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "AC-1")
	f.seed(t, p.ID, 4)
	ctx := context.Background()

	rows, err := reconciliation.Parse(strings.NewReader("AC-1,10"), reconciliation.ParseOptions{})
	require.NoError(t, err)
	preview, err := f.importer.Preview(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 6, preview.Rows[0].Delta)

	// stock moves between preview and apply
	f.seed(t, p.ID, 3)

	res, err := f.importer.Apply(ctx, preview, false, id.New())
	require.NoError(t, err)
	assert.Equal(t, reconciliation.StatusOK, res.Status)
	assert.Equal(t, 10, f.store.Balance(p.ID).Physical)

	movements := f.store.Movements(p.ID)
	assert.Equal(t, 3, movements[len(movements)-1].Delta)
}

func TestApply_AlreadyAtTargetIsUnchanged(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "AC-1")
	f.seed(t, p.ID, 4)
	ctx := context.Background()

	rows, err := reconciliation.Parse(strings.NewReader("AC-1,10"), reconciliation.ParseOptions{})
	require.NoError(t, err)
	preview, err := f.importer.Preview(ctx, rows)
	require.NoError(t, err)

	f.seed(t, p.ID, 6)

	res, err := f.importer.Apply(ctx, preview, false, id.New())
	require.NoError(t, err)
	assert.Equal(t, reconciliation.StatusOK, res.Status)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Unchanged)
	assert.Len(t, f.store.Movements(p.ID), 2)
}

type failingWriter struct {
	fail map[id.ID]error
	next reconciliation.Writer
}

func (w failingWriter) SetAbsolute(ctx context.Context, cmd stock.SetCommand) (entity.StockMovement, error) {
	if err := w.fail[cmd.ProductID]; err != nil {
		return entity.StockMovement{}, err
	}
	return w.next.SetAbsolute(ctx, cmd)
}

func TestApply_RowFailureDoesNotStopBatch(t *testing.T) {
	f := newFixture()
	a := f.store.AddProduct("A", "A-1")
	b := f.store.AddProduct("B", "B-1")
	c := f.store.AddProduct("C", "C-1")
	writer := failingWriter{
		fail: map[id.ID]error{
			a.ID: errors.New("statement timeout"),
			b.ID: apperror.NewInsufficientStock(b.ID.String(), -1, 0),
		},
		next: f.stock,
	}
	imp := reconciliation.NewImporter(f.store.Catalog(), f.stock, writer, f.auditor)

	res, err := imp.Import(context.Background(), strings.NewReader("A-1,1\nB-1,2\nC-1,3\n"), false, id.New())
	require.NoError(t, err)

	assert.Equal(t, reconciliation.StatusPartial, res.Status)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, apperror.CodeInternal, res.Failed[0].Code)
	assert.Equal(t, apperror.CodeInsufficientStock, res.Failed[1].Code)
	assert.Equal(t, 3, f.store.Balance(c.ID).Physical)
}

func TestApply_Status(t *testing.T) {
	tests := []struct {
		name string
		file string
		want reconciliation.Status
	}{
		{"all invalid", "XX,1\nYY,abc\n", reconciliation.StatusFailed},
		{"empty file", "SKU,TargetQuantity\n", reconciliation.StatusOK},
		{"all applied", "A-1,5\n", reconciliation.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.AddProduct("A", "A-1")
			res, err := f.importer.Import(context.Background(), strings.NewReader(tt.file), false, id.New())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}
