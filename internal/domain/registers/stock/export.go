package stock

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
)

// exportHeader is the column row of the movement journal export.
var exportHeader = []string{"Tarih", "Ürün", "SKU", "Delta", "Sebep", "Referans"}

const exportTimeLayout = "2006-01-02 15:04"

// WriteMovementsCSV writes movements as a spreadsheet-friendly CSV.
// Every field is double-quoted with embedded quotes doubled.
func WriteMovementsCSV(w io.Writer, movements []entity.MovementView) error {
	bw := bufio.NewWriter(w)

	if err := writeQuotedRow(bw, exportHeader); err != nil {
		return err
	}
	for _, m := range movements {
		row := []string{
			m.CreatedAt.Format(exportTimeLayout),
			m.ProductName,
			m.SKU,
			strconv.Itoa(m.Delta),
			string(m.Reason),
			orderReference(m.OrderID),
		}
		if err := writeQuotedRow(bw, row); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ExportMovements writes every movement matching filter, ignoring its paging.
func (s *Service) ExportMovements(ctx context.Context, w io.Writer, filter MovementFilter) error {
	all, err := s.CollectMovements(ctx, filter)
	if err != nil {
		return err
	}
	return WriteMovementsCSV(w, all)
}

// CollectMovements reads every movement matching filter, ignoring its paging.
func (s *Service) CollectMovements(ctx context.Context, filter MovementFilter) ([]entity.MovementView, error) {
	filter.Limit = MaxPageSize
	filter.Offset = 0

	var all []entity.MovementView
	for {
		page, err := s.repo.SearchMovements(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("export movements: %w", err)
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}
	return all, nil
}

// orderReference is the short order code shown to operators: the last 8
// characters of the order id, upper-cased.
func orderReference(orderID *id.ID) string {
	if orderID == nil {
		return ""
	}
	s := orderID.String()
	if len(s) > 8 {
		s = s[len(s)-8:]
	}
	return strings.ToUpper(s)
}

func writeQuotedRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}
