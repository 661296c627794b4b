package reconciliation

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/domain/registers/stock"
)

// Row problems reported for invalid lines.
const (
	ProblemColumnCount = "expected 2 columns: SKU,TargetQuantity"
	ProblemEmptySKU    = "empty SKU"
	ProblemSKUTooLong  = "SKU longer than 100 characters"
	ProblemNotNumeric  = "quantity is not a number"
	ProblemFractional  = "quantity must be a whole number"
	ProblemNegative    = "quantity must not be negative"
	ProblemTooLarge    = "quantity is too large"
	ProblemMalformed   = "malformed line"
	ProblemDuplicate   = "duplicate SKU"
)

// DefaultMaxRows bounds the number of data rows in one file.
const DefaultMaxRows = 5000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one parsed data line. A row is valid when Problem is empty; only
// valid rows carry SKU and Quantity.
type Row struct {
	Line     int    `json:"line"`
	Raw      string `json:"raw,omitempty"`
	SKU      string `json:"sku"`
	Quantity int    `json:"targetQuantity"`
	Problem  string `json:"problem,omitempty"`
}

// Valid reports whether the row can be previewed.
func (r Row) Valid() bool {
	return r.Problem == ""
}

// ParseOptions configures Parse.
type ParseOptions struct {
	// MaxRows fails the whole file when it has more data rows. Zero means DefaultMaxRows.
	MaxRows int
}

type record struct {
	SKU string `validate:"required,max=100"`
}

var validate = validator.New()

// Parse reads a SKU,TargetQuantity file.
//
// The header row is optional and matched case-insensitively; a leading UTF-8
// BOM and blank lines are ignored. Bad lines come back as invalid rows. Only a
// read failure or an oversized file is an error.
func Parse(r io.Reader, opts ParseOptions) ([]Row, error) {
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		rows  []Row
		seen  = make(map[string]int)
		first = true
	)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var line int
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, fmt.Errorf("read csv: %w", err)
			}
			first = false
			rows = append(rows, Row{Line: parseErr.StartLine, Problem: ProblemMalformed})
		} else {
			line, _ = reader.FieldPos(0)
			if first {
				first = false
				if isHeader(fields) {
					continue
				}
			}
			rows = append(rows, parseRecord(line, fields, seen))
		}

		if len(rows) > maxRows {
			return nil, apperror.NewValidation("import file has too many rows").
				WithDetail("max_rows", maxRows)
		}
	}
	return rows, nil
}

func isHeader(fields []string) bool {
	return len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "sku")
}

func parseRecord(line int, fields []string, seen map[string]int) Row {
	row := Row{Line: line, Raw: strings.Join(fields, ",")}
	if len(fields) != 2 {
		row.Problem = ProblemColumnCount
		return row
	}

	sku := strings.TrimSpace(fields[0])
	if err := validate.Struct(record{SKU: sku}); err != nil {
		row.Problem = skuProblem(err)
		return row
	}

	qty, problem := parseQuantity(fields[1])
	if problem != "" {
		row.Problem = problem
		return row
	}

	if firstLine, dup := seen[sku]; dup {
		row.Problem = fmt.Sprintf("%s (first seen on line %d)", ProblemDuplicate, firstLine)
		return row
	}
	seen[sku] = line

	row.SKU = sku
	row.Quantity = qty
	return row
}

func skuProblem(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
		return ProblemSKUTooLong
	}
	return ProblemEmptySKU
}

// parseQuantity accepts whole numbers, including forms like "50.0".
func parseQuantity(s string) (int, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ProblemNotNumeric
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ProblemNotNumeric
	}
	if !d.IsInteger() {
		return 0, ProblemFractional
	}
	if d.IsNegative() {
		return 0, ProblemNegative
	}
	if d.GreaterThan(decimal.NewFromInt(stock.MaxQuantity)) {
		return 0, ProblemTooLarge
	}
	return int(d.IntPart()), ""
}
