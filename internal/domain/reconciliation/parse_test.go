package reconciliation_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/domain/reconciliation"
	"hvacstock/internal/domain/registers/stock"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []reconciliation.Row
	}{
		{
			name:  "header and rows",
			input: "SKU,TargetQuantity\nAC-1,10\nFL-1,0\n",
			want: []reconciliation.Row{
				{Line: 2, Raw: "AC-1,10", SKU: "AC-1", Quantity: 10},
				{Line: 3, Raw: "FL-1,0", SKU: "FL-1", Quantity: 0},
			},
		},
		{
			name:  "lower-case header with BOM and CRLF",
			input: "\ufeffsku,targetquantity\r\nAC-1,3\r\n",
			want:  []reconciliation.Row{{Line: 2, Raw: "AC-1,3", SKU: "AC-1", Quantity: 3}},
		},
		{
			name:  "no header",
			input: "AC-1,7",
			want:  []reconciliation.Row{{Line: 1, Raw: "AC-1,7", SKU: "AC-1", Quantity: 7}},
		},
		{
			name:  "quoted fields",
			input: "\"SKU\",\"TargetQuantity\"\n\"AC,1\",\"4\"\n",
			want:  []reconciliation.Row{{Line: 2, Raw: "AC,1,4", SKU: "AC,1", Quantity: 4}},
		},
		{
			name:  "blank lines skipped",
			input: "SKU,TargetQuantity\n\nAC-1,1\n\n",
			want:  []reconciliation.Row{{Line: 3, Raw: "AC-1,1", SKU: "AC-1", Quantity: 1}},
		},
		{
			name:  "whole decimal accepted",
			input: "AC-1,50.0",
			want:  []reconciliation.Row{{Line: 1, Raw: "AC-1,50.0", SKU: "AC-1", Quantity: 50}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := reconciliation.Parse(strings.NewReader(tt.input), reconciliation.ParseOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestParse_InvalidRows(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		problem string
	}{
		{"non-numeric", "AC-1,abc", reconciliation.ProblemNotNumeric},
		{"empty quantity", "AC-1,", reconciliation.ProblemNotNumeric},
		{"fractional", "AC-1,2.5", reconciliation.ProblemFractional},
		{"negative", "AC-1,-4", reconciliation.ProblemNegative},
		{"too large", "AC-1,99999999999", reconciliation.ProblemTooLarge},
		{"one above the bound", "AC-1,1000000001", reconciliation.ProblemTooLarge},
		{"empty sku", " ,4", reconciliation.ProblemEmptySKU},
		{"sku too long", strings.Repeat("X", 101) + ",4", reconciliation.ProblemSKUTooLong},
		{"one column", "AC-1", reconciliation.ProblemColumnCount},
		{"three columns", "AC-1,4,extra", reconciliation.ProblemColumnCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "SKU,TargetQuantity\n" + tt.line + "\nOK-1,1\n"
			rows, err := reconciliation.Parse(strings.NewReader(input), reconciliation.ParseOptions{})
			require.NoError(t, err)
			require.Len(t, rows, 2)

			assert.False(t, rows[0].Valid())
			assert.Equal(t, 2, rows[0].Line)
			assert.Equal(t, tt.problem, rows[0].Problem)

			assert.True(t, rows[1].Valid(), "a bad line must not affect the next one")
		})
	}
}

func TestParse_QuantityAtBoundIsValid(t *testing.T) {
	rows, err := reconciliation.Parse(strings.NewReader("AC-1,1000000000\n"), reconciliation.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Valid())
	assert.Equal(t, stock.MaxQuantity, rows[0].Quantity)
}

func TestParse_LaterDuplicateIsInvalid(t *testing.T) {
	rows, err := reconciliation.Parse(strings.NewReader("AC-1,1\nAC-1,2\n"), reconciliation.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.True(t, rows[0].Valid())
	assert.Equal(t, 1, rows[0].Quantity)
	assert.False(t, rows[1].Valid())
	assert.Contains(t, rows[1].Problem, reconciliation.ProblemDuplicate)
	assert.Contains(t, rows[1].Problem, "line 1")
}

func TestParse_MaxRows(t *testing.T) {
	_, err := reconciliation.Parse(strings.NewReader("A,1\nB,2\nC,3\n"), reconciliation.ParseOptions{MaxRows: 2})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestParse_ReadError(t *testing.T) {
	_, err := reconciliation.Parse(failingReader{}, reconciliation.ParseOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}
