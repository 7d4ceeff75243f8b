package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type cellKind uint8

const (
	cellNull cellKind = iota
	cellString
	cellNumber
)

// Cell is one value of a provider table: a string, a number or null.
// Empty strings are treated as null, as the provider uses them for missing data.
type Cell struct {
	kind cellKind
	str  string
	num  float64
}

// NullCell returns a missing value.
func NullCell() Cell { return Cell{} }

// StringCell returns a string value; "" becomes null.
func StringCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{kind: cellString, str: s}
}

// NumberCell returns a numeric value.
func NumberCell(f float64) Cell { return Cell{kind: cellNumber, num: f} }

// IsNull reports whether the cell carries no value.
func (c Cell) IsNull() bool { return c.kind == cellNull }

// Float returns the cell as a number. Numeric strings are accepted.
func (c Cell) Float() (float64, bool) {
	switch c.kind {
	case cellNumber:
		return c.num, true
	case cellString:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text returns the cell as a string; null is "".
func (c Cell) Text() string {
	switch c.kind {
	case cellString:
		return c.str
	case cellNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	default:
		return ""
	}
}

// UnmarshalJSON accepts null, strings, numbers and booleans.
func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = NullCell()
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = StringCell(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*c = StringCell(strconv.FormatBool(b))
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("unsupported cell value %s: %w", string(data), err)
		}
		*c = NumberCell(f)
	}
	return nil
}

// MarshalJSON writes the cell back in its JSON form.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case cellString:
		return json.Marshal(c.str)
	case cellNumber:
		return json.Marshal(c.num)
	default:
		return []byte("null"), nil
	}
}

// Frame is a provider table: ordered header labels and rows of cells.
type Frame struct {
	Headers []string `json:"headers"`
	Rows    [][]Cell `json:"rows"`
}

// Index returns the position of the header label, or -1. Matching ignores
// case and surrounding whitespace.
func (f *Frame) Index(label string) int {
	want := strings.TrimSpace(label)
	for i, h := range f.Headers {
		if strings.EqualFold(strings.TrimSpace(h), want) {
			return i
		}
	}
	return -1
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Cell returns the cell at (row, col); out of range reads as null.
func (f *Frame) Cell(row, col int) Cell {
	if row < 0 || row >= len(f.Rows) || col < 0 || col >= len(f.Rows[row]) {
		return NullCell()
	}
	return f.Rows[row][col]
}
