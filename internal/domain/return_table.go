package domain

import (
	"encoding/json"

	"cloud.google.com/go/civil"
)

// ReturnTable is the wide return table: one record per date (ascending), one
// column per instrument. A nil cell means the instrument had no return on
// that date; it is never zero-filled.
type ReturnTable struct {
	Instruments []string
	Records     []ReturnRecord
}

// ReturnRecord is one date of the wide return table. Values is aligned with
// ReturnTable.Instruments.
type ReturnRecord struct {
	Date   civil.Date
	Values []*float64
}

// Column returns the index of the instrument column, or -1.
func (t ReturnTable) Column(instrument string) int {
	for i, name := range t.Instruments {
		if name == instrument {
			return i
		}
	}
	return -1
}

// Value returns the cell at (record, column) and whether it is present.
func (t ReturnTable) Value(record, column int) (float64, bool) {
	if record < 0 || record >= len(t.Records) || column < 0 {
		return 0, false
	}
	values := t.Records[record].Values
	if column >= len(values) || values[column] == nil {
		return 0, false
	}
	return *values[column], true
}

// Len returns the number of dated records.
func (t ReturnTable) Len() int {
	return len(t.Records)
}

// ReturnTableWire is the columnar transport form of a ReturnTable, shared by
// the JSON and msgpack encoders.
type ReturnTableWire struct {
	Instruments []string     `json:"instruments" msgpack:"instruments"`
	Dates       []string     `json:"dates" msgpack:"dates"`
	Values      [][]*float64 `json:"values" msgpack:"values"`
}

// Wire converts the table to its transport form.
func (t ReturnTable) Wire() ReturnTableWire {
	w := ReturnTableWire{
		Instruments: append([]string{}, t.Instruments...),
		Dates:       make([]string, len(t.Records)),
		Values:      make([][]*float64, len(t.Records)),
	}
	for i, rec := range t.Records {
		w.Dates[i] = rec.Date.String()
		w.Values[i] = rec.Values
	}
	return w
}

// MarshalJSON encodes the table in its columnar transport form.
func (t ReturnTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Wire())
}
