package domain

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) civil.Date {
	return civil.Date{Year: 2023, Month: time.March, Day: d}
}

func ptr(v float64) *float64 { return &v }

func TestDateRange_Contains(t *testing.T) {
	r := DateRange{Start: day(2), End: day(4)}

	assert.False(t, r.Contains(day(1)))
	assert.True(t, r.Contains(day(2)))
	assert.True(t, r.Contains(day(3)))
	assert.True(t, r.Contains(day(4)))
	assert.False(t, r.Contains(day(5)))
}

func TestDateRange_Validate(t *testing.T) {
	assert.NoError(t, DateRange{Start: day(2), End: day(2)}.Validate())
	assert.Error(t, DateRange{Start: day(3), End: day(2)}.Validate())
	assert.Error(t, DateRange{}.Validate())
}

func TestHistory_Instruments(t *testing.T) {
	h := History{Rows: []HistoryRow{
		{Instrument: "IVV", Date: day(1)},
		{Instrument: "AAPL.O", Date: day(1)},
		{Instrument: "IVV", Date: day(2)},
	}}

	assert.Equal(t, []string{"IVV", "AAPL.O"}, h.Instruments())
}

func TestReturnTable_ValueAndColumn(t *testing.T) {
	table := ReturnTable{
		Instruments: []string{"AAPL.O", "IVV"},
		Records: []ReturnRecord{
			{Date: day(2), Values: []*float64{ptr(0.01), nil}},
		},
	}

	assert.Equal(t, 1, table.Column("IVV"))
	assert.Equal(t, -1, table.Column("MSFT.O"))

	v, ok := table.Value(0, 0)
	assert.True(t, ok)
	assert.Equal(t, 0.01, v)

	_, ok = table.Value(0, 1)
	assert.False(t, ok, "missing cell must not read as zero")

	_, ok = table.Value(3, 0)
	assert.False(t, ok)
}

func TestReturnTable_MarshalJSON(t *testing.T) {
	table := ReturnTable{
		Instruments: []string{"AAPL.O", "IVV"},
		Records: []ReturnRecord{
			{Date: day(2), Values: []*float64{ptr(0.5), nil}},
		},
	}

	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{"instruments":["AAPL.O","IVV"],"dates":["2023-03-02"],"values":[[0.5,null]]}`, string(data))
}
