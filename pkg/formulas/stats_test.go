package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTotalReturn(t *testing.T) {
	tests := []struct {
		name      string
		prevClose float64
		prevSplit float64
		close     float64
		div       float64
		expected  float64
	}{
		{name: "plain price move", prevClose: 100, prevSplit: 1, close: 102, div: 0, expected: math.Log(1.02)},
		{name: "dividend on the later session", prevClose: 100, prevSplit: 1, close: 102, div: 1, expected: math.Log(1.03)},
		{name: "two for one split", prevClose: 100, prevSplit: 0.5, close: 50, div: 0, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogTotalReturn(tt.prevClose, tt.prevSplit, tt.close, tt.div)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}

	assert.InDelta(t, 0.0198, LogTotalReturn(100, 1, 102, 0), 1e-4)
	assert.InDelta(t, 0.0296, LogTotalReturn(100, 1, 102, 1), 1e-4)
}

func TestWealthIndex(t *testing.T) {
	w := WealthIndex([]float64{math.Log(1.1), math.Log(0.5)})
	require.Len(t, w, 3)
	assert.Equal(t, 1.0, w[0])
	assert.InDelta(t, 1.1, w[1], 1e-12)
	assert.InDelta(t, 0.55, w[2], 1e-12)

	assert.Equal(t, []float64{1}, WealthIndex(nil))
}

func TestMeanStdDevCorrelation(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
	assert.Equal(t, 0.0, StdDev(nil))
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, math.Sqrt(252), AnnualizedVolatility([]float64{1, 2, 3}), 1e-9)

	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1.0, Correlation([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
	assert.Equal(t, 0.0, Correlation([]float64{1}, []float64{1}))
	assert.Equal(t, 0.0, Correlation([]float64{1, 2}, []float64{1}))
}
