package returns

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/pkg/formulas"
)

// Returns pairs each history row with the previous row of the same
// instrument (by date) and computes its log total return:
//
//	ln((close_i + div_amt_i) / (close_{i-1} * split_rto_{i-1}))
//
// The first row of every instrument has no return.
func Returns(history domain.History) ([]domain.ReturnRow, error) {
	rows := make([]domain.HistoryRow, len(history.Rows))
	copy(rows, history.Rows)
	sortHistory(rows)

	for _, r := range rows {
		if r.Close <= 0 || r.SplitRto <= 0 || r.DivAmt < 0 {
			return nil, fmt.Errorf("%w: %s on %s has close %v, div_amt %v, split_rto %v",
				ErrDataIntegrity, r.Instrument, r.Date, r.Close, r.DivAmt, r.SplitRto)
		}
	}

	out := make([]domain.ReturnRow, 0, len(rows))
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.Instrument != cur.Instrument {
			continue
		}
		out = append(out, domain.ReturnRow{
			Date:       cur.Date,
			Instrument: cur.Instrument,
			Rtn:        formulas.LogTotalReturn(prev.Close, prev.SplitRto, cur.Close, cur.DivAmt),
		})
	}
	return out, nil
}

// Pivot turns return rows into the wide table: one record per date
// ascending, one column per instrument sorted by identifier. Duplicate
// (date, instrument) returns are averaged. Absent cells stay nil.
func Pivot(rows []domain.ReturnRow) domain.ReturnTable {
	instSet := make(map[string]bool)
	dateSet := make(map[civil.Date]bool)
	for _, r := range rows {
		instSet[r.Instrument] = true
		dateSet[r.Date] = true
	}

	instruments := make([]string, 0, len(instSet))
	for inst := range instSet {
		instruments = append(instruments, inst)
	}
	sort.Strings(instruments)

	dates := make([]civil.Date, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	col := make(map[string]int, len(instruments))
	for i, inst := range instruments {
		col[inst] = i
	}
	recIdx := make(map[civil.Date]int, len(dates))
	for i, d := range dates {
		recIdx[d] = i
	}

	sums := make([][]float64, len(dates))
	counts := make([][]int, len(dates))
	for i := range dates {
		sums[i] = make([]float64, len(instruments))
		counts[i] = make([]int, len(instruments))
	}
	for _, r := range rows {
		i, j := recIdx[r.Date], col[r.Instrument]
		sums[i][j] += r.Rtn
		counts[i][j]++
	}

	table := domain.ReturnTable{
		Instruments: instruments,
		Records:     make([]domain.ReturnRecord, len(dates)),
	}
	for i, d := range dates {
		values := make([]*float64, len(instruments))
		for j := range instruments {
			if counts[i][j] == 0 {
				continue
			}
			mean := sums[i][j] / float64(counts[i][j])
			values[j] = &mean
		}
		table.Records[i] = domain.ReturnRecord{Date: d, Values: values}
	}
	return table
}

// ComputeReturns computes log total returns and pivots them into the wide
// return table. It is deterministic for a given history.
func ComputeReturns(history domain.History) (domain.ReturnTable, error) {
	rows, err := Returns(history)
	if err != nil {
		return domain.ReturnTable{}, err
	}
	return Pivot(rows), nil
}
