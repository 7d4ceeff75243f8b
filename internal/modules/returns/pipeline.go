package returns

import (
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/internal/gateway"
	"github.com/rs/zerolog"
)

// Pipeline runs the reconstruction steps and logs what they discard.
type Pipeline struct {
	log zerolog.Logger
}

// NewPipeline creates a new reconstruction pipeline.
func NewPipeline(log zerolog.Logger) *Pipeline {
	return &Pipeline{
		log: log.With().Str("component", "returns_pipeline").Logger(),
	}
}

// History normalizes and joins the raw tables.
func (p *Pipeline) History(raw gateway.RawTables) (domain.History, error) {
	history, stats, err := normalizeAndJoin(raw)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to build price history")
		return domain.History{}, err
	}

	p.log.Info().
		Int("rows", len(history.Rows)).
		Strs("instruments", history.Instruments()).
		Int("dropped_prices", stats.Prices).
		Int("dropped_dividends", stats.Dividends).
		Int("dropped_splits", stats.Splits).
		Msg("Price history built")

	return history, nil
}

// Returns computes the wide return table.
func (p *Pipeline) Returns(history domain.History) (domain.ReturnTable, error) {
	table, err := ComputeReturns(history)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to compute returns")
		return domain.ReturnTable{}, err
	}

	p.log.Debug().
		Int("dates", table.Len()).
		Strs("instruments", table.Instruments).
		Msg("Returns computed")

	return table, nil
}
