package dashboard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput is returned for widget values that cannot be used.
var ErrInvalidInput = errors.New("invalid input")

// ricPattern accepts Refinitiv instrument codes such as "AAPL.O", ".SPX" or "EUR=".
var ricPattern = regexp.MustCompile(`^[A-Za-z0-9._=^/#-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("ric", func(fl validator.FieldLevel) bool {
		return ricPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register ric validation: %v", err))
	}
	return v
}

// Inputs are the query widgets: the two instruments and the fetch range.
type Inputs struct {
	Benchmark  string           `json:"benchmark" validate:"required,max=32,ric"`
	Asset      string           `json:"asset" validate:"required,max=32,ric"`
	FetchRange domain.DateRange `json:"fetch_range"`
}

// Normalize trims surrounding whitespace from the identifiers.
func (in Inputs) Normalize() Inputs {
	in.Benchmark = strings.TrimSpace(in.Benchmark)
	in.Asset = strings.TrimSpace(in.Asset)
	return in
}

// Validate checks the identifiers and that the fetch range lies within
// [minDate, today].
func (in Inputs) Validate(minDate, today civil.Date) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q check", ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := in.FetchRange.Validate(); err != nil {
		return fmt.Errorf("%w: fetch range: %v", ErrInvalidInput, err)
	}
	if in.FetchRange.Start.Before(minDate) {
		return fmt.Errorf("%w: fetch range starts before %s", ErrInvalidInput, minDate)
	}
	if in.FetchRange.End.After(today) {
		return fmt.Errorf("%w: fetch range ends after %s", ErrInvalidInput, today)
	}
	return nil
}

// Instruments returns the identifiers to request, without duplicates.
func (in Inputs) Instruments() []string {
	if in.Benchmark == in.Asset {
		return []string{in.Benchmark}
	}
	return []string{in.Benchmark, in.Asset}
}

// ValidatePlotRange checks the plot range is an ordered pair of dates. It is
// not clamped to the advisory bounds.
func ValidatePlotRange(r domain.DateRange) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: plot range: %v", ErrInvalidInput, err)
	}
	return nil
}

// PlotBounds are the advisory bounds of the plot range for a fetch range:
// the day after the fetch start through the fetch end.
func PlotBounds(fetch domain.DateRange) domain.DateRange {
	return domain.DateRange{Start: fetch.Start.AddDays(1), End: fetch.End}
}
