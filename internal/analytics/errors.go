package analytics

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUndefined is the root of every "metric has no value" outcome.
	ErrUndefined = errors.New("metric undefined")
	// ErrDivisionByZero reports a ratio whose denominator is zero.
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrUndefined)
	// ErrNoData reports a ranking or extreme over an empty population.
	ErrNoData = fmt.Errorf("%w: no data", ErrUndefined)
)

// UndefinedError names the metric that could not be computed.
type UndefinedError struct {
	Metric string
	Reason error
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Metric, e.Reason)
}

// Unwrap exposes Reason so errors.Is matches ErrDivisionByZero, ErrNoData and
// ErrUndefined.
func (e *UndefinedError) Unwrap() error { return e.Reason }

func undefined(metric string, reason error) error {
	return &UndefinedError{Metric: metric, Reason: reason}
}

// IsUndefined reports whether err means a metric has no value.
func IsUndefined(err error) bool { return errors.Is(err, ErrUndefined) }

// Percent is a percentage that may be undefined because its denominator is
// zero. Undefined values encode as null.
type Percent struct {
	Value   float64
	Defined bool
}

// percentOf returns num/den*100 rounded to two decimals.
func percentOf(num, den int) Percent {
	if den == 0 {
		return Percent{}
	}
	return Percent{Value: round2(float64(num) / float64(den) * 100), Defined: true}
}

// Err converts an undefined percent into a typed error for metric.
func (p Percent) Err(metric string) (float64, error) {
	if !p.Defined {
		return 0, undefined(metric, ErrDivisionByZero)
	}
	return p.Value, nil
}

// MarshalJSON encodes the value or null.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// MarshalYAML encodes the value or null.
func (p Percent) MarshalYAML() (interface{}, error) {
	if !p.Defined {
		return nil, nil
	}
	return p.Value, nil
}

func (p Percent) String() string {
	if !p.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", p.Value)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
