package runs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

// ErrInvalidFilter is returned for jq expressions that do not parse.
var ErrInvalidFilter = errors.New("runs: invalid filter")

// Filter selects records with a jq expression evaluated against the JSON
// form of a record, e.g. `.outcome == "optimal" and .bpm > 100`.
type Filter struct {
	expr string
	code *gojq.Code
}

// NewFilter compiles expr.
func NewFilter(expr string) (*Filter, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, expr, err)
	}
	return &Filter{expr: expr, code: code}, nil
}

func (f *Filter) String() string {
	return f.expr
}

// Match reports whether the first result of the expression is truthy in
// the jq sense: anything but false and null.
func (f *Filter) Match(rec *Record) (bool, error) {
	input, err := toJQ(rec)
	if err != nil {
		return false, err
	}
	it := f.code.Run(input)
	v, ok := it.Next()
	if !ok {
		return false, nil
	}
	if err, ok := v.(error); ok {
		return false, fmt.Errorf("runs: filter %q: %w", f.expr, err)
	}
	return v != nil && v != false, nil
}

// toJQ converts rec to the generic map form gojq accepts.
func toJQ(rec *Record) (any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
