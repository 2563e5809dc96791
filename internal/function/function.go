// Package function adapts the geohash codec to a query-engine style function:
// argument validation at bind time, per-row coercion, and null propagation.
package function

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/geohash-udf/internal/core/observability"
	"github.com/mohammed-shakir/geohash-udf/internal/geohash"
)

const (
	Name          = "geohash"
	DefaultLength = 4
	arity         = 2
)

// DefaultMissing holds the string values treated as an absent coordinate.
var DefaultMissing = []string{"", "NA"}

type RangePolicy int

const (
	// PolicyFail returns the codec's range error to the caller.
	PolicyFail RangePolicy = iota
	// PolicyNull maps an out-of-range coordinate to a null result.
	PolicyNull
)

func ParseRangePolicy(s string) (RangePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "error":
		return PolicyFail, nil
	case "null":
		return PolicyNull, nil
	default:
		return PolicyFail, errors.New(`range policy must be "fail" or "null"`)
	}
}

type Descriptor struct {
	Name          string
	Usage         string
	Extended      string
	Deterministic bool
}

type options struct {
	length  int
	missing []string
	policy  RangePolicy
}

type Option func(*options)

// WithLength sets the number of geohash characters returned (1..geohash.MaxPrecision).
func WithLength(n int) Option {
	return func(o *options) { o.length = n }
}

// WithMissing replaces the set of string sentinels that mean "no value".
func WithMissing(sentinels ...string) Option {
	return func(o *options) { o.missing = append([]string(nil), sentinels...) }
}

func WithRangePolicy(p RangePolicy) Option {
	return func(o *options) { o.policy = p }
}

// converts one runtime value; ok=false means the argument is null
type converter func(v Value) (f float64, ok bool)

// Function is a bound geohash(latitude, longitude) call site. It holds no
// mutable state and may be evaluated from many goroutines.
type Function struct {
	desc    Descriptor
	types   [arity]ArgType
	conv    [arity]converter
	length  int
	missing map[string]struct{}
	policy  RangePolicy
}

// Bind validates the declared argument types once and selects a coercion per
// argument.
func Bind(types []ArgType, opts ...Option) (*Function, error) {
	o := options{length: DefaultLength, missing: DefaultMissing, policy: PolicyFail}
	for _, fn := range opts {
		fn(&o)
	}

	if len(types) != arity {
		return nil, &ArgumentCountError{Name: Name, Got: len(types), Want: arity}
	}
	if o.length < 1 || o.length > geohash.MaxPrecision {
		return nil, &geohash.PrecisionError{Precision: o.length}
	}

	f := &Function{
		desc: Descriptor{
			Name:          Name,
			Usage:         "returns a geohash of the provided latitude and longitude values",
			Extended:      "select geohash(latitude, longitude) from weather limit 10;",
			Deterministic: true,
		},
		length:  o.length,
		missing: make(map[string]struct{}, len(o.missing)),
		policy:  o.policy,
	}
	for _, s := range o.missing {
		f.missing[strings.TrimSpace(s)] = struct{}{}
	}

	for i, t := range types {
		f.types[i] = t
		switch {
		case t == TypeVoid:
			f.conv[i] = alwaysNull
		case t.IsStringLike(), t.IsFloating():
			f.conv[i] = f.coerce
		default:
			return nil, &ArgumentTypeError{Name: Name, Index: i, Type: t}
		}
	}
	return f, nil
}

func (f *Function) Descriptor() Descriptor { return f.desc }
func (f *Function) Length() int            { return f.length }
func (f *Function) ArgTypes() []ArgType    { return append([]ArgType(nil), f.types[:]...) }

// DisplayString renders the call as it would appear in a query plan.
func (f *Function) DisplayString(args ...string) string {
	return f.desc.Name + "(" + strings.Join(args, ", ") + ")"
}

// Evaluate returns the geohash for one row at the bound length. ok is false
// when either argument is null or missing.
func (f *Function) Evaluate(args []Value) (hash string, ok bool, err error) {
	return f.EvaluateAt(args, f.length)
}

// EvaluateAt is Evaluate with an explicit output length.
func (f *Function) EvaluateAt(args []Value, length int) (string, bool, error) {
	if len(args) != arity {
		observability.IncEvaluation("error")
		return "", false, &ArgumentCountError{Name: f.desc.Name, Got: len(args), Want: arity}
	}

	lat, ok := f.conv[0](args[0])
	if !ok {
		observability.IncEvaluation("null")
		return "", false, nil
	}
	lon, ok := f.conv[1](args[1])
	if !ok {
		observability.IncEvaluation("null")
		return "", false, nil
	}

	start := time.Now()
	hash, err := geohash.Encode(lat, lon, length)
	observability.ObserveCodec("encode", err, time.Since(start).Seconds())
	if err != nil {
		var re *geohash.RangeError
		if f.policy == PolicyNull && errors.As(err, &re) {
			observability.IncEvaluation("null")
			return "", false, nil
		}
		observability.IncEvaluation("error")
		return "", false, err
	}
	observability.IncEvaluation("ok")
	return hash, true, nil
}

func alwaysNull(Value) (float64, bool) { return 0, false }

// coerce turns a string or number argument into a double; nulls and
// missing sentinels report ok=false.
func (f *Function) coerce(v Value) (float64, bool) {
	switch v.kind {
	case kindNumber:
		return v.f, true
	case kindString:
		return f.parse(v.s)
	default:
		return 0, false
	}
}

// unparseable strings become null, as a host cast to double would
func (f *Function) parse(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if _, missing := f.missing[s]; missing {
		return 0, false
	}
	// NaN and Inf parse here and are rejected by the codec
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
