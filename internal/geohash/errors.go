package geohash

import "fmt"

// RangeError reports a coordinate that is non-finite or outside its axis range.
type RangeError struct {
	Axis  string
	Value float64
}

func (e *RangeError) Error() string {
	limit := 90
	if e.Axis == "longitude" {
		limit = 180
	}
	return fmt.Sprintf("geohash: %s %v out of range [-%d,%d]", e.Axis, e.Value, limit, limit)
}

type PrecisionError struct {
	Precision int
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("geohash: invalid precision %d (must be 1..%d)", e.Precision, MaxPrecision)
}

// FormatError reports a hash that cannot be decoded. Pos is -1 for an empty hash.
type FormatError struct {
	Hash string
	Pos  int
	Char rune
}

func (e *FormatError) Error() string {
	if e.Pos < 0 {
		return "geohash: empty hash"
	}
	return fmt.Sprintf("geohash: invalid character %q at position %d in %q", e.Char, e.Pos, e.Hash)
}
