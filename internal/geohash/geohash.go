// Package geohash encodes coordinates into base-32 geohash strings and decodes them back
// into bounding boxes.
package geohash

import (
	"math"
	"strings"
)

const (
	alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

	bitsPerChar = 5

	// 60 bits, 30 per axis; float64 bisection stays exact well past this.
	MaxPrecision = 12
)

// maps a lowercase ascii byte to its 5-bit value, -1 if not in the alphabet
var inverse = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = int8(i)
	}
	return t
}()

// Encode returns the geohash of (lat, lon) with exactly precision characters.
func Encode(lat, lon float64, precision int) (string, error) {
	if err := validatePrecision(precision); err != nil {
		return "", err
	}
	if err := validateCoord(lat, lon); err != nil {
		return "", err
	}

	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	out := make([]byte, precision)
	even := true // longitude first
	for i := range out {
		var idx uint8
		for range bitsPerChar {
			idx <<= 1
			if even {
				mid := (lonLo + lonHi) / 2
				if lon >= mid {
					idx |= 1
					lonLo = mid
				} else {
					lonHi = mid
				}
			} else {
				mid := (latLo + latHi) / 2
				if lat >= mid {
					idx |= 1
					latLo = mid
				} else {
					latHi = mid
				}
			}
			even = !even
		}
		out[i] = alphabet[idx]
	}
	return string(out), nil
}

// Decode returns the bounding box of hash. Upper-case input is accepted.
func Decode(hash string) (Box, error) {
	if err := Validate(hash); err != nil {
		return Box{}, err
	}
	hash = strings.ToLower(hash)

	b := World()
	even := true
	for i := 0; i < len(hash); i++ {
		v := inverse[hash[i]]
		for shift := bitsPerChar - 1; shift >= 0; shift-- {
			bit := (v >> shift) & 1
			if even {
				mid := (b.MinLon + b.MaxLon) / 2
				if bit == 1 {
					b.MinLon = mid
				} else {
					b.MaxLon = mid
				}
			} else {
				mid := (b.MinLat + b.MaxLat) / 2
				if bit == 1 {
					b.MinLat = mid
				} else {
					b.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return b, nil
}

// DecodeCenter returns the centre point of the box denoted by hash.
func DecodeCenter(hash string) (lat, lon float64, err error) {
	b, err := Decode(hash)
	if err != nil {
		return 0, 0, err
	}
	lat, lon = b.Center()
	return lat, lon, nil
}

// Validate reports whether hash is a non-empty string over the geohash alphabet.
func Validate(hash string) error {
	if hash == "" {
		return &FormatError{Hash: hash, Pos: -1}
	}
	for i, r := range hash {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if r > 0x7f || inverse[r] < 0 {
			return &FormatError{Hash: hash, Pos: i, Char: r}
		}
	}
	return nil
}

func validatePrecision(p int) error {
	if p < 1 || p > MaxPrecision {
		return &PrecisionError{Precision: p}
	}
	return nil
}

func validateCoord(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return &RangeError{Axis: "latitude", Value: lat}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return &RangeError{Axis: "longitude", Value: lon}
	}
	return nil
}
