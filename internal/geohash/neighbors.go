package geohash

import (
	"errors"
	"fmt"
)

type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// ErrNoNeighbor is returned for a direction that leaves the globe across a pole.
var ErrNoNeighbor = errors.New("geohash: no neighbor beyond pole")

var offsets = [...]struct{ dLat, dLon float64 }{
	North:     {1, 0},
	NorthEast: {1, 1},
	East:      {0, 1},
	SouthEast: {-1, 1},
	South:     {-1, 0},
	SouthWest: {-1, -1},
	West:      {0, -1},
	NorthWest: {1, -1},
}

func (d Direction) String() string {
	switch d {
	case North:
		return "n"
	case NorthEast:
		return "ne"
	case East:
		return "e"
	case SouthEast:
		return "se"
	case South:
		return "s"
	case SouthWest:
		return "sw"
	case West:
		return "w"
	case NorthWest:
		return "nw"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Neighbor returns the adjacent cell of the same precision in direction dir.
// Longitude wraps across the antimeridian. Hashes longer than MaxPrecision
// decode but have no neighbours and return a *PrecisionError.
func Neighbor(hash string, dir Direction) (string, error) {
	if dir < North || dir > NorthWest {
		return "", fmt.Errorf("geohash: unknown direction %d", int(dir))
	}
	b, err := decodeCell(hash)
	if err != nil {
		return "", err
	}
	return neighborOf(b, len(hash), dir)
}

// Neighbors returns the surrounding cells in N, NE, E, SE, S, SW, W, NW order,
// omitting those beyond a pole. The same length limit as Neighbor applies.
func Neighbors(hash string) ([]string, error) {
	b, err := decodeCell(hash)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(offsets))
	for d := North; d <= NorthWest; d++ {
		n, err := neighborOf(b, len(hash), d)
		if errors.Is(err, ErrNoNeighbor) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func decodeCell(hash string) (Box, error) {
	b, err := Decode(hash)
	if err != nil {
		return Box{}, err
	}
	if err := validatePrecision(len(hash)); err != nil {
		return Box{}, err
	}
	return b, nil
}

func neighborOf(b Box, precision int, dir Direction) (string, error) {
	off := offsets[dir]
	lat, lon := b.Center()
	lat += off.dLat * b.Height()
	lon += off.dLon * b.Width()

	if lat > 90 || lat < -90 {
		return "", ErrNoNeighbor
	}
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	return Encode(lat, lon, precision)
}
