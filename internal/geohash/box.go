package geohash

import "fmt"

// Box is the latitude/longitude interval denoted by a geohash.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func World() Box {
	return Box{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
}

func (b Box) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Contains treats both box edges as inclusive.
func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

func (b Box) Width() float64  { return b.MaxLon - b.MinLon }
func (b Box) Height() float64 { return b.MaxLat - b.MinLat }

// Area in square degrees.
func (b Box) Area() float64 { return b.Width() * b.Height() }

// String representation matching the lat/lon bbox order used in responses
func (b Box) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}
