// Package ingest defines the point update events consumed from Kafka.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/geohash-udf/internal/function"
)

const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Event moves a point to (Lat, Lon) or drops it. Version increases per
// (Layer, ID); Lat and Lon may be JSON numbers, strings or null.
type Event struct {
	Version uint64         `json:"version"`
	Op      string         `json:"op"`
	Layer   string         `json:"layer"`
	ID      string         `json:"id"`
	Lat     function.Value `json:"lat"`
	Lon     function.Value `json:"lon"`
	TS      time.Time      `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version == 0 {
		return fmt.Errorf("version must be >= 1")
	}
	switch e.Op {
	case OpUpsert, OpDelete:
	default:
		return fmt.Errorf("op must be upsert|delete")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return fmt.Errorf("layer is required")
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// DedupeKey identifies the point an event applies to.
func (e Event) DedupeKey() string {
	return e.Layer + "\x00" + e.ID
}
