package main

import (
	"math/rand/v2"
	"testing"

	"github.com/mohammed-shakir/geohash-udf/internal/ingest"
)

func TestWalk_StaysInRangeAndBumpsVersion(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	p := &point{id: "p", lat: 89.999, lon: 179.999}
	for i := range 1000 {
		p.walk(r, 0.5)
		if p.lat < -90 || p.lat > 90 || p.lon < -180 || p.lon > 180 {
			t.Fatalf("step %d out of range: %+v", i, p)
		}
	}
	if p.version != 1000 {
		t.Fatalf("version=%d want 1000", p.version)
	}
}

func TestNextEvent_ValidAndNullInjection(t *testing.T) {
	p := &point{id: "p-1", lat: 10, lon: 20, version: 3}
	ev := nextEvent(p, "drivers", 4, 2)
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ev.Op != ingest.OpUpsert || ev.Version != 3 || ev.Lat.String() != `"NA"` {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev := nextEvent(p, "drivers", 3, 2); ev.Lat.String() != "10" {
		t.Fatalf("lat=%s want 10", ev.Lat.String())
	}
}
