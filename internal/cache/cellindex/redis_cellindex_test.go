package cellindex

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/geohash-udf/internal/cache/keys"
	"github.com/mohammed-shakir/geohash-udf/internal/cache/redisstore"
	"github.com/mohammed-shakir/geohash-udf/internal/geohash"
)

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func newIndex(t *testing.T) (CellIndex, *miniredis.Miniredis) {
	t.Helper()
	cli, mr := newMini(t)
	idx, err := NewRedisIndex(cli, 6, time.Second)
	if err != nil {
		t.Fatalf("NewRedisIndex: %v", err)
	}
	return idx, mr
}

func TestNewRedisIndex_Precision(t *testing.T) {
	cli, _ := newMini(t)
	idx, err := NewRedisIndex(cli, 0, 0)
	if err != nil || idx.Precision() != DefaultPrecision {
		t.Fatalf("default precision: idx=%v err=%v", idx, err)
	}
	var pe *geohash.PrecisionError
	if _, err := NewRedisIndex(cli, 13, 0); !errors.As(err, &pe) {
		t.Fatalf("want PrecisionError, got %v", err)
	}
}

func TestPut_StoresCellAndLocation(t *testing.T) {
	idx, mr := newIndex(t)
	ctx := context.Background()

	cell, err := idx.Put(ctx, "drivers", "car-1", 57.64911, 10.40744)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if cell != "u4pruy" {
		t.Fatalf("cell=%q want u4pruy", cell)
	}
	if !mr.Exists(keys.CellKey("drivers", cell)) {
		t.Fatalf("cell set not written")
	}

	got, ok, err := idx.Locate(ctx, "drivers", "car-1")
	if err != nil || !ok || got != cell {
		t.Fatalf("Locate=(%q,%v,%v)", got, ok, err)
	}
	members, err := idx.Members(ctx, "drivers", "U4PRUY")
	if err != nil || !reflect.DeepEqual(members, []string{"car-1"}) {
		t.Fatalf("Members=(%v,%v)", members, err)
	}
}

func TestPut_MoveRemovesFromPreviousCell(t *testing.T) {
	idx, mr := newIndex(t)
	ctx := context.Background()

	from, err := idx.Put(ctx, "drivers", "car-1", 59.3293, 18.0686)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	to, err := idx.Put(ctx, "drivers", "car-1", 57.7089, 11.9746)
	if err != nil {
		t.Fatalf("Put move: %v", err)
	}
	if from == to {
		t.Fatalf("expected different cells, both %q", from)
	}
	if mr.Exists(keys.CellKey("drivers", from)) {
		t.Fatalf("previous cell %q still holds the id", from)
	}
	members, _ := idx.Members(ctx, "drivers", to)
	if !reflect.DeepEqual(members, []string{"car-1"}) {
		t.Fatalf("Members(%q)=%v", to, members)
	}
}

func TestPutCell_ConcurrentMovesKeepOneCell(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	cells, err := geohash.Neighbors("u4pruy")
	if err != nil || len(cells) != 8 {
		t.Fatalf("Neighbors=(%v,%v)", cells, err)
	}

	for i := range 50 {
		id := fmt.Sprintf("car-%d", i)
		var wg sync.WaitGroup
		errs := make(chan error, len(cells))
		for _, c := range cells {
			wg.Add(1)
			go func(cell string) {
				defer wg.Done()
				errs <- idx.PutCell(ctx, "l", id, cell)
			}(c)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("PutCell %s: %v", id, err)
			}
		}

		held := 0
		for _, c := range cells {
			members, err := idx.Members(ctx, "l", c)
			if err != nil {
				t.Fatalf("Members: %v", err)
			}
			if slices.Contains(members, id) {
				held++
			}
		}
		if held != 1 {
			t.Fatalf("%s present in %d cell sets after concurrent puts", id, held)
		}
		loc, ok, err := idx.Locate(ctx, "l", id)
		if err != nil || !ok {
			t.Fatalf("Locate(%s)=(%q,%v,%v)", id, loc, ok, err)
		}
		members, _ := idx.Members(ctx, "l", loc)
		if !slices.Contains(members, id) {
			t.Fatalf("%s located in %q but missing from its set", id, loc)
		}
	}
}

func TestPut_RejectsBadInput(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	if _, err := idx.Put(ctx, "drivers", "", 1, 1); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("want ErrEmptyID, got %v", err)
	}
	var re *geohash.RangeError
	if _, err := idx.Put(ctx, "drivers", "car-1", 91, 0); !errors.As(err, &re) {
		t.Fatalf("want RangeError, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	idx, mr := newIndex(t)
	ctx := context.Background()

	cell, _ := idx.Put(ctx, "drivers", "car-1", 10, 10)
	removed, err := idx.Remove(ctx, "drivers", "car-1")
	if err != nil || !removed {
		t.Fatalf("Remove=(%v,%v)", removed, err)
	}
	if mr.Exists(keys.CellKey("drivers", cell)) {
		t.Fatalf("cell set still present after remove")
	}
	if _, ok, _ := idx.Locate(ctx, "drivers", "car-1"); ok {
		t.Fatalf("location still present after remove")
	}

	removed, err = idx.Remove(ctx, "drivers", "car-1")
	if err != nil || removed {
		t.Fatalf("second Remove=(%v,%v)", removed, err)
	}
}

func TestNearby_IncludesNeighboursOnly(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	home, err := idx.Put(ctx, "drivers", "b", 48.8566, 2.3522)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	east, err := geohash.Neighbor(home, geohash.East)
	if err != nil {
		t.Fatalf("Neighbor: %v", err)
	}
	eLat, eLon, _ := geohash.DecodeCenter(east)
	if _, err := idx.Put(ctx, "drivers", "a", eLat, eLon); err != nil {
		t.Fatalf("Put east: %v", err)
	}
	if _, err := idx.Put(ctx, "drivers", "far", -33.8688, 151.2093); err != nil {
		t.Fatalf("Put far: %v", err)
	}
	if _, err := idx.Put(ctx, "riders", "other-layer", 48.8566, 2.3522); err != nil {
		t.Fatalf("Put other layer: %v", err)
	}

	cell, ids, err := idx.Nearby(ctx, "drivers", 48.8566, 2.3522)
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	if cell != home {
		t.Fatalf("cell=%q want %q", cell, home)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Fatalf("ids=%v want [a b]", ids)
	}
}

func TestMembers_RejectsInvalidCell(t *testing.T) {
	idx, _ := newIndex(t)
	var fe *geohash.FormatError
	if _, err := idx.Members(context.Background(), "drivers", "u4pa"); !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestPutCell_ValidatesPrecision(t *testing.T) {
	idx, _ := newIndex(t)
	ctx := context.Background()

	if err := idx.PutCell(ctx, "drivers", "car-1", "u4pr"); err == nil {
		t.Fatalf("expected precision mismatch error")
	}
	if err := idx.PutCell(ctx, "drivers", "car-1", "U4PRUY"); err != nil {
		t.Fatalf("PutCell: %v", err)
	}
	cell, ok, err := idx.Locate(ctx, "drivers", "car-1")
	if err != nil || !ok || cell != "u4pruy" {
		t.Fatalf("Locate=(%q,%v,%v)", cell, ok, err)
	}
}
