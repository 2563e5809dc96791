package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/geohash-udf/internal/core/config"
	"github.com/mohammed-shakir/geohash-udf/internal/function"
)

type fakeIndex struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	cells     map[string]string
	puts      int
}

func newFakeIndex() *fakeIndex { return &fakeIndex{cells: map[string]string{}} }

func (f *fakeIndex) Precision() int { return 6 }

func (f *fakeIndex) PutCell(_ context.Context, layer, id, cell string) error {
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells[layer+"/"+id] = cell
	f.puts++
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, layer, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cells[layer+"/"+id]
	delete(f.cells, layer+"/"+id)
	return ok, nil
}

func (f *fakeIndex) cell(layer, id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cells[layer+"/"+id]
	return c, ok
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "point-updates" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func event(version int, op, id, lat, lon string) []byte {
	return fmt.Appendf(nil,
		`{"version":%d,"op":%q,"layer":"drivers","id":%q,"lat":%s,"lon":%s,"ts":"2025-10-26T12:30:45Z"}`,
		version, op, id, lat, lon)
}

func msgAt(off int64, value []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "point-updates", Partition: 0, Offset: off, Value: value}
}

func newConsumerForTest(t *testing.T, idx Indexer, opts ...function.Option) *Consumer {
	t.Helper()
	cfg := Config{Brokers: []string{"x"}, Topic: "point-updates", GroupID: "g", DedupeSize: 16}
	c, err := New(cfg, slog.Default(), idx, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresIndex(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Fatalf("expected error for nil index")
	}
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	idx := newFakeIndex()
	c := newConsumerForTest(t, idx)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msgAt(10, event(1, "upsert", "car-1", "59.3293", "18.0686"))
	ch <- msgAt(11, event(2, "upsert", "car-1", `"57.64911"`, `"10.40744"`))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if cell, _ := idx.cell("drivers", "car-1"); cell != "u4pruy" {
		t.Fatalf("cell=%q want u4pruy (last write wins)", cell)
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	idx := newFakeIndex()
	idx.failFirst.Store(true)
	c := newConsumerForTest(t, idx)
	ctx := context.Background()

	msg := msgAt(5, event(1, "upsert", "car-1", "10", "10"))
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
	if _, ok := idx.cell("drivers", "car-1"); !ok {
		t.Fatalf("retried event was not applied")
	}
}

func TestFailure_StopsClaimWithoutMarking(t *testing.T) {
	idx := newFakeIndex()
	idx.failFirst.Store(true)
	c := newConsumerForTest(t, idx)

	s := &sess{ctx: t.Context()}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msgAt(1, event(1, "upsert", "car-1", "10", "10"))
	ch <- msgAt(2, event(1, "upsert", "car-2", "10", "10"))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err == nil {
		t.Fatalf("expected ConsumeClaim to surface the index error")
	}
	if len(s.marked) != 0 {
		t.Fatalf("no offsets should be marked; got %v", s.marked)
	}
}

func TestDedupe_StaleVersionsIgnored(t *testing.T) {
	idx := newFakeIndex()
	c := newConsumerForTest(t, idx)
	ctx := context.Background()

	for i, m := range []*sarama.ConsumerMessage{
		msgAt(1, event(2, "upsert", "car-1", "10", "10")),
		msgAt(2, event(1, "upsert", "car-1", "-10", "-10")),
		msgAt(3, event(2, "upsert", "car-1", "-10", "-10")),
	} {
		if err := c.ProcessOne(ctx, m); err != nil {
			t.Fatalf("msg %d: %v", i, err)
		}
	}
	if idx.puts != 1 {
		t.Fatalf("puts=%d want 1", idx.puts)
	}
	want, _, _ := c.fn.Evaluate([]function.Value{function.Number(10), function.Number(10)})
	if cell, _ := idx.cell("drivers", "car-1"); cell != want {
		t.Fatalf("cell=%q want %q", cell, want)
	}
}

func TestSkips_NullInvalidAndMalformed(t *testing.T) {
	idx := newFakeIndex()
	c := newConsumerForTest(t, idx)
	ctx := context.Background()

	for name, v := range map[string][]byte{
		"null lat":      event(1, "upsert", "a", "null", "10"),
		"missing NA":    event(1, "upsert", "b", `"NA"`, "10"),
		"unparseable":   event(1, "upsert", "c", `"north"`, "10"),
		"out of range":  event(1, "upsert", "d", "95", "10"),
		"bad op":        event(1, "move", "e", "1", "1"),
		"not json":      []byte("{"),
		"zero version":  event(0, "upsert", "f", "1", "1"),
		"bad lat token": []byte(`{"version":1,"op":"upsert","layer":"drivers","id":"g","lat":true,"ts":"2025-10-26T12:30:45Z"}`),
	} {
		if err := c.ProcessOne(ctx, msgAt(1, v)); err != nil {
			t.Fatalf("%s: expected skip, got %v", name, err)
		}
	}
	if idx.puts != 0 {
		t.Fatalf("puts=%d want 0", idx.puts)
	}
}

func TestDelete_RemovesPoint(t *testing.T) {
	idx := newFakeIndex()
	c := newConsumerForTest(t, idx)
	ctx := context.Background()

	if err := c.ProcessOne(ctx, msgAt(1, event(1, "upsert", "car-1", "1", "1"))); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := c.ProcessOne(ctx, msgAt(2, event(2, "delete", "car-1", "null", "null"))); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := idx.cell("drivers", "car-1"); ok {
		t.Fatalf("point still indexed after delete")
	}
}

func TestMissingSentinels_Configurable(t *testing.T) {
	idx := newFakeIndex()
	c := newConsumerForTest(t, idx, function.WithMissing("", "?"), function.WithLength(2))
	ctx := context.Background()

	if err := c.ProcessOne(ctx, msgAt(1, event(1, "upsert", "a", `"?"`, "1"))); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if idx.puts != 0 {
		t.Fatalf("custom sentinel was not treated as missing")
	}
	if c.fn.Length() != idx.Precision() {
		t.Fatalf("function length=%d want index precision %d", c.fn.Length(), idx.Precision())
	}
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	idx := newFakeIndex()
	c := newConsumerForTest(t, idx)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Value: event(1, "upsert", "a", "1", "1")}
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 2, Value: event(2, "upsert", "a", "2", "2")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 1, Value: event(1, "upsert", "b", "3", "3")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 2, Value: event(2, "upsert", "b", "4", "4")}
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestFromIngestCfg_Defaults(t *testing.T) {
	cfg := FromIngestCfg(config.IngestCfg{Brokers: " k1:9092, ,k2:9092 "})
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers=%v", cfg.Brokers)
	}
	if cfg.Topic != "point-updates" || cfg.GroupID != "geohash-indexer" || !cfg.InitialOffsetOldest {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
}

func TestVersionDedupe(t *testing.T) {
	d := newVersionDedupe(2)
	if d.stale("k", 1) {
		t.Fatalf("unseen key must not be stale")
	}
	d.applied("k", 3)
	if !d.stale("k", 3) || !d.stale("k", 2) || d.stale("k", 4) {
		t.Fatalf("unexpected staleness after applying 3")
	}
	d.applied("k", 1)
	if d.stale("k", 4) {
		t.Fatalf("older apply must not lower the watermark")
	}
}
