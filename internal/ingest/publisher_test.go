package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/geohash-udf/internal/function"
)

func TestPublisher_KeysByPointAndEncodesJSON(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = false
	prod := mocks.NewAsyncProducer(t, cfg)

	var got []Event
	var keys []string
	for range 2 {
		prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
			k, _ := m.Key.Encode()
			v, _ := m.Value.Encode()
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			keys = append(keys, string(k))
			got = append(got, ev)
			return nil
		})
	}

	p := NewPublisherWithProducer(prod, "point-updates", 8, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ev := Event{Version: 1, Op: OpUpsert, Layer: "drivers", ID: "car-1",
		Lat: function.Number(57.64911), Lon: function.String("10.40744"), TS: mustTS()}
	if !p.Publish(ev) {
		t.Fatalf("Publish returned false")
	}
	ev.Version = 2
	ev.Lat = function.Null()
	if !p.Publish(ev) {
		t.Fatalf("Publish returned false")
	}
	if p.Publish(Event{Op: "bogus"}) {
		t.Fatalf("invalid event must not be published")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(got) != 2 || got[0].Version != 1 || got[1].Version != 2 {
		t.Fatalf("published=%+v", got)
	}
	if keys[0] != keys[1] || keys[0] != ev.DedupeKey() {
		t.Fatalf("keys=%q want both %q", keys, ev.DedupeKey())
	}
	if !got[1].Lat.IsNull() || got[0].Lon.String() != `"10.40744"` {
		t.Fatalf("coordinates not preserved: %+v", got)
	}
}
