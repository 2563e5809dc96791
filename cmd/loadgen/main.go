package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/geohash-udf/internal/function"
	"github.com/mohammed-shakir/geohash-udf/internal/ingest"
	"github.com/mohammed-shakir/geohash-udf/internal/logger"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

type point struct {
	id       string
	lat, lon float64
	version  uint64
}

// moves p by up to step degrees, clamped to valid coordinates
func (p *point) walk(r *rand.Rand, step float64) {
	p.lat = math.Max(-90, math.Min(90, p.lat+(r.Float64()*2-1)*step))
	p.lon += (r.Float64()*2 - 1) * step
	if p.lon > 180 {
		p.lon -= 360
	} else if p.lon < -180 {
		p.lon += 360
	}
	p.version++
}

// every nullEvery-th event carries a missing latitude to exercise null handling
func nextEvent(p *point, layer string, n, nullEvery int) ingest.Event {
	lat := function.Number(p.lat)
	if nullEvery > 0 && n%nullEvery == 0 {
		lat = function.String("NA")
	}
	return ingest.Event{
		Version: p.version,
		Op:      ingest.OpUpsert,
		Layer:   layer,
		ID:      p.id,
		Lat:     lat,
		Lon:     function.Number(p.lon),
		TS:      time.Now().UTC(),
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("KAFKA_TOPIC", "point-updates")
	layer := getenv("LOADGEN_LAYER", "drivers")
	points := getint("LOADGEN_POINTS", 100)
	events := getint("LOADGEN_EVENTS", 10000)
	rate := getint("LOADGEN_RATE", 500)
	nullEvery := getint("LOADGEN_NULL_EVERY", 0)

	zl := logger.Build(logger.Config{Level: getenv("LOG_LEVEL", "info"), Service: "loadgen", Component: "producer"}, os.Stdout)
	log := logger.NewSlog(&zl)

	pub, err := ingest.NewPublisher(brokers, topic, 4096, log)
	if err != nil {
		log.Error("create publisher", "err", err)
		return 1
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Error("close publisher", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := rand.New(rand.NewPCG(1, 2))
	fleet := make([]*point, points)
	for i := range fleet {
		fleet[i] = &point{
			id:  fmt.Sprintf("p-%05d", i),
			lat: r.Float64()*120 - 60,
			lon: r.Float64()*360 - 180,
		}
	}

	interval := time.Second / time.Duration(max(rate, 1))
	tick := time.NewTicker(interval)
	defer tick.Stop()

	start := time.Now()
	sent := 0
	for n := 1; n <= events; n++ {
		select {
		case <-ctx.Done():
			log.Info("interrupted", "sent", sent)
			return 0
		case <-tick.C:
		}
		p := fleet[r.IntN(len(fleet))]
		p.walk(r, 0.01)
		if pub.Publish(nextEvent(p, layer, n, nullEvery)) {
			sent++
		}
	}

	log.Info("load generation done",
		"sent", sent,
		"dropped", pub.Dropped(),
		"topic", topic,
		"elapsed", time.Since(start).String())
	return 0
}
