package kafkaconsumer

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/geohash-udf/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

// FromIngestCfg fills the consumer group settings from the service config.
func FromIngestCfg(ic config.IngestCfg) Config {
	brokers := ic.Brokers
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := ic.Topic
	if topic == "" {
		topic = "point-updates"
	}
	group := ic.GroupID
	if group == "" {
		group = "geohash-indexer"
	}

	return Config{
		Brokers:             splitCSV(brokers),
		Topic:               topic,
		GroupID:             group,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
		DedupeSize:          ic.DedupeSize,
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
