package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
)

// Publisher writes point events to Kafka without blocking the caller. Events
// are keyed by layer and id so every update of a point lands on the same
// partition and is consumed in order.
type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	stopped chan struct{}
	errDone chan struct{}

	mu      sync.Mutex
	dropped int
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("ingest: create async producer: %w", err)
	}
	return NewPublisherWithProducer(prod, topic, queueSize, logger), nil
}

// NewPublisherWithProducer wraps an existing producer; Close closes it.
func NewPublisherWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		logger:  logger,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("ingest: marshal event", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.DedupeKey()),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("ingest: producer error", "err", err.Err)
			}
		}
	}()

	return p
}

// Publish validates ev and queues it. It returns false when the event is
// invalid or the queue is full.
func (p *Publisher) Publish(ev Event) bool {
	if err := ev.Validate(); err != nil {
		p.logger.Debug("ingest: not publishing invalid event", "err", err)
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return false
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close flushes queued events and closes the producer.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("ingest: close producer: %w", err)
	}
	return nil
}
