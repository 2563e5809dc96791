// Package kafkaconsumer applies point update events from Kafka to the cell index.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/geohash-udf/internal/core/observability"
	"github.com/mohammed-shakir/geohash-udf/internal/function"
	"github.com/mohammed-shakir/geohash-udf/internal/ingest"
	mylog "github.com/mohammed-shakir/geohash-udf/internal/logger"
)

// Indexer is the part of the cell index the consumer writes to.
type Indexer interface {
	PutCell(ctx context.Context, layer, id, cell string) error
	Remove(ctx context.Context, layer, id string) (bool, error)
	Precision() int
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	index  Indexer
	fn     *function.Function
	dedupe *versionDedupe
	zlog   *zerolog.Logger
}

// New binds a geohash function at the index precision. opts configure its
// missing-value sentinels and range policy; any length option is overridden.
func New(cfg Config, logger *slog.Logger, index Indexer, opts ...function.Option) (*Consumer, error) {
	if index == nil {
		return nil, errors.New("kafkaconsumer: missing dependency (index)")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = append(opts, function.WithLength(index.Precision()))
	fn, err := function.New(function.Name, []function.ArgType{function.TypeDouble, function.TypeDouble}, opts...)
	if err != nil {
		return nil, fmt.Errorf("kafkaconsumer: bind %s: %w", function.Name, err)
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		index:  index,
		fn:     fn,
		dedupe: newVersionDedupe(cfg.DedupeSize),
	}, nil
}

// WithZerolog sets the structured logger used for per-event lines.
func (c *Consumer) WithZerolog(zl *zerolog.Logger) *Consumer {
	c.zlog = zl
	return c
}

// consumes point events from kafka until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka point consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID,
		"precision", c.index.Precision())

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka point consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				obs.IncIngestError("consume")
				c.logger.Error("consumer error", "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies a single event. Malformed, stale and null-coordinate
// events are skipped with a nil error so their offsets advance; an index
// failure is returned so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	zl := mylog.FromContext(mylog.WithComponent(ctx, "kafka_consumer"), c.zlog)

	var ev ingest.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncIngestError("decode")
		zl.Error().Err(err).
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncIngestError("invalid")
		zl.Warn().Err(err).
			Str("kind", "invalid").
			Int64("offset", msg.Offset).
			Msg("skipping event")
		return nil
	}

	key := ev.DedupeKey()
	if c.dedupe.stale(key, ev.Version) {
		obs.IncIngestEvent(ev.Op, "stale")
		c.logger.Debug("stale event (skipping)", "layer", ev.Layer, "id", ev.ID, "version", ev.Version)
		return nil
	}

	switch ev.Op {
	case ingest.OpDelete:
		removed, err := c.index.Remove(ctx, ev.Layer, ev.ID)
		if err != nil {
			obs.IncIngestError("redis")
			return fmt.Errorf("index remove: %w", err)
		}
		c.dedupe.applied(key, ev.Version)
		obs.IncIngestEvent(ev.Op, "applied")
		zl.Info().
			Str("op", ev.Op).Str("layer", ev.Layer).Str("id", ev.ID).
			Bool("removed", removed).
			Msg("point removed")
		return nil

	default:
		cell, ok, err := c.fn.Evaluate([]function.Value{ev.Lat, ev.Lon})
		if err != nil {
			obs.IncIngestEvent(ev.Op, "invalid")
			zl.Warn().Err(err).
				Str("layer", ev.Layer).Str("id", ev.ID).
				Msg("coordinates rejected (skipping)")
			return nil
		}
		if !ok {
			obs.IncIngestEvent(ev.Op, "null")
			c.logger.Debug("null coordinates (skipping)", "layer", ev.Layer, "id", ev.ID)
			return nil
		}
		if err := c.index.PutCell(ctx, ev.Layer, ev.ID, cell); err != nil {
			obs.IncIngestError("redis")
			return fmt.Errorf("index put: %w", err)
		}
		c.dedupe.applied(key, ev.Version)
		obs.IncIngestEvent(ev.Op, "applied")
		mylog.FromContext(mylog.WithCell(ctx, cell), zl).Info().
			Str("op", ev.Op).Str("layer", ev.Layer).Str("id", ev.ID).
			Uint64("version", ev.Version).
			Msg("point indexed")
		return nil
	}
}
