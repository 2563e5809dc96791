// Package cellindex keeps point ids bucketed by geohash cell in Redis.
package cellindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/geohash-udf/internal/cache/keys"
	"github.com/mohammed-shakir/geohash-udf/internal/cache/redisstore"
	"github.com/mohammed-shakir/geohash-udf/internal/geohash"
)

const DefaultPrecision = 6

var ErrEmptyID = errors.New("cellindex: point id is required")

type CellIndex interface {
	// Put stores id at (lat, lon) and returns the cell it now lives in.
	Put(ctx context.Context, layer, id string, lat, lon float64) (string, error)
	// PutCell stores id in an already encoded cell of the index precision.
	PutCell(ctx context.Context, layer, id, cell string) error
	// Remove drops id from the index; removed=false if it was not indexed.
	Remove(ctx context.Context, layer, id string) (removed bool, err error)
	Locate(ctx context.Context, layer, id string) (cell string, ok bool, err error)
	Members(ctx context.Context, layer, cell string) ([]string, error)
	// Nearby returns the ids in the cell containing (lat, lon) and its neighbours.
	Nearby(ctx context.Context, layer string, lat, lon float64) (cell string, ids []string, err error)
	NearbyCell(ctx context.Context, layer, cell string) ([]string, error)
	Precision() int
}

type redisCellIndex struct {
	cli       *redisstore.Client
	precision int
	opTimeout time.Duration
}

// NewRedisIndex returns an index that buckets points at the given precision.
// opTimeout bounds every Redis round-trip; zero disables the bound.
func NewRedisIndex(cli *redisstore.Client, precision int, opTimeout time.Duration) (CellIndex, error) {
	if precision == 0 {
		precision = DefaultPrecision
	}
	if precision < 1 || precision > geohash.MaxPrecision {
		return nil, &geohash.PrecisionError{Precision: precision}
	}
	return &redisCellIndex{cli: cli, precision: precision, opTimeout: opTimeout}, nil
}

func (ci *redisCellIndex) Precision() int { return ci.precision }

func (ci *redisCellIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ci.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, ci.opTimeout)
}

func (ci *redisCellIndex) Put(ctx context.Context, layer, id string, lat, lon float64) (string, error) {
	if id == "" {
		return "", ErrEmptyID
	}
	cell, err := geohash.Encode(lat, lon, ci.precision)
	if err != nil {
		return "", fmt.Errorf("cellindex encode %q: %w", id, err)
	}
	if err := ci.PutCell(ctx, layer, id, cell); err != nil {
		return "", err
	}
	return cell, nil
}

func (ci *redisCellIndex) PutCell(ctx context.Context, layer, id, cell string) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := geohash.Validate(cell); err != nil {
		return err
	}
	if len(cell) != ci.precision {
		return fmt.Errorf("cellindex: cell %q has precision %d, index uses %d", cell, len(cell), ci.precision)
	}
	cell = strings.ToLower(cell)

	ctx, cancel := ci.withTimeout(ctx)
	defer cancel()

	locKey := keys.LocationKey(layer, id)
	err := ci.cli.Watch(ctx, "index_put", func(tx *redis.Tx) error {
		prev, had, err := locate(ctx, tx, locKey, id)
		if err != nil {
			return err
		}
		if had && prev == cell {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if had {
				p.SRem(ctx, keys.CellKey(layer, prev), id)
			}
			p.SAdd(ctx, keys.CellKey(layer, cell), id)
			p.HSet(ctx, locKey, id, cell)
			return nil
		})
		return err
	}, locKey)
	if err != nil {
		return fmt.Errorf("cellindex put %q: %w", id, err)
	}
	return nil
}

func (ci *redisCellIndex) Remove(ctx context.Context, layer, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	ctx, cancel := ci.withTimeout(ctx)
	defer cancel()

	locKey := keys.LocationKey(layer, id)
	var removed bool
	err := ci.cli.Watch(ctx, "index_remove", func(tx *redis.Tx) error {
		prev, had, err := locate(ctx, tx, locKey, id)
		if err != nil || !had {
			removed = false
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SRem(ctx, keys.CellKey(layer, prev), id)
			p.HDel(ctx, locKey, id)
			return nil
		})
		removed = err == nil
		return err
	}, locKey)
	if err != nil {
		return false, fmt.Errorf("cellindex remove %q: %w", id, err)
	}
	return removed, nil
}

// locate reads the current cell of id inside a watched transaction.
func locate(ctx context.Context, tx *redis.Tx, locKey, id string) (string, bool, error) {
	cell, err := tx.HGet(ctx, locKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cell, true, nil
}

func (ci *redisCellIndex) Locate(ctx context.Context, layer, id string) (string, bool, error) {
	if id == "" {
		return "", false, ErrEmptyID
	}
	ctx, cancel := ci.withTimeout(ctx)
	defer cancel()

	cell, ok, err := ci.cli.HGet(ctx, keys.LocationKey(layer, id), id)
	if err != nil {
		return "", false, fmt.Errorf("cellindex locate %q: %w", id, err)
	}
	return cell, ok, nil
}

func (ci *redisCellIndex) Members(ctx context.Context, layer, cell string) ([]string, error) {
	if err := geohash.Validate(cell); err != nil {
		return nil, err
	}
	ctx, cancel := ci.withTimeout(ctx)
	defer cancel()

	ids, err := ci.cli.SMembers(ctx, keys.CellKey(layer, strings.ToLower(cell)))
	if err != nil {
		return nil, fmt.Errorf("cellindex members %q: %w", cell, err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (ci *redisCellIndex) Nearby(ctx context.Context, layer string, lat, lon float64) (string, []string, error) {
	cell, err := geohash.Encode(lat, lon, ci.precision)
	if err != nil {
		return "", nil, err
	}
	ids, err := ci.NearbyCell(ctx, layer, cell)
	if err != nil {
		return "", nil, err
	}
	return cell, ids, nil
}

func (ci *redisCellIndex) NearbyCell(ctx context.Context, layer, cell string) ([]string, error) {
	cell = strings.ToLower(cell)
	around, err := geohash.Neighbors(cell)
	if err != nil {
		return nil, fmt.Errorf("cellindex neighbours of %q: %w", cell, err)
	}

	cellKeys := make([]string, 0, len(around)+1)
	cellKeys = append(cellKeys, keys.CellKey(layer, cell))
	for _, n := range around {
		cellKeys = append(cellKeys, keys.CellKey(layer, n))
	}

	ctx, cancel := ci.withTimeout(ctx)
	defer cancel()

	ids, err := ci.cli.SUnion(ctx, cellKeys...)
	if err != nil {
		return nil, fmt.Errorf("cellindex nearby %q: %w", cell, err)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
