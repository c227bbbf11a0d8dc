package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

// LatestKey is the fixed key of single-row collections.
const LatestKey = "latest"

// Store is the subset of the local store the adapters need.
type Store interface {
	Upsert(ctx context.Context, coll sqlite.Collection, row sqlite.Row) error
	UpsertMany(ctx context.Context, coll sqlite.Collection, rows []sqlite.Row) error
	GetAll(ctx context.Context, coll sqlite.Collection) ([]sqlite.Row, error)
	GetOne(ctx context.Context, coll sqlite.Collection, key string) (sqlite.Row, bool, error)
	Clear(ctx context.Context, coll sqlite.Collection) error
}

type Option func(*settings)

type settings struct {
	now func() time.Time
	log *zap.Logger
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *settings) { s.log = log }
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logger.Named("cache")
	}
	return s
}

// stamp is the write time recorded on every cached value.
type stamp struct {
	Timestamp int64
	CachedAt  string
}

func (s settings) stamp() stamp {
	now := s.now().UTC()
	return stamp{
		Timestamp: now.UnixMilli(),
		CachedAt:  now.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// collection reads and writes JSON values of type T in one store collection.
// Reads never fail: store errors are logged and yield empty results.
type collection[T any] struct {
	store Store
	name  sqlite.Collection
	settings
}

func (c collection[T]) row(key string, value T, st stamp) (sqlite.Row, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return sqlite.Row{}, fmt.Errorf("failed to marshal %s value %s: %w", c.name, key, err)
	}
	return sqlite.Row{Key: key, Data: data, Timestamp: st.Timestamp, CachedAt: st.CachedAt}, nil
}

func (c collection[T]) putOne(ctx context.Context, key string, value T, st stamp) error {
	row, err := c.row(key, value, st)
	if err != nil {
		return err
	}
	if err := c.store.Upsert(ctx, c.name, row); err != nil {
		metrics.CacheErrors.WithLabelValues(string(c.name), "write").Inc()
		return err
	}
	return nil
}

func (c collection[T]) putMany(ctx context.Context, keys []string, values []T, st stamp) error {
	rows := make([]sqlite.Row, 0, len(values))
	for i, v := range values {
		row, err := c.row(keys[i], v, st)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := c.store.UpsertMany(ctx, c.name, rows); err != nil {
		metrics.CacheErrors.WithLabelValues(string(c.name), "write").Inc()
		return err
	}
	return nil
}

// list returns every value, most recently written first. Values written at
// the same instant keep their stored order.
func (c collection[T]) list(ctx context.Context) []T {
	rows, err := c.store.GetAll(ctx, c.name)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(string(c.name), "read").Inc()
		c.log.Warn("Failed to read cache collection, continuing without cache",
			zap.String("collection", string(c.name)),
			zap.Error(err),
		)
		return nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp > rows[j].Timestamp
	})

	values := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := json.Unmarshal(r.Data, &v); err != nil {
			c.log.Warn("Skipping undecodable cache row",
				zap.String("collection", string(c.name)),
				zap.String("key", r.Key),
				zap.Error(err),
			)
			continue
		}
		values = append(values, v)
	}

	c.count(len(values) > 0)
	return values
}

func (c collection[T]) one(ctx context.Context, key string) (T, bool) {
	var zero T

	row, found, err := c.store.GetOne(ctx, c.name, key)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(string(c.name), "read").Inc()
		c.log.Warn("Failed to read cache row, continuing without cache",
			zap.String("collection", string(c.name)),
			zap.String("key", key),
			zap.Error(err),
		)
		return zero, false
	}
	if !found {
		c.count(false)
		return zero, false
	}

	var v T
	if err := json.Unmarshal(row.Data, &v); err != nil {
		c.log.Warn("Discarding undecodable cache row",
			zap.String("collection", string(c.name)),
			zap.String("key", key),
			zap.Error(err),
		)
		return zero, false
	}
	c.count(true)
	return v, true
}

func (c collection[T]) clear(ctx context.Context) error {
	if err := c.store.Clear(ctx, c.name); err != nil {
		metrics.CacheErrors.WithLabelValues(string(c.name), "clear").Inc()
		return err
	}
	c.log.Info("Cleared cache collection", zap.String("collection", string(c.name)))
	return nil
}

func (c collection[T]) count(hit bool) {
	if hit {
		metrics.CacheHits.WithLabelValues(string(c.name)).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(string(c.name)).Inc()
	}
}
