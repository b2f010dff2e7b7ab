package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vjranagit/promdash/pkg/types"
)

// Store is the contract for time-series storage.
type Store interface {
	// Write writes samples to storage.
	Write(ctx context.Context, req *types.WriteRequest) error

	// QueryRange evaluates matching series over a range at a fixed step.
	QueryRange(ctx context.Context, q *types.RangeQuery) (*types.QueryResult, error)

	// QueryInstant evaluates matching series at a single instant.
	QueryInstant(ctx context.Context, q *types.InstantQuery) (*types.QueryResult, error)

	// Close closes the storage.
	Close() error
}

// Config holds storage configuration.
type Config struct {
	Path             string
	RetentionDays    int
	CompressionLevel int
	MaxOpenFiles     int
	EnableWAL        bool
	// Lookback bounds how far back an evaluation reaches for the most
	// recent sample at each step.
	Lookback time.Duration
	// BatchSize enables write batching when > 0.
	BatchSize int
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		RetentionDays:    30,
		CompressionLevel: 3,
		MaxOpenFiles:     1000,
		EnableWAL:        true,
		Lookback:         5 * time.Minute,
		BatchSize:        64,
	}
}

// blockDuration is the span of one storage block.
const blockDuration = time.Hour

// badgerStore implements Store using BadgerDB.
type badgerStore struct {
	cfg     *Config
	db      *badger.DB
	index   *Index
	codec   *Codec
	wal     *WAL
	batcher *batcher
	mu      sync.RWMutex
}

// New creates a new storage instance. When the WAL is enabled, entries
// left over from a previous run are replayed before the store accepts
// traffic.
func New(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 5 * time.Minute
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	codec, err := NewCodec(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	s := &badgerStore{
		cfg:   cfg,
		db:    db,
		index: NewIndex(),
		codec: codec,
	}

	if cfg.EnableWAL {
		if err := ReplayWAL(cfg.Path, s.writeDirect); err != nil {
			db.Close()
			return nil, fmt.Errorf("replaying WAL: %w", err)
		}
		wal, err := NewWAL(cfg.Path)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("opening WAL: %w", err)
		}
		s.wal = wal
	}

	if cfg.BatchSize > 0 {
		s.batcher = newBatcher(s.writeDirect, cfg.BatchSize)
	}

	return s, nil
}

// Write implements Store.Write.
func (s *badgerStore) Write(ctx context.Context, req *types.WriteRequest) error {
	if s.wal != nil {
		if err := s.wal.Append(req); err != nil {
			return fmt.Errorf("WAL append: %w", err)
		}
	}
	if s.batcher != nil {
		return s.batcher.Add(req)
	}
	return s.writeDirect(req)
}

// writeDirect persists a write request, bypassing the batcher.
func (s *badgerStore) writeDirect(req *types.WriteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range req.Series {
		series := &req.Series[i]
		seriesID, err := s.index.AddSeries(&series.Metric)
		if err != nil {
			return fmt.Errorf("indexing series: %w", err)
		}

		blocks := groupSamplesByBlock(series.Samples)
		for blockTime, samples := range blocks {
			if err := s.writeBlock(req.TenantID, seriesID, blockTime, samples); err != nil {
				return fmt.Errorf("writing block: %w", err)
			}
		}

		if len(series.Samples) > 0 {
			minT, maxT := sampleBounds(series.Samples)
			s.index.ObserveTimeRange(seriesID, minT, maxT)
		}
	}

	return nil
}

// groupSamplesByBlock groups samples into block-sized buckets keyed by
// the block start time in unix seconds.
func groupSamplesByBlock(samples []types.Sample) map[int64][]types.Sample {
	blocks := make(map[int64][]types.Sample)
	for _, sample := range samples {
		blockTime := sample.Timestamp.Truncate(blockDuration).Unix()
		blocks[blockTime] = append(blocks[blockTime], sample)
	}
	return blocks
}

func sampleBounds(samples []types.Sample) (minT, maxT int64) {
	minT = samples[0].Timestamp.Unix()
	maxT = minT
	for _, sample := range samples[1:] {
		ts := sample.Timestamp.Unix()
		if ts < minT {
			minT = ts
		}
		if ts > maxT {
			maxT = ts
		}
	}
	return minT, maxT
}

// writeBlock encodes a block of samples and writes it to BadgerDB.
// Samples written to an existing block are merged with its contents.
func (s *badgerStore) writeBlock(tenantID string, seriesID uint64, blockTime int64, samples []types.Sample) error {
	key := blockKey(tenantID, seriesID, blockTime)

	if existing, err := s.readBlockByKey(key); err == nil && len(existing) > 0 {
		samples = mergeSamples(existing, samples)
	}

	payload, err := s.codec.EncodeBlock(samples)
	if err != nil {
		return fmt.Errorf("encoding block: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// mergeSamples combines two sample sets, newer values winning on
// timestamp collisions, sorted by timestamp.
func mergeSamples(existing, incoming []types.Sample) []types.Sample {
	byTS := make(map[int64]types.Sample, len(existing)+len(incoming))
	for _, sample := range existing {
		byTS[sample.Timestamp.Unix()] = sample
	}
	for _, sample := range incoming {
		byTS[sample.Timestamp.Unix()] = sample
	}
	merged := make([]types.Sample, 0, len(byTS))
	for _, sample := range byTS {
		merged = append(merged, sample)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// QueryRange implements Store.QueryRange. Each matching series is
// evaluated at every aligned step in [Start, End], taking the most
// recent raw sample within the lookback window.
func (s *badgerStore) QueryRange(ctx context.Context, q *types.RangeQuery) (*types.QueryResult, error) {
	if q.Step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %s", q.Step)
	}
	if s.batcher != nil {
		if err := s.batcher.Flush(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.collect(ctx, q.TenantID, q.Query, q.Start.Add(-s.cfg.Lookback), q.End)
	if err != nil {
		return nil, err
	}

	result := &types.QueryResult{Series: make([]types.Series, 0, len(raw))}
	for i := range raw {
		aligned := alignSamples(raw[i].Samples, q.Start, q.End, q.Step, s.cfg.Lookback)
		if len(aligned) == 0 {
			continue
		}
		result.Series = append(result.Series, types.Series{
			Metric:  raw[i].Metric,
			Samples: aligned,
		})
	}
	return result, nil
}

// QueryInstant implements Store.QueryInstant. Each matching series
// contributes its most recent sample within the lookback window before
// the evaluation instant, stamped at that instant.
func (s *badgerStore) QueryInstant(ctx context.Context, q *types.InstantQuery) (*types.QueryResult, error) {
	if s.batcher != nil {
		if err := s.batcher.Flush(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.collect(ctx, q.TenantID, q.Query, q.Time.Add(-s.cfg.Lookback), q.Time)
	if err != nil {
		return nil, err
	}

	result := &types.QueryResult{Series: make([]types.Series, 0, len(raw))}
	for i := range raw {
		samples := raw[i].Samples
		if len(samples) == 0 {
			continue
		}
		last := samples[len(samples)-1]
		result.Series = append(result.Series, types.Series{
			Metric:  raw[i].Metric,
			Samples: []types.Sample{{Timestamp: q.Time, Value: last.Value}},
		})
	}
	return result, nil
}

// collect reads the raw samples of all series matching the selector
// within [from, to], sorted by timestamp. Callers hold at least a read
// lock.
func (s *badgerStore) collect(ctx context.Context, tenantID, query string, from, to time.Time) ([]types.Series, error) {
	selectors, err := ParseSelector(query)
	if err != nil {
		return nil, err
	}

	seriesIDs := s.index.FindSeries(selectors)

	out := make([]types.Series, 0, len(seriesIDs))
	for _, seriesID := range seriesIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, ok := s.index.GetSeries(seriesID)
		if !ok || !meta.Overlaps(from.Unix(), to.Unix()) {
			continue
		}

		var samples []types.Sample
		startBlock := from.Truncate(blockDuration).Unix()
		endBlock := to.Truncate(blockDuration).Unix()
		for blockTime := startBlock; blockTime <= endBlock; blockTime += int64(blockDuration.Seconds()) {
			blockSamples, err := s.readBlockByKey(blockKey(tenantID, seriesID, blockTime))
			if err != nil {
				continue // block absent
			}
			for _, sample := range blockSamples {
				if !sample.Timestamp.Before(from) && !sample.Timestamp.After(to) {
					samples = append(samples, sample)
				}
			}
		}

		if len(samples) == 0 {
			continue
		}
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].Timestamp.Before(samples[j].Timestamp)
		})
		out = append(out, types.Series{Metric: meta.Metric, Samples: samples})
	}

	return out, nil
}

// alignSamples resamples raw samples onto step-aligned timestamps in
// [start, end]: at each step the most recent raw sample within lookback
// is taken, or the step is skipped when none exists.
func alignSamples(raw []types.Sample, start, end time.Time, step, lookback time.Duration) []types.Sample {
	var out []types.Sample
	i := 0
	for t := start; !t.After(end); t = t.Add(step) {
		for i < len(raw) && !raw[i].Timestamp.After(t) {
			i++
		}
		if i == 0 {
			continue
		}
		candidate := raw[i-1]
		if t.Sub(candidate.Timestamp) > lookback {
			continue
		}
		out = append(out, types.Sample{Timestamp: t, Value: candidate.Value})
	}
	return out
}

// readBlockByKey reads and decodes one block.
func (s *badgerStore) readBlockByKey(key []byte) ([]types.Sample, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			payload = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.codec.DecodeBlock(payload)
}

// Close implements Store.Close.
func (s *badgerStore) Close() error {
	if s.batcher != nil {
		if err := s.batcher.Close(); err != nil {
			return err
		}
	}
	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			return err
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
