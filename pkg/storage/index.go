package storage

import (
	"bytes"
	"sort"

	"github.com/vjranagit/promdash/pkg/types"
)

// Index manages the in-memory time-series index: series metadata by
// fingerprint plus an inverted label index.
type Index struct {
	series     map[uint64]*SeriesMeta
	labelIndex map[string]map[string][]uint64
}

// SeriesMeta holds metadata about a single series.
type SeriesMeta struct {
	ID      uint64
	Metric  types.Metric
	MinTime int64
	MaxTime int64
}

// Overlaps reports whether the series has observed samples intersecting
// [from, to] in unix seconds. A series with no observed range yet is
// treated as overlapping.
func (m *SeriesMeta) Overlaps(from, to int64) bool {
	if m.MinTime == 0 && m.MaxTime == 0 {
		return true
	}
	return m.MinTime <= to && m.MaxTime >= from
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		series:     make(map[uint64]*SeriesMeta),
		labelIndex: make(map[string]map[string][]uint64),
	}
}

// AddSeries registers a series and returns its fingerprint ID. Adding an
// already-known series is a no-op.
func (idx *Index) AddSeries(metric *types.Metric) (uint64, error) {
	fingerprint := fingerprintMetric(metric)
	if meta, exists := idx.series[fingerprint]; exists {
		return meta.ID, nil
	}

	idx.series[fingerprint] = &SeriesMeta{
		ID:     fingerprint,
		Metric: *metric,
	}

	idx.addLabel("__name__", metric.Name, fingerprint)
	for name, value := range metric.Labels {
		idx.addLabel(name, value, fingerprint)
	}
	return fingerprint, nil
}

func (idx *Index) addLabel(name, value string, id uint64) {
	if idx.labelIndex[name] == nil {
		idx.labelIndex[name] = make(map[string][]uint64)
	}
	idx.labelIndex[name][value] = append(idx.labelIndex[name][value], id)
}

// GetSeries retrieves series metadata by ID.
func (idx *Index) GetSeries(id uint64) (*SeriesMeta, bool) {
	meta, ok := idx.series[id]
	return meta, ok
}

// FindSeries finds the IDs of series matching all label selectors. A nil
// selector set matches everything.
func (idx *Index) FindSeries(selectors map[string]string) []uint64 {
	if len(selectors) == 0 {
		result := make([]uint64, 0, len(idx.series))
		for id := range idx.series {
			result = append(result, id)
		}
		return result
	}

	var result []uint64
	first := true
	for name, value := range selectors {
		valueMap, ok := idx.labelIndex[name]
		if !ok {
			return nil
		}
		ids, ok := valueMap[value]
		if !ok {
			return nil
		}

		if first {
			result = append([]uint64(nil), ids...)
			first = false
		} else {
			result = intersect(result, ids)
		}
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

// ObserveTimeRange widens the recorded sample time range of a series.
func (idx *Index) ObserveTimeRange(id uint64, minTime, maxTime int64) {
	meta, ok := idx.series[id]
	if !ok {
		return
	}
	if meta.MinTime == 0 || minTime < meta.MinTime {
		meta.MinTime = minTime
	}
	if maxTime > meta.MaxTime {
		meta.MaxTime = maxTime
	}
}

// SeriesCount returns the number of indexed series.
func (idx *Index) SeriesCount() int {
	return len(idx.series)
}

// fingerprintMetric generates a stable fingerprint over the metric name
// and its sorted label pairs (FNV-1a).
func fingerprintMetric(metric *types.Metric) uint64 {
	keys := make([]string, 0, len(metric.Labels))
	for k := range metric.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := new(bytes.Buffer)
	buf.WriteString(metric.Name)
	for _, k := range keys {
		buf.WriteByte(0)
		buf.WriteString(k)
		buf.WriteByte(0)
		buf.WriteString(metric.Labels[k])
	}

	var hash uint64 = 14695981039346656037
	for _, b := range buf.Bytes() {
		hash ^= uint64(b)
		hash *= 1099511628211
	}
	return hash
}

// intersect returns the common elements of two ID slices. a is owned by
// the caller; b aliases a stored posting list and must not be written,
// as lookups run concurrently under the store's read lock.
func intersect(a, b []uint64) []uint64 {
	b = append([]uint64(nil), b...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })

	result := make([]uint64, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			result = append(result, a[i])
			i++
			j++
		}
	}
	return result
}
