package types

import "time"

// Sample represents a single time-series sample
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Metric represents a time-series metric with labels
type Metric struct {
	Name   string
	Labels map[string]string
}

// LabelSet returns the metric as a flat label map, with the metric name
// under the __name__ label, matching the Prometheus exposition convention.
func (m *Metric) LabelSet() map[string]string {
	labels := make(map[string]string, len(m.Labels)+1)
	if m.Name != "" {
		labels["__name__"] = m.Name
	}
	for k, v := range m.Labels {
		labels[k] = v
	}
	return labels
}

// Series represents a complete time-series
type Series struct {
	Metric  Metric
	Samples []Sample
}

// WriteRequest represents a write request to the storage engine
type WriteRequest struct {
	TenantID string
	Series   []Series
}

// RangeQuery asks for series evaluated over [Start, End] at a fixed step.
type RangeQuery struct {
	TenantID string
	Query    string
	Start    time.Time
	End      time.Time
	Step     time.Duration
}

// InstantQuery asks for the value of each matching series at a single instant.
type InstantQuery struct {
	TenantID string
	Query    string
	Time     time.Time
}

// QueryResult represents evaluated query results
type QueryResult struct {
	Series []Series
}
