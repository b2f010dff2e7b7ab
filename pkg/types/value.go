package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Response status values used by the v1 query API.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ValueType discriminates the shape of a query result payload.
type ValueType string

const (
	ValScalar ValueType = "scalar"
	ValString ValueType = "string"
	ValVector ValueType = "vector"
	ValMatrix ValueType = "matrix"
)

// APIResponse is the envelope returned by the v1 query endpoints.
type APIResponse struct {
	Status    string     `json:"status"`
	Data      *QueryData `json:"data,omitempty"`
	ErrorType string     `json:"errorType,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// SamplePair is a single (timestamp, value) point. It encodes on the wire
// as [unixSeconds, "value"], with the value rendered as a string.
type SamplePair struct {
	Timestamp float64
	Value     float64
}

// MarshalJSON implements json.Marshaler.
func (p SamplePair) MarshalJSON() ([]byte, error) {
	v := strconv.FormatFloat(p.Value, 'g', -1, 64)
	return json.Marshal([2]interface{}{p.Timestamp, v})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *SamplePair) UnmarshalJSON(b []byte) error {
	var items [2]json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("decoding sample pair: %w", err)
	}
	if err := json.Unmarshal(items[0], &p.Timestamp); err != nil {
		return fmt.Errorf("decoding sample timestamp: %w", err)
	}
	var val string
	if err := json.Unmarshal(items[1], &val); err != nil {
		return fmt.Errorf("decoding sample value: %w", err)
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("parsing sample value %q: %w", val, err)
	}
	p.Value = f
	return nil
}

// StringPair is the payload of a string-typed result: [unixSeconds, value].
type StringPair struct {
	Timestamp float64
	Value     string
}

// MarshalJSON implements json.Marshaler.
func (p StringPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{p.Timestamp, p.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *StringPair) UnmarshalJSON(b []byte) error {
	var items [2]json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("decoding string pair: %w", err)
	}
	if err := json.Unmarshal(items[0], &p.Timestamp); err != nil {
		return fmt.Errorf("decoding string timestamp: %w", err)
	}
	if err := json.Unmarshal(items[1], &p.Value); err != nil {
		return fmt.Errorf("decoding string value: %w", err)
	}
	return nil
}

// VectorSample is one element of a vector result.
type VectorSample struct {
	Metric map[string]string `json:"metric"`
	Value  SamplePair        `json:"value"`
}

// MatrixSeries is one series of a matrix result.
type MatrixSeries struct {
	Metric map[string]string `json:"metric"`
	Values []SamplePair      `json:"values"`
}

// QueryData is the data section of a query response. Exactly one of the
// union fields is populated, selected by ResultType.
type QueryData struct {
	ResultType ValueType

	Scalar *SamplePair
	String *StringPair
	Vector []VectorSample
	Matrix []MatrixSeries
}

// SeriesCount reports how many series the result carries: one for scalar
// and string results, the element count for vector and matrix results.
func (d *QueryData) SeriesCount() int {
	if d == nil {
		return 0
	}
	switch d.ResultType {
	case ValScalar, ValString:
		return 1
	case ValVector:
		return len(d.Vector)
	case ValMatrix:
		return len(d.Matrix)
	}
	return 0
}

type queryDataEnvelope struct {
	ResultType ValueType       `json:"resultType"`
	Result     json.RawMessage `json:"result"`
}

// MarshalJSON implements json.Marshaler.
func (d QueryData) MarshalJSON() ([]byte, error) {
	var result interface{}
	switch d.ResultType {
	case ValScalar:
		result = d.Scalar
	case ValString:
		result = d.String
	case ValVector:
		if d.Vector == nil {
			result = []VectorSample{}
		} else {
			result = d.Vector
		}
	case ValMatrix:
		if d.Matrix == nil {
			result = []MatrixSeries{}
		} else {
			result = d.Matrix
		}
	default:
		return nil, fmt.Errorf("unknown result type %q", d.ResultType)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(queryDataEnvelope{ResultType: d.ResultType, Result: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *QueryData) UnmarshalJSON(b []byte) error {
	var env queryDataEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decoding query data: %w", err)
	}
	*d = QueryData{ResultType: env.ResultType}
	if len(env.Result) == 0 {
		return nil
	}
	switch env.ResultType {
	case ValScalar:
		d.Scalar = &SamplePair{}
		return json.Unmarshal(env.Result, d.Scalar)
	case ValString:
		d.String = &StringPair{}
		return json.Unmarshal(env.Result, d.String)
	case ValVector:
		return json.Unmarshal(env.Result, &d.Vector)
	case ValMatrix:
		return json.Unmarshal(env.Result, &d.Matrix)
	}
	return fmt.Errorf("unknown result type %q", env.ResultType)
}

// VectorData builds a vector-typed QueryData from storage series, taking
// the single sample of each series.
func VectorData(series []Series) *QueryData {
	out := make([]VectorSample, 0, len(series))
	for i := range series {
		s := &series[i]
		if len(s.Samples) == 0 {
			continue
		}
		last := s.Samples[len(s.Samples)-1]
		out = append(out, VectorSample{
			Metric: s.Metric.LabelSet(),
			Value: SamplePair{
				Timestamp: float64(last.Timestamp.Unix()),
				Value:     last.Value,
			},
		})
	}
	return &QueryData{ResultType: ValVector, Vector: out}
}

// MatrixData builds a matrix-typed QueryData from storage series.
func MatrixData(series []Series) *QueryData {
	out := make([]MatrixSeries, 0, len(series))
	for i := range series {
		s := &series[i]
		values := make([]SamplePair, 0, len(s.Samples))
		for _, sample := range s.Samples {
			values = append(values, SamplePair{
				Timestamp: float64(sample.Timestamp.Unix()),
				Value:     sample.Value,
			})
		}
		out = append(out, MatrixSeries{Metric: s.Metric.LabelSet(), Values: values})
	}
	return &QueryData{ResultType: ValMatrix, Matrix: out}
}
