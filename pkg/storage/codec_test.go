package storage

import (
	"testing"
	"time"

	"github.com/vjranagit/promdash/pkg/types"
)

func TestCodecBlockRoundTrip(t *testing.T) {
	codec, err := NewCodec(3)
	if err != nil {
		t.Fatalf("Failed to create codec: %v", err)
	}
	defer codec.Close()

	base := time.Unix(1700000000, 0).UTC()
	samples := []types.Sample{
		{Timestamp: base, Value: 100.5},
		{Timestamp: base.Add(10 * time.Second), Value: -3.25},
		{Timestamp: base.Add(25 * time.Second), Value: 0},
		{Timestamp: base.Add(40 * time.Second), Value: 1e12},
	}

	payload, err := codec.EncodeBlock(samples)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	decoded, err := codec.DecodeBlock(payload)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if !decoded[i].Timestamp.Equal(samples[i].Timestamp) {
			t.Errorf("Sample %d: expected timestamp %v, got %v", i, samples[i].Timestamp, decoded[i].Timestamp)
		}
		if decoded[i].Value != samples[i].Value {
			t.Errorf("Sample %d: expected value %v, got %v", i, samples[i].Value, decoded[i].Value)
		}
	}
}

func TestCodecSingleSample(t *testing.T) {
	codec, err := NewCodec(2)
	if err != nil {
		t.Fatalf("Failed to create codec: %v", err)
	}
	defer codec.Close()

	samples := []types.Sample{{Timestamp: time.Unix(1700000000, 0).UTC(), Value: 42}}

	payload, err := codec.EncodeBlock(samples)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	decoded, err := codec.DecodeBlock(payload)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Value != 42 {
		t.Fatalf("Unexpected decode result: %+v", decoded)
	}
}

func TestCodecCompressionLevels(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	samples := make([]types.Sample, 1000)
	for i := range samples {
		samples[i] = types.Sample{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Second),
			Value:     float64(i % 10),
		}
	}

	for level := 1; level <= 4; level++ {
		codec, err := NewCodec(level)
		if err != nil {
			t.Fatalf("Level %d: failed to create codec: %v", level, err)
		}

		payload, err := codec.EncodeBlock(samples)
		if err != nil {
			t.Fatalf("Level %d: failed to encode: %v", level, err)
		}
		// Regular timestamps and repetitive values must compress well
		// below the raw 16 bytes per sample.
		if len(payload) >= len(samples)*16 {
			t.Errorf("Level %d: payload %d bytes, expected compression", level, len(payload))
		}

		decoded, err := codec.DecodeBlock(payload)
		if err != nil {
			t.Fatalf("Level %d: failed to decode: %v", level, err)
		}
		if len(decoded) != len(samples) {
			t.Fatalf("Level %d: expected %d samples, got %d", level, len(samples), len(decoded))
		}
		codec.Close()
	}
}
