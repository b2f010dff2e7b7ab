package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/vjranagit/promdash/pkg/types"
)

// Codec encodes sample blocks: timestamps with delta-of-delta encoding,
// values with XOR encoding, both compressed with zstd. The block layout
// is a little-endian header (sample count, timestamp stream length)
// followed by the two compressed streams.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec with the given compression level (1..4,
// fastest to best).
func NewCodec(level int) (*Codec, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// EncodeBlock encodes a block of samples.
func (c *Codec) EncodeBlock(samples []types.Sample) ([]byte, error) {
	timestamps := make([]int64, len(samples))
	values := make([]float64, len(samples))
	for i, sample := range samples {
		timestamps[i] = sample.Timestamp.Unix()
		values[i] = sample.Value
	}

	tsStream, err := c.encodeTimestamps(timestamps)
	if err != nil {
		return nil, err
	}
	valStream, err := c.encodeValues(values)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(samples))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(tsStream))); err != nil {
		return nil, err
	}
	buf.Write(tsStream)
	buf.Write(valStream)
	return buf.Bytes(), nil
}

// DecodeBlock decodes a block of samples.
func (c *Codec) DecodeBlock(data []byte) ([]types.Sample, error) {
	buf := bytes.NewReader(data)

	var count, tsLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading block header: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &tsLen); err != nil {
		return nil, fmt.Errorf("reading block header: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	rest := data[8:]
	if uint32(len(rest)) < tsLen {
		return nil, fmt.Errorf("block truncated: want %d timestamp bytes, have %d", tsLen, len(rest))
	}

	timestamps, err := c.decodeTimestamps(rest[:tsLen], int(count))
	if err != nil {
		return nil, err
	}
	values, err := c.decodeValues(rest[tsLen:], int(count))
	if err != nil {
		return nil, err
	}

	samples := make([]types.Sample, count)
	for i := range samples {
		samples[i] = types.Sample{
			Timestamp: unixTime(timestamps[i]),
			Value:     values[i],
		}
	}
	return samples, nil
}

// encodeTimestamps applies delta-of-delta encoding and compresses.
func (c *Codec) encodeTimestamps(timestamps []int64) ([]byte, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, timestamps[0]); err != nil {
		return nil, err
	}

	var prevDelta int64
	for i := 1; i < len(timestamps); i++ {
		delta := timestamps[i] - timestamps[i-1]
		if err := binary.Write(buf, binary.LittleEndian, delta-prevDelta); err != nil {
			return nil, err
		}
		prevDelta = delta
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

func (c *Codec) decodeTimestamps(data []byte, count int) ([]int64, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing timestamps: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	timestamps := make([]int64, count)
	if err := binary.Read(buf, binary.LittleEndian, &timestamps[0]); err != nil {
		return nil, err
	}

	var prevDelta int64
	for i := 1; i < count; i++ {
		var dod int64
		if err := binary.Read(buf, binary.LittleEndian, &dod); err != nil {
			return nil, err
		}
		delta := dod + prevDelta
		timestamps[i] = timestamps[i-1] + delta
		prevDelta = delta
	}

	return timestamps, nil
}

// encodeValues applies XOR encoding and compresses.
func (c *Codec) encodeValues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)
	prevBits := math.Float64bits(values[0])
	if err := binary.Write(buf, binary.LittleEndian, prevBits); err != nil {
		return nil, err
	}

	for i := 1; i < len(values); i++ {
		bits := math.Float64bits(values[i])
		if err := binary.Write(buf, binary.LittleEndian, bits^prevBits); err != nil {
			return nil, err
		}
		prevBits = bits
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

func (c *Codec) decodeValues(data []byte, count int) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing values: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	values := make([]float64, count)

	var prevBits uint64
	if err := binary.Read(buf, binary.LittleEndian, &prevBits); err != nil {
		return nil, err
	}
	values[0] = math.Float64frombits(prevBits)

	for i := 1; i < count; i++ {
		var xorBits uint64
		if err := binary.Read(buf, binary.LittleEndian, &xorBits); err != nil {
			return nil, err
		}
		prevBits ^= xorBits
		values[i] = math.Float64frombits(prevBits)
	}

	return values, nil
}

// Close releases the codec resources.
func (c *Codec) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
