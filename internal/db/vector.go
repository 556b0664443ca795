package db

import (
	"encoding/binary"
	"fmt"
	"math"
)

// VectorBytes serializes a float32 vector into the little-endian binary form
// stored in hash fields and passed as the KNN query BLOB.
func VectorBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// VectorFromBytes deserializes the binary hash-field form back to a vector.
func VectorFromBytes(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
