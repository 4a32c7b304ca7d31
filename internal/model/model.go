// Package model loads and builds the reference transition-frequency matrix
// the detection engine scores streams against. A model is a dense 256x256
// row-major matrix of nonnegative reference frequencies between consecutive
// byte values, learned offline from known-good demo streams. It is loaded
// once at process start and is read-only thereafter, so a single instance is
// shared by all streams without locking.
package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/MegaAntiCheat/masterbase/internal/detect"
)

// rawSize is the byte size of a raw little-endian float64 dump of the matrix.
const rawSize = detect.MatrixSize * 8

// ErrBadFormat indicates a model file that is neither a NumPy .npy array of
// the expected dtype and shape nor a raw float64 dump of 65536 values.
var ErrBadFormat = errors.New("model: unrecognized reference model format")

// Model is an immutable reference transition-frequency matrix.
type Model struct {
	matrix []float64
}

// New builds a model from a flattened 256x256 row-major matrix. The slice is
// copied; entries must be finite and nonnegative.
func New(matrix []float64) (*Model, error) {
	if len(matrix) != detect.MatrixSize {
		return nil, fmt.Errorf("model: matrix has %d entries, want %d", len(matrix), detect.MatrixSize)
	}
	for k, v := range matrix {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("model: entry %d is %v, want finite and nonnegative", k, v)
		}
	}
	m := &Model{matrix: make([]float64, detect.MatrixSize)}
	copy(m.matrix, matrix)
	return m, nil
}

// Matrix returns the flattened 256x256 row-major reference matrix. Callers
// must not modify the result.
func (m *Model) Matrix() []float64 {
	return m.matrix
}

// At returns the reference frequency for the transition from byte value i to
// byte value j.
func (m *Model) At(i, j byte) float64 {
	return m.matrix[int(i)<<8|int(j)]
}

// Load reads a reference model from path. Two formats are accepted: a NumPy
// .npy file holding a C-order float64 or int64 array of shape (256, 256) or
// (65536,), the format the model is trained and shipped in, and a raw
// little-endian float64 dump of 65536 values. Any missing file, malformed
// header, wrong shape, or truncated payload is an error; callers are
// expected to treat a failed load as fatal at startup.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: reading %s: %w", path, err)
	}

	var matrix []float64
	switch {
	case isNPY(data):
		matrix, err = parseNPY(data)
		if err != nil {
			return nil, fmt.Errorf("model: parsing %s: %w", path, err)
		}
	case len(data) == rawSize:
		matrix = make([]float64, detect.MatrixSize)
		for k := range matrix {
			matrix[k] = math.Float64frombits(binary.LittleEndian.Uint64(data[k*8:]))
		}
	default:
		return nil, fmt.Errorf("model: %s (%d bytes): %w", path, len(data), ErrBadFormat)
	}

	m, err := New(matrix)
	if err != nil {
		return nil, fmt.Errorf("model: validating %s: %w", path, err)
	}
	return m, nil
}
