// Package fixtures provides test fixtures and data generators for masterbase
package fixtures

import (
	"math/rand"

	"github.com/MegaAntiCheat/masterbase/internal/detect"
)

// =============================================================================
// Reference Model Fixtures
// =============================================================================

// UniformModel returns a flattened 256x256 reference matrix with equal mass
// on every transition. Scores against it sit near the smoothing floor, so it
// is useful for exercising the scoring math, not for calibration-sensitive
// assertions.
func UniformModel() []float64 {
	matrix := make([]float64, detect.MatrixSize)
	for k := range matrix {
		matrix[k] = 1
	}
	return matrix
}

// CycleModel returns a reference matrix whose mass sits on the transitions
// produced by CycleBytes(period, ...): (1->2, 2->3, ..., period->1). Streams
// generated by CycleBytes with the same period score high against it, which
// makes it a stand-in for a correctly calibrated model.
func CycleModel(period int) []float64 {
	matrix := make([]float64, detect.MatrixSize)
	for step := 0; step < period; step++ {
		i := byte(step + 1)
		j := byte((step+1)%period + 1)
		matrix[int(i)<<8|int(j)] = 1000
	}
	return matrix
}

// CycleBytes generates n bytes cycling through the values 1..period. The
// result contains no zero bytes.
func CycleBytes(period, n int) []byte {
	buf := make([]byte, n)
	for k := range buf {
		buf[k] = byte(k%period + 1)
	}
	return buf
}

// RandomNonzeroBytes generates n random bytes drawn from 1..255 using the
// given seed.
func RandomNonzeroBytes(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	for k := range buf {
		buf[k] = byte(rng.Intn(255) + 1)
	}
	return buf
}

// ZeroBytes generates n zero bytes.
func ZeroBytes(n int) []byte {
	return make([]byte, n)
}
