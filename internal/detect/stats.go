// Package detect implements the streaming anomaly detection engine for demo
// byte streams. It scores the nonzero-byte transition structure of a stream
// against a reference Markov model and tracks zero-padding runs, producing a
// running likelihood and a tamper verdict without buffering the stream.
package detect

// MatrixSize is the number of entries in a byte transition matrix (256x256).
const MatrixSize = 256 * 256

// TransitionMatrix counts adjacent-byte transitions within a buffer.
// Entry (i, j) is the number of positions k where buf[k] == i and
// buf[k+1] == j. Stored flat in row-major order.
type TransitionMatrix struct {
	counts [MatrixSize]uint64
	total  uint64
}

// At returns the count for the transition from byte value i to byte value j.
func (m *TransitionMatrix) At(i, j byte) uint64 {
	return m.counts[int(i)<<8|int(j)]
}

// Total returns the total number of transitions counted (len-1 for a
// buffer of length len >= 1).
func (m *TransitionMatrix) Total() uint64 {
	return m.total
}

// Add folds the adjacent-byte transitions of chunk into the matrix.
// Chunks of length <= 1 contribute nothing. Transitions spanning the
// boundary between consecutive Add calls are not counted.
func (m *TransitionMatrix) Add(chunk []byte) {
	for k := 0; k+1 < len(chunk); k++ {
		m.counts[int(chunk[k])<<8|int(chunk[k+1])]++
	}
	if len(chunk) > 1 {
		m.total += uint64(len(chunk) - 1)
	}
}

// TransitionFreqs computes the 256x256 adjacent-byte transition counts of
// chunk. The result is the zero matrix for chunks of length <= 1.
func TransitionFreqs(chunk []byte) *TransitionMatrix {
	var m TransitionMatrix
	m.Add(chunk)
	return &m
}

// LongestZeroRun returns the length of the longest run of consecutive 0x00
// bytes anywhere in chunk. A single linear scan; returns 0 for an empty
// chunk or a chunk with no zero bytes.
func LongestZeroRun(chunk []byte) int {
	var longest, run int
	for _, b := range chunk {
		if b == 0 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}
