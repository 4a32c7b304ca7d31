package detect

import (
	"errors"
	"math"
)

// smoothingEpsilon is added to every prior entry before taking the logarithm
// so that a zero reference frequency never produces log(0).
const smoothingEpsilon = 1e-5

// ErrEmptyPrior is returned when a reference matrix has no mass outside the
// zero-to-zero transition and therefore cannot be normalized.
var ErrEmptyPrior = errors.New("detect: reference matrix has no nonzero-transition mass")

// Likelihood computes the geometric-mean-style likelihood of the observed
// distribution under the prior: exp(sum(observed[k] * log(prior[k] + eps))).
// prior holds nonnegative masses, observed is assumed normalized to sum to 1.
// The result is always finite and in (0, 1] for a normalized observed vector;
// underflow toward 0 is expected for strongly mismatched distributions.
func Likelihood(prior, observed []float64) float64 {
	var sum float64
	for k, q := range observed {
		if q == 0 {
			continue
		}
		sum += q * math.Log(prior[k]+smoothingEpsilon)
	}
	return math.Exp(sum)
}

// Prior is a reference transition distribution prepared for repeated
// NZ-Markov scoring. The flattened 256x256 reference matrix has its first
// entry (the 0x00 to 0x00 transition) dropped and the remainder normalized;
// the smoothed log of each entry is precomputed so scoring a chunk is a
// single weighted sum. Immutable after construction and safe for
// unsynchronized concurrent use.
type Prior struct {
	logp [MatrixSize - 1]float64
}

// NewPrior builds a scoring prior from a flattened 256x256 reference matrix
// of nonnegative transition frequencies in row-major order. It fails if the
// matrix has the wrong length, a negative or non-finite entry, or no mass
// outside the zero-to-zero transition.
func NewPrior(matrix []float64) (*Prior, error) {
	if len(matrix) != MatrixSize {
		return nil, errors.New("detect: reference matrix must have 65536 entries")
	}
	var total float64
	for _, v := range matrix[1:] {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("detect: reference matrix entries must be finite and nonnegative")
		}
		total += v
	}
	if total == 0 {
		return nil, ErrEmptyPrior
	}

	p := &Prior{}
	for k, v := range matrix[1:] {
		p.logp[k] = math.Log(v/total + smoothingEpsilon)
	}
	return p, nil
}

// NZMarkovLikelihood scores the observed transition counts against the
// prior, considering only nonzero-byte transition structure: the
// zero-to-zero entry is dropped from the observed matrix and the remainder
// normalized before computing the likelihood.
//
// The boolean result reports whether the chunk was scorable. A chunk whose
// transitions are all zero-to-zero (or that produced no transitions at all,
// i.e. length <= 1) has nothing to normalize; such chunks return (0, false)
// and contribute no likelihood information.
func (p *Prior) NZMarkovLikelihood(coocs *TransitionMatrix) (float64, bool) {
	observed := coocs.total - coocs.counts[0]
	if observed == 0 {
		return 0, false
	}

	norm := float64(observed)
	var sum float64
	for k, c := range coocs.counts[1:] {
		if c == 0 {
			continue
		}
		sum += float64(c) / norm * p.logp[k]
	}
	return math.Exp(sum), true
}
