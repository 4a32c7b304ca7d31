package detect

// Thresholds are the calibration constants deciding when a stream is
// flagged. They are tied to the reference model the detector was built
// against and are configuration, not derived values.
type Thresholds struct {
	// LikelihoodFloor flags a stream whose running likelihood falls to or
	// below this value.
	LikelihoodFloor float64

	// MaxZeroRun flags a stream containing a run of consecutive zero bytes
	// at least this long within a single chunk.
	MaxZeroRun int
}

// DefaultThresholds returns the thresholds calibrated against the shipped
// reference model.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LikelihoodFloor: 3e-5,
		MaxZeroRun:      384,
	}
}

// State is the accumulated detection state of one stream. The zero value is
// the initial state. State is a small immutable value: Update returns a new
// State rather than mutating, so the owning stream just stores the latest
// value. One State belongs to exactly one stream and is never shared.
//
// LongestZeroRun is the maximum over per-chunk runs; a zero run split across
// a chunk boundary is counted as two shorter runs. Chunks are large relative
// to the zero-run threshold in practice, so runs that matter land inside one
// chunk.
type State struct {
	// Length is the total number of bytes folded in so far.
	Length int64

	// Likelihood is the running length-weighted average of per-chunk
	// NZ-Markov scores, in [0, 1]. Meaningful only once Scored > 0.
	Likelihood float64

	// LongestZeroRun is the longest run of consecutive zero bytes observed
	// within any single chunk so far.
	LongestZeroRun int

	// Scored is the number of bytes from scorable chunks, the weight behind
	// Likelihood. Degenerate chunks (length <= 1, or all zero bytes) advance
	// Length but not Scored.
	Scored int64
}

// Detector scores streams against a reference model. A Detector holds no
// per-stream state and is safe for concurrent use by any number of streams;
// each stream owns its own State.
type Detector struct {
	prior      *Prior
	thresholds Thresholds
}

// NewDetector builds a detector from a flattened 256x256 reference
// transition-frequency matrix and a set of thresholds.
func NewDetector(matrix []float64, thresholds Thresholds) (*Detector, error) {
	prior, err := NewPrior(matrix)
	if err != nil {
		return nil, err
	}
	return &Detector{prior: prior, thresholds: thresholds}, nil
}

// Thresholds returns the detector's flagging thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Update folds one chunk into the state and returns the new state. Chunks
// must be delivered in arrival order by a single caller per stream.
//
// The chunk's NZ-Markov score enters the running likelihood as a
// length-weighted average, so the final likelihood does not depend on how
// the stream was split into chunks. A chunk with no nonzero-byte transitions
// carries no likelihood information and leaves Likelihood and its weight
// untouched; its bytes still count toward Length and its zero runs toward
// LongestZeroRun.
func (d *Detector) Update(s State, chunk []byte) State {
	next := s
	next.Length += int64(len(chunk))

	if run := LongestZeroRun(chunk); run > next.LongestZeroRun {
		next.LongestZeroRun = run
	}

	if score, ok := d.prior.NZMarkovLikelihood(TransitionFreqs(chunk)); ok {
		weight := int64(len(chunk))
		next.Likelihood = (s.Likelihood*float64(s.Scored) + score*float64(weight)) / float64(s.Scored+weight)
		next.Scored = s.Scored + weight
	}
	return next
}

// Anomalous reports whether the state crosses either flagging threshold.
// A state that has scored no bytes yet is judged on zero runs alone, so a
// fresh State is never anomalous.
func (d *Detector) Anomalous(s State) bool {
	if s.Scored > 0 && s.Likelihood <= d.thresholds.LikelihoodFloor {
		return true
	}
	return s.LongestZeroRun >= d.thresholds.MaxZeroRun
}
