package detect

import (
	"math"
	"testing"
)

func newTestDetector(t *testing.T, matrix []float64) *Detector {
	t.Helper()
	d, err := NewDetector(matrix, DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestStateZeroValue(t *testing.T) {
	d := newTestDetector(t, uniformMatrix())

	var s State
	if s.Length != 0 || s.Likelihood != 0 || s.LongestZeroRun != 0 || s.Scored != 0 {
		t.Errorf("zero State = %+v, want all zero fields", s)
	}
	if d.Anomalous(s) {
		t.Error("fresh state must not be anomalous")
	}
}

func TestUpdateAccumulatesLength(t *testing.T) {
	d := newTestDetector(t, uniformMatrix())

	var s State
	chunks := [][]byte{cycleBytes(4, 100), {9}, cycleBytes(4, 57), make([]byte, 33)}
	var total int64
	for _, chunk := range chunks {
		s = d.Update(s, chunk)
		total += int64(len(chunk))
	}

	if s.Length != total {
		t.Errorf("Length = %d, want %d", s.Length, total)
	}
}

func TestChunkingInvariance(t *testing.T) {
	// The per-chunk score of a byte cycle is independent of the chunk
	// length, so the length-weighted running average must equal the
	// single-chunk score exactly for any partition.
	d := newTestDetector(t, cycleMatrix(8))
	stream := cycleBytes(8, 4096)

	var whole State
	whole = d.Update(whole, stream)

	partitions := [][]int{
		{4096},
		{1, 4095},
		{2048, 2048},
		{100, 1000, 2996},
		{512, 512, 512, 512, 512, 512, 512, 512},
	}
	for _, sizes := range partitions {
		var s State
		offset := 0
		for _, n := range sizes {
			s = d.Update(s, stream[offset:offset+n])
			offset += n
		}

		if s.Length != whole.Length {
			t.Errorf("partition %v: Length = %d, want %d", sizes, s.Length, whole.Length)
		}
		if math.Abs(s.Likelihood-whole.Likelihood) > 1e-9*whole.Likelihood {
			t.Errorf("partition %v: Likelihood = %v, want %v", sizes, s.Likelihood, whole.Likelihood)
		}
	}
}

func TestRunningAverageMatchesPerChunkScores(t *testing.T) {
	d := newTestDetector(t, cycleMatrix(8))

	c1 := cycleBytes(8, 1024)
	c2 := cycleBytes(3, 512)

	l1, ok := d.prior.NZMarkovLikelihood(TransitionFreqs(c1))
	if !ok {
		t.Fatal("chunk 1 must be scorable")
	}
	l2, ok := d.prior.NZMarkovLikelihood(TransitionFreqs(c2))
	if !ok {
		t.Fatal("chunk 2 must be scorable")
	}

	var s State
	s = d.Update(s, c1)
	s = d.Update(s, c2)

	n1, n2 := float64(len(c1)), float64(len(c2))
	want := (l1*n1 + l2*n2) / (n1 + n2)
	if math.Abs(s.Likelihood-want) > 1e-12 {
		t.Errorf("Likelihood = %v, want %v", s.Likelihood, want)
	}
}

func TestZeroRunTrackingIsMonotonicAndChunkLocal(t *testing.T) {
	d := newTestDetector(t, uniformMatrix())

	chunks := [][]byte{
		{1, 0, 0, 0, 2},
		cycleBytes(4, 64),
		make([]byte, 10),
		{0, 0, 7},
	}

	var s State
	prev := 0
	for _, chunk := range chunks {
		s = d.Update(s, chunk)
		if s.LongestZeroRun < prev {
			t.Fatalf("LongestZeroRun decreased from %d to %d", prev, s.LongestZeroRun)
		}
		if run := LongestZeroRun(chunk); s.LongestZeroRun < run {
			t.Errorf("LongestZeroRun = %d, below chunk run %d", s.LongestZeroRun, run)
		}
		prev = s.LongestZeroRun
	}
	if s.LongestZeroRun != 10 {
		t.Errorf("LongestZeroRun = %d, want 10", s.LongestZeroRun)
	}

	// A run split across a chunk boundary is counted as two shorter runs.
	var split State
	split = d.Update(split, append(cycleBytes(4, 16), make([]byte, 200)...))
	split = d.Update(split, append(make([]byte, 200), cycleBytes(4, 16)...))
	if split.LongestZeroRun != 200 {
		t.Errorf("boundary-split run: LongestZeroRun = %d, want 200 (chunk-local)", split.LongestZeroRun)
	}
}

func TestDegenerateChunksLeaveLikelihoodUntouched(t *testing.T) {
	d := newTestDetector(t, cycleMatrix(8))

	var s State
	s = d.Update(s, cycleBytes(8, 1024))
	scored := s.Likelihood

	s = d.Update(s, []byte{5})
	s = d.Update(s, make([]byte, 100))
	s = d.Update(s, nil)

	if s.Likelihood != scored {
		t.Errorf("Likelihood changed from %v to %v across degenerate chunks", scored, s.Likelihood)
	}
	if s.Length != 1024+1+100 {
		t.Errorf("Length = %d, want %d", s.Length, 1024+1+100)
	}
	if s.Scored != 1024 {
		t.Errorf("Scored = %d, want 1024", s.Scored)
	}
}

func TestAnomalousThresholds(t *testing.T) {
	d := newTestDetector(t, cycleMatrix(8))

	// A single chunk with >= 384 consecutive zeros trips the zero-run
	// threshold even though the chunk itself is unscorable.
	var zeros State
	zeros = d.Update(zeros, make([]byte, 384))
	if !d.Anomalous(zeros) {
		t.Error("384 consecutive zero bytes must be anomalous")
	}

	// A stream matching the reference model stays well above the floor.
	var clean State
	clean = d.Update(clean, cycleBytes(8, 4096))
	if d.Anomalous(clean) {
		t.Errorf("model-conforming stream flagged as anomalous (likelihood %v)", clean.Likelihood)
	}

	// A stream whose transition structure the model has never seen falls
	// to the smoothing floor and trips the likelihood threshold.
	var tampered State
	tampered = d.Update(tampered, cycleBytes(100, 4096))
	if !d.Anomalous(tampered) {
		t.Errorf("off-model stream not flagged (likelihood %v)", tampered.Likelihood)
	}
}

func TestCustomThresholds(t *testing.T) {
	th := Thresholds{LikelihoodFloor: 0.5, MaxZeroRun: 2}
	d, err := NewDetector(cycleMatrix(8), th)
	if err != nil {
		t.Fatal(err)
	}
	if d.Thresholds() != th {
		t.Errorf("Thresholds() = %+v, want %+v", d.Thresholds(), th)
	}

	var s State
	s = d.Update(s, []byte{1, 0, 0, 1})
	if !d.Anomalous(s) {
		t.Error("zero run of 2 must trip MaxZeroRun = 2")
	}
}
