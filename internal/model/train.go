package model

import (
	"errors"
	"fmt"
	"io"

	"github.com/MegaAntiCheat/masterbase/internal/detect"
)

// Trainer accumulates adjacent-byte transition counts over known-good demo
// streams to build a reference model. Feed whole demos through Add or
// AddReader, then call Model or write the result with WriteNPY. A Trainer is
// not safe for concurrent use.
type Trainer struct {
	coocs   detect.TransitionMatrix
	streams int
}

// NewTrainer returns an empty trainer.
func NewTrainer() *Trainer {
	return &Trainer{}
}

// Add folds one buffer of a training stream into the counts. Consecutive
// calls are treated as separate buffers: the transition across the call
// boundary is not counted, matching how the detector sees chunks.
func (t *Trainer) Add(chunk []byte) {
	t.coocs.Add(chunk)
}

// AddReader consumes r to EOF in 1 MiB buffers and counts one stream.
func (t *Trainer) AddReader(r io.Reader) (int64, error) {
	buf := make([]byte, 1<<20)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.Add(buf[:n])
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			t.streams++
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("model: reading training stream: %w", err)
		}
	}
}

// Streams returns the number of complete streams counted so far.
func (t *Trainer) Streams() int {
	return t.streams
}

// Transitions returns the total number of transitions counted so far.
func (t *Trainer) Transitions() uint64 {
	return t.coocs.Total()
}

// Model builds the reference model from the accumulated counts. It fails if
// nothing has been counted yet.
func (t *Trainer) Model() (*Model, error) {
	if t.coocs.Total() == 0 {
		return nil, errors.New("model: trainer has no transition counts")
	}
	matrix := make([]float64, detect.MatrixSize)
	for i := 0; i < 256; i++ {
		for j := 0; j < 256; j++ {
			matrix[i<<8|j] = float64(t.coocs.At(byte(i), byte(j)))
		}
	}
	return New(matrix)
}
