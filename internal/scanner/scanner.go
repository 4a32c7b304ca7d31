// Package scanner drives the detection engine over whole byte streams.
// It reads a stream in fixed-size chunks, folds each chunk into a detection
// state, and produces a scored result with a content digest. The scanner
// owns the chunking; the engine guarantees the final likelihood does not
// depend on it.
package scanner

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/MegaAntiCheat/masterbase/internal/detect"
	"github.com/MegaAntiCheat/masterbase/internal/logging"
	"github.com/MegaAntiCheat/masterbase/internal/metrics"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 64 * 1024

// Result is the outcome of scanning one stream. On a failed scan the result
// still carries everything accumulated up to the failure; the detection
// state is valid at every prefix of the stream.
type Result struct {
	// ID identifies this scan.
	ID uuid.UUID

	// Bytes is the number of bytes folded into the detection state.
	Bytes int64

	// Likelihood is the final running NZ-Markov likelihood.
	Likelihood float64

	// LongestZeroRun is the longest zero-byte run seen within one chunk.
	LongestZeroRun int

	// Anomalous reports whether the stream crossed a flagging threshold.
	Anomalous bool

	// Digest is the BLAKE3 hash of the stream, hex encoded.
	Digest string

	// ContentType is the sniffed MIME type of the stream head.
	ContentType string

	// Elapsed is the wall time the scan took.
	Elapsed time.Duration
}

// Scanner scans streams against a shared detector. Safe for concurrent use;
// each Scan call owns its own state.
type Scanner struct {
	detector  *detect.Detector
	chunkSize int
	collector *metrics.Collector
	log       *logging.Logger
}

// Config holds scanner configuration.
type Config struct {
	// ChunkSize is the read size per detection update. Defaults to
	// DefaultChunkSize if zero.
	ChunkSize int

	// Collector receives scan metrics. Optional.
	Collector *metrics.Collector
}

// New creates a scanner over the given detector.
func New(detector *detect.Detector, cfg Config) (*Scanner, error) {
	if detector == nil {
		return nil, errors.New("scanner: detector must not be nil")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize <= 1 {
		return nil, fmt.Errorf("scanner: chunk size must be greater than 1, got %d", cfg.ChunkSize)
	}
	return &Scanner{
		detector:  detector,
		chunkSize: cfg.ChunkSize,
		collector: cfg.Collector,
		log:       logging.ScannerLogger(),
	}, nil
}

// Scan reads r to EOF and scores it. Cancellation is honored between
// chunks. On a read error or cancellation the returned Result holds the
// partial scan alongside the error.
func (s *Scanner) Scan(ctx context.Context, r io.Reader) (*Result, error) {
	start := time.Now()
	result := &Result{ID: uuid.New()}

	if s.collector != nil {
		s.collector.StreamStarted()
		defer func() {
			result.Elapsed = time.Since(start)
			s.collector.StreamFinished(result.Likelihood, result.LongestZeroRun, result.Anomalous)
		}()
	} else {
		defer func() { result.Elapsed = time.Since(start) }()
	}

	hasher := blake3.New()
	buf := make([]byte, s.chunkSize)
	var state detect.State

	for {
		if err := ctx.Err(); err != nil {
			s.finish(result, state)
			return result, fmt.Errorf("scanner: stream %s: %w", result.ID, err)
		}

		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if state.Length == 0 {
				result.ContentType = mimetype.Detect(chunk).String()
			}
			hasher.Write(chunk)
			state = s.detector.Update(state, chunk)
			if s.collector != nil {
				s.collector.ChunkScanned(n)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.finish(result, state)
			return result, fmt.Errorf("scanner: stream %s: reading: %w", result.ID, err)
		}
	}

	result.Digest = hex.EncodeToString(hasher.Sum(nil))
	s.finish(result, state)

	s.log.Debug("stream scanned",
		logging.Stream(result.ID.String(), result.Bytes, result.Likelihood, result.LongestZeroRun, result.Anomalous))
	return result, nil
}

// finish copies the detection state into the result.
func (s *Scanner) finish(result *Result, state detect.State) {
	result.Bytes = state.Length
	result.Likelihood = state.Likelihood
	result.LongestZeroRun = state.LongestZeroRun
	result.Anomalous = s.detector.Anomalous(state)
}
