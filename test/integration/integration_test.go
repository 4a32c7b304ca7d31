// Package integration provides end-to-end integration tests for masterbase
package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MegaAntiCheat/masterbase/internal/detect"
	"github.com/MegaAntiCheat/masterbase/internal/model"
	"github.com/MegaAntiCheat/masterbase/internal/scanner"
	"github.com/MegaAntiCheat/masterbase/test/fixtures"
)

// =============================================================================
// Train / Load / Scan Pipeline Tests
// =============================================================================

// TestTrainLoadScanPipeline trains a model from clean streams, writes it to
// disk, loads it back, and scans both a clean and a tampered stream.
func TestTrainLoadScanPipeline(t *testing.T) {
	dir := t.TempDir()

	// Train on clean demo-like streams.
	trainer := model.NewTrainer()
	for seed := int64(0); seed < 4; seed++ {
		trainer.Add(fixtures.CycleBytes(8, 64*1024))
	}
	trained, err := trainer.Model()
	if err != nil {
		t.Fatal(err)
	}

	modelPath := filepath.Join(dir, "S_hat.npy")
	if err := model.WriteNPY(modelPath, trained.Matrix()); err != nil {
		t.Fatal(err)
	}

	// Load the way the service does at startup.
	loaded, err := model.Load(modelPath)
	if err != nil {
		t.Fatal(err)
	}

	detector, err := detect.NewDetector(loaded.Matrix(), detect.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	sc, err := scanner.New(detector, scanner.Config{ChunkSize: 4096})
	if err != nil {
		t.Fatal(err)
	}

	clean, err := sc.Scan(context.Background(), bytes.NewReader(fixtures.CycleBytes(8, 100000)))
	if err != nil {
		t.Fatal(err)
	}
	if clean.Anomalous {
		t.Errorf("clean stream flagged (likelihood %v, zero run %d)", clean.Likelihood, clean.LongestZeroRun)
	}

	tampered, err := sc.Scan(context.Background(), bytes.NewReader(fixtures.RandomNonzeroBytes(1, 100000)))
	if err != nil {
		t.Fatal(err)
	}
	if !tampered.Anomalous {
		t.Errorf("off-model stream not flagged (likelihood %v)", tampered.Likelihood)
	}
	if tampered.Likelihood >= clean.Likelihood {
		t.Errorf("tampered likelihood %v should be below clean %v", tampered.Likelihood, clean.Likelihood)
	}
}

// TestConcurrentStreamsShareOneDetector exercises many streams scanning
// concurrently against a single detector, matching the one-state-per-stream,
// shared-read-only-model concurrency contract.
func TestConcurrentStreamsShareOneDetector(t *testing.T) {
	detector, err := detect.NewDetector(fixtures.CycleModel(8), detect.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	sc, err := scanner.New(detector, scanner.Config{ChunkSize: 1024})
	if err != nil {
		t.Fatal(err)
	}

	const streams = 32
	results := make([]*scanner.Result, streams)
	var wg sync.WaitGroup
	for i := 0; i < streams; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := fixtures.CycleBytes(8, 10000+i)
			r, err := sc.Scan(context.Background(), bytes.NewReader(data))
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r == nil {
			continue
		}
		if r.Bytes != int64(10000+i) {
			t.Errorf("stream %d: Bytes = %d, want %d", i, r.Bytes, 10000+i)
		}
		if r.Anomalous {
			t.Errorf("stream %d flagged (likelihood %v)", i, r.Likelihood)
		}
	}
}

// TestStartupFailsWithoutModel checks the fail-fast path: a missing or
// malformed model file must refuse to produce a detector.
func TestStartupFailsWithoutModel(t *testing.T) {
	dir := t.TempDir()

	if _, err := model.Load(filepath.Join(dir, "nope.npy")); err == nil {
		t.Error("expected error for missing model file")
	}

	bad := filepath.Join(dir, "bad.npy")
	if err := os.WriteFile(bad, []byte("\x93NUMPYxx"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := model.Load(bad); err == nil {
		t.Error("expected error for malformed model file")
	}
}
