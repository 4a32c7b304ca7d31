// masterbase-detect scores demo streams for likely tampering against a
// reference byte-transition model.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MegaAntiCheat/masterbase/internal/config"
	"github.com/MegaAntiCheat/masterbase/internal/detect"
	"github.com/MegaAntiCheat/masterbase/internal/logging"
	"github.com/MegaAntiCheat/masterbase/internal/metrics"
	"github.com/MegaAntiCheat/masterbase/internal/model"
	"github.com/MegaAntiCheat/masterbase/internal/scanner"
)

const version = "0.3.0"

var (
	configPath = flag.String("config", "", "path to config file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	initLogging(cfg)

	switch flag.Arg(0) {
	case "scan":
		os.Exit(cmdScan(cfg, flag.Args()[1:]))
	case "train":
		os.Exit(cmdTrain(flag.Args()[1:]))
	case "version":
		fmt.Println("masterbase-detect", version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: masterbase-detect [-config file] <command> [args]

Commands:
  scan [-json] <file...|->   score demo streams; "-" reads stdin
  train -out <model> <file...>  build a reference model from clean demos
  version                    print version
  help                       show this help

Scan exits 0 when every stream is clean, 3 when any stream is flagged
as anomalous, and 1 when any stream fails to scan. The anomalous exit
code takes precedence over the failure one: a flagged stream is the
signal downstream tooling acts on.
`)
}

func initLogging(cfg *config.Config) {
	logCfg := logging.DefaultConfig()
	logCfg.Format = cfg.Logging.Format
	switch cfg.Logging.Level {
	case "debug":
		logCfg.Level = logging.LevelDebug
	case "warn":
		logCfg.Level = logging.LevelWarn
	case "error":
		logCfg.Level = logging.LevelError
	default:
		logCfg.Level = logging.LevelInfo
	}
	logging.Init(logCfg)
}

func cmdScan(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "emit one JSON object per stream")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: masterbase-detect scan [-json] <file...|->")
		return 2
	}

	m, err := model.Load(cfg.Model.Path)
	if err != nil {
		// No meaningful score can be computed without the model.
		logging.ModelLogger().Error("reference model load failed", "err", err)
		return 1
	}
	detector, err := detect.NewDetector(m.Matrix(), cfg.Detection.Thresholds())
	if err != nil {
		logging.ModelLogger().Error("reference model rejected", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanCfg := scanner.Config{ChunkSize: cfg.Scanner.ChunkSize}
	if cfg.Metrics.Enabled {
		collector := metrics.New()
		scanCfg.Collector = collector
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logging.MetricsLogger().Error("metrics endpoint failed", "err", err)
			}
		}()
	}

	sc, err := scanner.New(detector, scanCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var sawError, sawAnomalous bool
	for _, name := range fs.Args() {
		result, err := scanStream(ctx, sc, name)
		if err != nil {
			logging.ScannerLogger().Error("scan failed", "stream", name, "err", err)
			sawError = true
			continue
		}
		if err := printResult(name, result, *asJSON); err != nil {
			logging.ScannerLogger().Error("writing result", "stream", name, "err", err)
			sawError = true
		}
		if result.Anomalous {
			sawAnomalous = true
		}
	}
	return scanExitCode(sawError, sawAnomalous)
}

// scanExitCode folds per-stream outcomes into the process exit code. An
// anomalous stream wins over a failed one: the flag is what downstream
// tooling acts on, and a failure never hides it.
func scanExitCode(sawError, sawAnomalous bool) int {
	switch {
	case sawAnomalous:
		return 3
	case sawError:
		return 1
	default:
		return 0
	}
}

func scanStream(ctx context.Context, sc *scanner.Scanner, name string) (*scanner.Result, error) {
	var r io.Reader
	if name == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return sc.Scan(ctx, r)
}

func printResult(name string, result *scanner.Result, asJSON bool) error {
	if asJSON {
		out := struct {
			Stream string `json:"stream"`
			*scanner.Result
		}{name, result}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	verdict := "clean"
	if result.Anomalous {
		verdict = "ANOMALOUS"
	}
	_, err := fmt.Printf("%s: %s likelihood=%.6g zero_run=%d bytes=%d blake3=%s\n",
		name, verdict, result.Likelihood, result.LongestZeroRun, result.Bytes, result.Digest)
	return err
}

func cmdTrain(args []string) int {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	out := fs.String("out", "S_hat.npy", "output model path")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: masterbase-detect train -out <model> <file...>")
		return 2
	}

	log := logging.ModelLogger()
	trainer := model.NewTrainer()
	for _, name := range fs.Args() {
		f, err := os.Open(name)
		if err != nil {
			log.Error("opening training stream", "stream", name, "err", err)
			return 1
		}
		n, err := trainer.AddReader(f)
		f.Close()
		if err != nil {
			log.Error("counting training stream", "stream", name, "err", err)
			return 1
		}
		log.Info("counted training stream", "stream", name, "bytes", n)
	}

	m, err := trainer.Model()
	if err != nil {
		log.Error("building model", "err", err)
		return 1
	}
	if err := model.WriteNPY(*out, m.Matrix()); err != nil {
		log.Error("writing model", "err", err)
		return 1
	}
	log.Info("reference model written",
		"path", *out, "streams", trainer.Streams(), "transitions", trainer.Transitions())
	return 0
}
