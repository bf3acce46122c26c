// Command citysim reads a SimulationInput JSON from a file argument (or stdin),
// runs the simulation, and writes the SimulationLog JSON to stdout.
//
// Settings come from citysim.cfg.json in CITYSIM_CONFIG_DIR (default the
// working directory), CITYSIM_* environment variables and an optional .env
// file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cxd309/citysim-engine/internal/config"
	"github.com/cxd309/citysim-engine/internal/engine"
	"github.com/cxd309/citysim-engine/internal/logging"
	"github.com/cxd309/citysim-engine/internal/recorder"
	"github.com/cxd309/citysim-engine/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "citysim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	dir := os.Getenv("CITYSIM_CONFIG_DIR")
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	var data []byte
	if len(os.Args) > 1 {
		data, err = os.ReadFile(os.Args[1])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	metrics, err := telemetry.New(telemetry.Meter(cfg.Metrics))
	if err != nil {
		return err
	}
	opts, gopts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	var sink engine.Sink
	if cfg.Recorder.Enabled {
		rec, err := openRecorder(cfg.Recorder.Path, data, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing recorder")
			}
		}()
		sink = rec
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := engine.RunJSONWith(ctx, string(data), opts, gopts, logger, metrics, sink)
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}
	fmt.Println(result)
	return nil
}

// openRecorder opens the snapshot database and starts a run named after the
// input's simulation id.
func openRecorder(path string, input []byte, logger zerolog.Logger) (*recorder.Recorder, error) {
	var head struct {
		Meta engine.SimulationMeta `json:"simulation_meta"`
	}
	if err := json.Unmarshal(input, &head); err != nil {
		return nil, fmt.Errorf("invalid input JSON: %w", err)
	}
	rec, err := recorder.Open(path, logger)
	if err != nil {
		return nil, err
	}
	if _, err := rec.Begin(head.Meta.SimulationID); err != nil {
		_ = rec.Close()
		return nil, err
	}
	return rec, nil
}
