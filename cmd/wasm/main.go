//go:build js && wasm

// Command wasm exposes the city simulation engine to the browser via
// WebAssembly. After loading, it registers two global JavaScript functions:
//
//	runSimulation(jsonString[, logLevel]) -> jsonString | {error}
//	engineDefaults() -> jsonString
//
// Input and output are the JSON-encoded SimulationInput and SimulationLog the
// CLI uses. Log lines go to the browser console as JSON.
package main

import (
	"context"
	"encoding/json"
	"os"
	"syscall/js"

	"github.com/cxd309/citysim-engine/internal/engine"
	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/logging"
)

func main() {
	js.Global().Set("runSimulation", js.FuncOf(runSimulation))
	js.Global().Set("engineDefaults", js.FuncOf(engineDefaults))
	select {}
}

func runSimulation(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return map[string]any{"error": "no input provided"}
	}
	level := "warn"
	if len(args) > 1 && args[1].Type() == js.TypeString {
		level = args[1].String()
	}
	logger := logging.New(os.Stderr, level, "json")

	result, err := engine.RunJSONWith(context.Background(), args[0].String(),
		engine.DefaultOptions(), graph.DefaultOptions(), logger, nil, nil)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}

// engineDefaults reports the defaults a scenario's meta block overrides.
func engineDefaults(_ js.Value, _ []js.Value) any {
	opts := engine.DefaultOptions()
	gopts := graph.DefaultOptions()
	out, err := json.Marshal(map[string]any{
		"time_step":      opts.TimeStep,
		"phase_ticks":    opts.PhaseTicks,
		"spawn_interval": opts.SpawnInterval,
		"seed":           opts.Seed,
		"speed_limit":    gopts.SpeedLimit,
	})
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return string(out)
}
