//go:build js && wasm

// Command wasm runs transit scenarios inside a browser page. Loading the
// module defines one global function:
//
//	runSimulation(scenarioYAML) -> string | {error: string}
//
// scenarioYAML carries streets, routes, lines with their timetables, and an
// optional simulation block (start, step_seconds, ticks, base_speed). Unset
// simulation fields fall back to a 60s step over one full day at unit speed.
// On success the result is the JSON simulation log: run_id, start, step_time
// and one output entry per tick listing every live vehicle's id, line and
// position. A scenario that fails to parse or validate, or a run that halts,
// yields an object whose error field holds the message.
package main

import (
	"syscall/js"

	"github.com/cxd309/transit-engine/internal/engine"
)

func main() {
	js.Global().Set("runSimulation", js.FuncOf(runSimulation))
	select {} // keep the WASM module alive until the page is closed
}

func runSimulation(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return map[string]any{"error": "no scenario provided"}
	}

	result, err := engine.RunYAML(args[0].String())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}
