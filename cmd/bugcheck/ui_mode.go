package main

import (
	"fmt"
	"os"
	"strings"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// uiRun is what a run looks like from the progress view's point of view.
type uiRun struct {
	target        string
	quiet         bool
	traceOnStderr bool // a stream tracer writes to stderr
	stderrIsTTY   bool
}

// wantsProgressUI decides whether a run draws the progress view on stderr.
// Quiet runs, standard input and traces streamed to stderr never get one;
// --ui=on only overrides terminal detection.
func wantsProgressUI(mode uiMode, run uiRun) bool {
	if mode == uiModeOff || run.quiet || run.target == "-" || run.traceOnStderr {
		return false
	}
	return mode == uiModeOn || run.stderrIsTTY
}

func currentUIRun(target string, quiet bool) uiRun {
	return uiRun{
		target:        target,
		quiet:         quiet,
		traceOnStderr: traceOnStderr,
		stderrIsTTY:   isTerminal(os.Stderr),
	}
}
