// Package fuzztests houses fuzz harnesses for the analysis pipeline
// (source -> syntax tree -> scanner -> fix engine). They guard against
// panics, hangs and broken span invariants on arbitrary input.
//
// Inputs that do not parse as Go are skipped; the interesting space is
// valid but unusual code.
package fuzztests
