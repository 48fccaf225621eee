// Package diag defines the diagnostic model shared by checks, the scanner,
// the fix engine and the output formatters.
//
// # Data model
//
// Diagnostic is the central record, one per (node, check) firing:
//
//   - Check – canonical name of the check that produced it.
//   - Severity – effective severity after overrides (Info, Warning, Error).
//   - Message – human oriented text; keep it short and actionable.
//   - Primary – the source.Span of the offending node.
//   - Notes – optional secondary spans for context.
//   - Fixes – ordered alternatives; a consumer applies at most one.
//
// A Fix is data only: Replacements in descending start order that never
// overlap, plus the imports it needs added and those it may remove. Building
// fixes is the job of internal/fix; applying them to text lives there too.
//
// # Emitting diagnostics
//
// Producers report through a Reporter. BagReporter collects into a Bag, which
// supports sorting into document order, deduplication and filtering.
// DedupReporter and MultiReporter compose reporters; SyncReporter makes one
// safe to share between units analysed in parallel.
package diag
