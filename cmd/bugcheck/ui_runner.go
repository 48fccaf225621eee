package main

import (
	"github.com/spf13/cobra"

	"bugcheck/internal/driver"
	"bugcheck/internal/ui"
)

// runWithUI hands work a copy of opts whose progress events feed the
// terminal UI. The UI draws on stderr so stdout keeps only the report.
func runWithUI[T any](cmd *cobra.Command, title string, opts driver.Options, work func(driver.Options) (T, error)) (T, error) {
	return ui.Run(cmd.ErrOrStderr(), title, nil, func(sink driver.ProgressSink) (T, error) {
		o := opts
		o.Progress = sink
		return work(o)
	})
}
