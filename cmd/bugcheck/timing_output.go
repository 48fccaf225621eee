package main

import (
	"fmt"
	"io"

	"bugcheck/internal/driver"
)

// printTimings writes the phase summary and scan counters of res.
func printTimings(out io.Writer, res *driver.Result) {
	if out == nil || res == nil || res.Timer == nil {
		return
	}
	fmt.Fprint(out, res.Timer.Summary())
	st := res.Stats()
	fmt.Fprintf(out, "scanned %d files: %d nodes, %d check runs, %d matches, %d suppressed, %d failed, %d dropped\n",
		len(res.Units), st.Nodes, st.Invocations, st.Matches, st.Suppressed, st.Failures, st.Dropped)
}
