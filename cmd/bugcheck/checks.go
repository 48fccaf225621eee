package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"bugcheck/internal/check"
	"bugcheck/internal/scanner"
)

func newChecksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checks [NAME]",
		Short: "List the known checks or explain one",
		Long: `List every known check with the severity it reports at after the
configuration and overrides are applied. With a name, print the full
explanation of that check.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChecks,
	}
	cmd.Flags().String("format", "text", "output format (text|json)")
	cmd.Flags().Bool("enabled", false, "list only enabled checks")
	return cmd
}

type checkEntry struct {
	Name        string   `json:"name"`
	AltNames    []string `json:"alt_names,omitempty"`
	Severity    string   `json:"severity"`
	Enabled     bool     `json:"enabled"`
	Suppress    string   `json:"suppress"`
	Summary     string   `json:"summary"`
	Link        string   `json:"link,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

func runChecks(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	onlyEnabled, err := cmd.Flags().GetBool("enabled")
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	sup, err := s.opts.EffectiveSupplier()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		c, ok := sup.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown check %q", args[0])
		}
		e := entryFor(sup, c)
		if format == "json" {
			return writeJSON(out, e)
		}
		explain(out, e)
		return nil
	}

	entries := listChecks(sup, onlyEnabled)
	switch format {
	case "json":
		return writeJSON(out, entries)
	case "text":
		writeCheckTable(out, entries)
		return nil
	}
	return fmt.Errorf("unknown format %q (expected text|json)", format)
}

// listChecks returns the entries in listing order.
func listChecks(sup *scanner.Supplier, onlyEnabled bool) []checkEntry {
	var out []checkEntry
	for _, c := range sup.AllChecks() {
		e := entryFor(sup, c)
		if onlyEnabled && !e.Enabled {
			continue
		}
		e.Explanation = ""
		out = append(out, e)
	}
	return out
}

func entryFor(sup *scanner.Supplier, c *check.Check) checkEntry {
	info := c.Info()
	sev, enabled := sup.Severity(info.Name)
	if !enabled {
		sev = info.Severity
	}
	return checkEntry{
		Name:        info.Name,
		AltNames:    info.AltNames,
		Severity:    sev.String(),
		Enabled:     enabled && !sup.IsDisabled(info.Name),
		Suppress:    info.Suppress.String(),
		Summary:     info.Summary,
		Link:        info.Link,
		Tags:        info.Tags,
		Explanation: info.Explanation,
	}
}

func writeCheckTable(w io.Writer, entries []checkEntry) {
	nameWidth := len("NAME")
	for _, e := range entries {
		nameWidth = max(nameWidth, runewidth.StringWidth(e.Name))
	}
	fmt.Fprintf(w, "%s  %-8s %s\n", runewidth.FillRight("NAME", nameWidth), "SEVERITY", "SUMMARY")
	for _, e := range entries {
		sev := e.Severity
		if !e.Enabled {
			sev = "off"
		}
		fmt.Fprintf(w, "%s  %-8s %s\n", runewidth.FillRight(e.Name, nameWidth), sev, e.Summary)
	}
}

func explain(w io.Writer, e checkEntry) {
	state := e.Severity
	if !e.Enabled {
		state = "off (default " + e.Severity + ")"
	}
	fmt.Fprintf(w, "%s: %s\n", e.Name, e.Summary)
	if len(e.AltNames) > 0 {
		fmt.Fprintf(w, "  also known as: %s\n", strings.Join(e.AltNames, ", "))
	}
	fmt.Fprintf(w, "  severity: %s\n", state)
	fmt.Fprintf(w, "  suppression: %s\n", e.Suppress)
	if len(e.Tags) > 0 {
		fmt.Fprintf(w, "  tags: %s\n", strings.Join(e.Tags, ", "))
	}
	if e.Link != "" {
		fmt.Fprintf(w, "  see: %s\n", e.Link)
	}
	if e.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(e.Explanation))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
