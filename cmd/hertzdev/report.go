package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-hertz-dev/internal/bench"
	"github.com/example/go-hertz-dev/internal/hertz"
)

type reportOptions struct {
	format       string
	rtfThreshold float64
}

func (o *reportOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.format, "report", "", "Per-completion timing report: table|json")
	cmd.Flags().Float64Var(&o.rtfThreshold, "rtf-threshold", 0, "Fail if mean RTF exceeds this value (0 disables)")
}

func (o *reportOptions) validate() error {
	switch o.format {
	case bench.FormatNone, bench.FormatTable, bench.FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown --report format %q (want table|json)", o.format)
	}
}

// finish prints the run summary, the optional timing report and applies the
// RTF gate.
func (o *reportOptions) finish(cmd *cobra.Command, res hertz.BatchResult, listFiles bool) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "run %s: %d completion(s), %s written\n", res.RunID, len(res.Files), humanize.Bytes(uint64(res.Bytes)))

	if listFiles {
		for _, f := range uniq(res.Files) {
			_, _ = fmt.Fprintln(out, f)
		}
	}

	if err := bench.Write(out, o.format, res.Runs); err != nil {
		return err
	}

	return bench.CheckRTFThreshold(bench.Summarize(res.Runs).MeanRTF, o.rtfThreshold)
}

func uniq(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))

	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	return out
}
