// Package bench aggregates per-completion timings into real-time-factor
// reports.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Run is the timing of one completion.
type Run struct {
	Index   int
	Cold    bool // first completion of the process, includes graph warm-up
	Elapsed time.Duration
	Audio   time.Duration
	RTF     float64
}

// NewRun fills in RTF from the elapsed and audio durations.
func NewRun(index int, elapsed, audio time.Duration) Run {
	return Run{
		Index:   index,
		Cold:    index == 0,
		Elapsed: elapsed,
		Audio:   audio,
		RTF:     CalcRTF(elapsed, audio),
	}
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// Summarize computes min, max and mean elapsed time plus the mean RTF.
func Summarize(runs []Run) Stats {
	if len(runs) == 0 {
		return Stats{}
	}

	s := Stats{Min: runs[0].Elapsed, Max: runs[0].Elapsed}

	var sum time.Duration
	var rtf float64

	for _, r := range runs {
		s.Min = min(s.Min, r.Elapsed)
		s.Max = max(s.Max, r.Elapsed)
		sum += r.Elapsed
		rtf += r.RTF
	}

	s.Mean = sum / time.Duration(len(runs))
	s.MeanRTF = rtf / float64(len(runs))

	return s
}

// CalcRTF returns generation time / audio duration, or 0 for empty audio.
func CalcRTF(elapsed, audio time.Duration) float64 {
	if audio <= 0 {
		return 0
	}
	return float64(elapsed) / float64(audio)
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// Report formats accepted by Write.
const (
	FormatNone  = ""
	FormatTable = "table"
	FormatJSON  = "json"
)

// Write renders runs in format. FormatNone writes nothing.
func Write(w io.Writer, format string, runs []Run) error {
	switch strings.ToLower(format) {
	case FormatNone, "none":
		return nil
	case FormatTable:
		FormatTableTo(w, runs, Summarize(runs))
		return nil
	case FormatJSON:
		return FormatJSONTo(w, runs, Summarize(runs))
	default:
		return fmt.Errorf("unknown report format %q (want table|json)", format)
	}
}

// FormatTableTo writes a human-readable ASCII table of runs to w.
func FormatTableTo(w io.Writer, runs []Run, stats Stats) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 48))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.Elapsed.Milliseconds()),
			float64(r.Audio.Milliseconds()),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 48))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (min)\n", "", "", float64(stats.Min.Milliseconds()), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8.3f  (mean)\n", "", "", float64(stats.Mean.Milliseconds()), "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (max)\n", "", "", float64(stats.Max.Milliseconds()), "", "")

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index     int     `json:"index"`
	Cold      bool    `json:"cold"`
	ElapsedMS float64 `json:"elapsed_ms"`
	AudioMS   float64 `json:"audio_ms"`
	RTF       float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSONTo writes a JSON report of runs to w.
func FormatJSONTo(w io.Writer, runs []Run, stats Stats) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   float64(stats.Min.Milliseconds()),
			MeanMS:  float64(stats.Mean.Milliseconds()),
			MaxMS:   float64(stats.Max.Milliseconds()),
			MeanRTF: stats.MeanRTF,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:     r.Index,
			Cold:      r.Cold,
			ElapsedMS: float64(r.Elapsed.Milliseconds()),
			AudioMS:   float64(r.Audio.Milliseconds()),
			RTF:       r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
