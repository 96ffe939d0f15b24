// Package doctor provides environment preflight checks for hertzdev.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/example/go-hertz-dev/internal/audio"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Minimum ONNX Runtime release that ships API version 23 symbols we rely on.
const (
	minORTMajor = 1
	minORTMinor = 17
)

// RuntimeFunc reports the ONNX Runtime library path and version.
type RuntimeFunc func() (path, version string, err error)

// ManifestFunc loads a manifest and reports its graph count.
type ManifestFunc func(path string) (graphs int, err error)

// Manifest is one model bundle to check.
type Manifest struct {
	Label string
	Path  string
}

// Config holds injectable dependencies for each doctor check.
type Config struct {
	Runtime     RuntimeFunc
	SkipRuntime bool

	Manifests     []Manifest
	CheckManifest ManifestFunc

	// PromptFile is optional. When set it must decode as WAV.
	PromptFile string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	if cfg.SkipRuntime || cfg.Runtime == nil {
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
	} else {
		path, ver, err := cfg.Runtime()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		case checkRuntimeVersion(ver) != nil:
			verErr := checkRuntimeVersion(ver)
			res.fail(fmt.Sprintf("onnx runtime version: %v", verErr))
			fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, ver, verErr)
		default:
			fmt.Fprintf(w, "%s onnx runtime: %s (%s)\n", PassMark, path, ver)
		}
	}

	for _, m := range cfg.Manifests {
		if cfg.CheckManifest == nil {
			if _, err := os.Stat(m.Path); err != nil {
				res.fail(fmt.Sprintf("%s manifest %q: %v", m.Label, m.Path, err))
				fmt.Fprintf(w, "%s %s manifest %s: not found\n", FailMark, m.Label, m.Path)
			} else {
				fmt.Fprintf(w, "%s %s manifest: %s\n", PassMark, m.Label, m.Path)
			}

			continue
		}

		n, err := cfg.CheckManifest(m.Path)
		if err != nil {
			res.fail(fmt.Sprintf("%s manifest %q: %v", m.Label, m.Path, err))
			fmt.Fprintf(w, "%s %s manifest %s: %v\n", FailMark, m.Label, m.Path, err)

			continue
		}

		fmt.Fprintf(w, "%s %s manifest: %s (%d graphs)\n", PassMark, m.Label, m.Path, n)
	}

	if cfg.PromptFile != "" {
		checkPrompt(cfg.PromptFile, w, &res)
	}

	return res
}

func checkPrompt(path string, w io.Writer, res *Result) {
	info, err := os.Stat(path)
	if err != nil {
		res.fail(fmt.Sprintf("prompt file %q: %v", path, err))
		fmt.Fprintf(w, "%s prompt file %s: not found\n", FailMark, path)

		return
	}

	wave, err := audio.ReadWAVFile(path)
	if err != nil {
		res.fail(fmt.Sprintf("prompt file %q: %v", path, err))
		fmt.Fprintf(w, "%s prompt file %s: %v\n", FailMark, path, err)

		return
	}

	fmt.Fprintf(w, "%s prompt file: %s (%s, %d ch, %d Hz, %s)\n",
		PassMark, path, humanize.Bytes(uint64(info.Size())), wave.NumChannels(), wave.SampleRate, wave.Duration())
}

// checkRuntimeVersion rejects releases older than 1.17. An unknown version
// passes since the library path was already found.
func checkRuntimeVersion(ver string) error {
	if ver == "" || ver == "unknown" {
		return nil
	}

	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if major < minORTMajor || (major == minORTMajor && minor < minORTMinor) {
		return fmt.Errorf("requires onnxruntime >=%d.%d, got %d.%d", minORTMajor, minORTMinor, major, minor)
	}

	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}

	return major, minor, nil
}
