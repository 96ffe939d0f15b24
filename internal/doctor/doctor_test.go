package doctor_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/doctor"
)

var errLibraryNotFound = errors.New("unable to detect ONNX Runtime library path")

func runtimeOK(ver string) doctor.RuntimeFunc {
	return func() (string, string, error) { return "/usr/lib/libonnxruntime.so", ver, nil }
}

func hasFailureContaining(failures []string, sub string) bool {
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), sub) {
			return true
		}
	}

	return false
}

func TestRun_AllChecksPass(t *testing.T) {
	cfg := doctor.Config{
		Runtime:       runtimeOK("1.23.0"),
		Manifests:     []doctor.Manifest{{Label: "tokenizer", Path: "models/tokenizer/manifest.json"}},
		CheckManifest: func(string) (int, error) { return 2, nil },
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "tokenizer manifest: models/tokenizer/manifest.json (2 graphs)") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRun_RuntimeMissingFails(t *testing.T) {
	cfg := doctor.Config{
		Runtime: func() (string, string, error) { return "", "", errLibraryNotFound },
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() || !hasFailureContaining(result.Failures(), "onnx runtime") {
		t.Fatalf("failures = %v; want onnx runtime failure", result.Failures())
	}
}

func TestRun_RuntimeVersion(t *testing.T) {
	tests := []struct {
		ver     string
		wantErr bool
	}{
		{"1.23.2", false},
		{"1.17.0", false},
		{"2.0.0", false},
		{"unknown", false},
		{"1.16.3", true},
		{"0.9", true},
		{"garbage", true},
	}

	for _, tt := range tests {
		t.Run(tt.ver, func(t *testing.T) {
			var out strings.Builder

			result := doctor.Run(doctor.Config{Runtime: runtimeOK(tt.ver)}, &out)
			if result.Failed() != tt.wantErr {
				t.Errorf("Failed() = %v; want %v (failures %v)", result.Failed(), tt.wantErr, result.Failures())
			}
		})
	}
}

func TestRun_ManifestFailures(t *testing.T) {
	cfg := doctor.Config{
		SkipRuntime: true,
		Manifests: []doctor.Manifest{
			{Label: "tokenizer", Path: "a.json"},
			{Label: "generator/split", Path: "b.json"},
		},
		CheckManifest: func(path string) (int, error) {
			if path == "b.json" {
				return 0, errors.New("hertz_head: graph not found in manifest")
			}

			return 2, nil
		},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if len(result.Failures()) != 1 || !hasFailureContaining(result.Failures(), "generator/split") {
		t.Errorf("failures = %v", result.Failures())
	}

	body := out.String()
	if !strings.Contains(body, doctor.PassMark) || !strings.Contains(body, doctor.FailMark) {
		t.Errorf("output should contain both markers:\n%s", body)
	}
}

func TestRun_ManifestExistenceWithoutChecker(t *testing.T) {
	cfg := doctor.Config{
		SkipRuntime: true,
		Manifests:   []doctor.Manifest{{Label: "tokenizer", Path: "/nonexistent/manifest.json"}},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "tokenizer manifest") {
		t.Errorf("failures = %v", result.Failures())
	}
}

func TestRun_PromptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.wav")
	if _, err := audio.WriteWAVFile(path, audio.NewWaveform(44100, make([]float32, 44100)), audio.FormatPCM16); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	result := doctor.Run(doctor.Config{SkipRuntime: true, PromptFile: path}, &out)

	if result.Failed() {
		t.Fatalf("failures = %v", result.Failures())
	}

	if !strings.Contains(out.String(), "1 ch, 44100 Hz, 1s") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_PromptFileMissingOrInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.wav")
	if err := os.WriteFile(bad, []byte("not a wav"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.wav"), bad} {
		var out strings.Builder

		result := doctor.Run(doctor.Config{SkipRuntime: true, PromptFile: path}, &out)
		if !hasFailureContaining(result.Failures(), "prompt file") {
			t.Errorf("%s: failures = %v", path, result.Failures())
		}
	}
}

func TestRun_SkipRuntime(t *testing.T) {
	var out strings.Builder

	result := doctor.Run(doctor.Config{SkipRuntime: true}, &out)
	if result.Failed() {
		t.Fatalf("unexpected failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "onnx runtime: skipped") {
		t.Errorf("output = %q", out.String())
	}
}

func TestResult_AddFailure(t *testing.T) {
	var r doctor.Result
	r.AddFailure("external")

	if !r.Failed() || r.Failures()[0] != "external" {
		t.Errorf("failures = %v", r.Failures())
	}
}
