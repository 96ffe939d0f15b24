// Package testutil provides skip helpers and WAV assertions for integration
// tests.
//
// Each Require helper calls t.Skip with a readable reason when the named
// prerequisite is absent, so integration tests stay runnable in partial
// environments without failing noisily.
//
//	func TestCodecIntegration(t *testing.T) {
//	    lib := testutil.RequireONNXRuntime(t)
//	    manifest := testutil.RequireManifest(t, testutil.TokenizerManifest())
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located and returns the path otherwise. It checks ORT_LIBRARY_PATH, then
// HERTZDEV_ORT_LIB, then common system library paths.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "HERTZDEV_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)

			return ""
		}
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or HERTZDEV_ORT_LIB")

	return ""
}

// ModelDir is the exported model root used by integration tests,
// HERTZDEV_MODEL_DIR or <repo>/models.
func ModelDir() string {
	if d := os.Getenv("HERTZDEV_MODEL_DIR"); d != "" {
		return d
	}

	return filepath.Join(repoRoot(), "models")
}

// TokenizerManifest is the tokenizer manifest under ModelDir.
func TokenizerManifest() string {
	return filepath.Join(ModelDir(), "tokenizer", "manifest.json")
}

// RequireManifest skips the test if the manifest at path does not exist.
func RequireManifest(tb testing.TB, path string) string {
	tb.Helper()

	if _, err := os.Stat(path); err != nil {
		tb.Skipf("ONNX manifest not available at %q: %v", path, err)
		return ""
	}

	return path
}

// repoRoot walks up from the working directory to the directory holding
// go.mod. Tests run from their package directory.
func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}

		dir = parent
	}
}
