package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/model"
)

func stubVerify(t *testing.T, fn func(context.Context, model.VerifyOptions) error) {
	t.Helper()

	orig := runModelVerify
	t.Cleanup(func() { runModelVerify = orig })
	runModelVerify = fn
}

func TestModelVerify_SkipRunForwardsOptions(t *testing.T) {
	var got model.VerifyOptions

	stubVerify(t, func(_ context.Context, opts model.VerifyOptions) error {
		got = opts
		return nil
	})

	stdout, err := execute(t, "model", "verify", "--skip-run", "--model-dir", "/m", "--pure-audio-ablation")
	if err != nil {
		t.Fatalf("model verify: %v", err)
	}

	if !got.SkipRun || got.ModelDir != "/m" || got.Mode != config.SpeakerPureAudioAblation {
		t.Errorf("options = %+v", got)
	}

	if !strings.Contains(stdout, "model verify passed") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestModelVerify_PropagatesFailure(t *testing.T) {
	stubVerify(t, func(context.Context, model.VerifyOptions) error {
		return errors.New("verify failed for 1 check(s): tokenizer")
	})

	if _, err := execute(t, "model", "verify", "--skip-run"); err == nil {
		t.Fatal("expected error")
	}
}
