package hertz

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/example/go-hertz-dev/internal/audio"
	"github.com/example/go-hertz-dev/internal/bench"
)

// PromptIteration is the NameFor argument used when saving the prompt.
const PromptIteration = -1

// NameFunc maps a batch iteration to an output path.
type NameFunc func(iteration int) string

// FixedName writes every artifact to path, so each save replaces the last.
func FixedName(path string) NameFunc {
	return func(int) string { return path }
}

// IndexedName derives output_000.wav, output_001.wav, ... from path. The
// prompt is written as output_prompt.wav.
func IndexedName(path string) NameFunc {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	return func(iteration int) string {
		if iteration == PromptIteration {
			return stem + "_prompt" + ext
		}

		return fmt.Sprintf("%s_%03d%s", stem, iteration, ext)
	}
}

// Sink persists a waveform under name and reports the bytes written.
type Sink interface {
	Save(ctx context.Context, name string, w *audio.Waveform) (int, error)
}

// FileSink writes WAV files in Format.
type FileSink struct {
	Format string
}

func (s FileSink) Save(ctx context.Context, name string, w *audio.Waveform) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return audio.WriteWAVFile(name, w, s.Format)
}

// Completer produces one trimmed output waveform from a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt Latents, params CompletionParams) (*audio.Waveform, error)
}

// BatchRunner repeats a completion N times from the same prompt.
type BatchRunner struct {
	Completer Completer
	Sink      Sink
	NameFor   NameFunc
	N         int
}

// BatchResult lists what a run wrote and how long each completion took.
type BatchResult struct {
	RunID string
	Files []string
	Bytes int
	Runs  []bench.Run
}

// Run invokes the completer N times with identical inputs and saves each
// result. The first error stops the run.
func (b *BatchRunner) Run(ctx context.Context, prompt Latents, params CompletionParams) (BatchResult, error) {
	res := BatchResult{RunID: uuid.NewString()}
	log := slog.With("run_id", res.RunID)

	log.Info("generating completions", "count", b.N, "prompt_steps", prompt.Steps)

	start := time.Now()

	for i := range b.N {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("completion %d: %w", i, err)
		}

		t0 := time.Now()

		w, err := b.Completer.Complete(ctx, prompt, params)
		if err != nil {
			return res, fmt.Errorf("completion %d: %w", i, err)
		}

		run := bench.NewRun(i, time.Since(t0), w.Duration())

		name := b.NameFor(i)

		n, err := b.Sink.Save(ctx, name, w)
		if err != nil {
			return res, fmt.Errorf("completion %d: save %s: %w", i, name, err)
		}

		res.Files = append(res.Files, name)
		res.Bytes += n
		res.Runs = append(res.Runs, run)

		log.Info("saved completion",
			"iteration", i+1,
			"of", b.N,
			"path", name,
			"duration", w.Duration(),
			"rtf", fmt.Sprintf("%.3f", run.RTF),
			"size", humanize.Bytes(uint64(n)),
		)
	}

	log.Info("batch complete",
		"completions", b.N,
		"written", humanize.Bytes(uint64(res.Bytes)),
		"elapsed", time.Since(start).Round(time.Millisecond),
		"mean_rtf", fmt.Sprintf("%.3f", bench.Summarize(res.Runs).MeanRTF),
	)

	return res, nil
}
