package main

import (
	"fmt"
	"log/slog"

	"github.com/example/go-hertz-dev/internal/cache"
	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/hertz"
	"github.com/example/go-hertz-dev/internal/onnx"
)

type closer func()

func (c closer) Close() {
	if c != nil {
		c()
	}
}

// buildTokenizer loads the latent tokenizer bundle. Replaced in tests.
var buildTokenizer = func(cfg config.Config) (hertz.Tokenizer, closer, error) {
	rcfg, err := onnx.RunnerConfigFor(cfg.Runtime)
	if err != nil {
		return nil, nil, err
	}

	engine, err := onnx.NewEngine(cfg.Paths.TokenizerManifest, rcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init tokenizer engine: %w", err)
	}

	codec, err := onnx.NewCodec(engine)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	return codec, engine.Close, nil
}

// buildGenerator loads the model variant for mode. Replaced in tests.
var buildGenerator = func(cfg config.Config, mode config.SpeakerMode) (hertz.Generator, closer, error) {
	rcfg, err := onnx.RunnerConfigFor(cfg.Runtime)
	if err != nil {
		return nil, nil, err
	}

	manifest := onnx.VariantManifest(cfg.Paths.ModelDir, mode)
	slog.Info("loading model", "variant", mode.Variant(), "manifest", manifest)

	engine, err := onnx.NewEngine(manifest, rcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init %s engine: %w", mode.Variant(), err)
	}

	gen, err := onnx.NewGenerator(engine, mode, onnx.WithSeed(cfg.Generate.Seed))
	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	return gen, engine.Close, nil
}

func execContext(cfg config.Config) (hertz.ExecContext, error) {
	p, err := hertz.ParsePrecision(cfg.Runtime.Precision)
	if err != nil {
		return hertz.ExecContext{}, err
	}

	return hertz.ExecContext{Precision: p}, nil
}

func completionParams(cfg config.Config, promptSeconds float64) hertz.CompletionParams {
	return hertz.CompletionParams{
		PromptLen:       hertz.PromptLenFromSeconds(promptSeconds),
		TokenTemp:       cfg.Generate.TokenTemp,
		CategoricalTemp: cfg.Generate.CategoricalTemp,
		GaussianTemp:    cfg.Generate.GaussianTemp,
		UseCache:        cfg.Generate.UseCache,
		MaxSteps:        cfg.Generate.MaxSteps,
	}
}

func nameFor(cfg config.Config) hertz.NameFunc {
	if cfg.Output.KeepAll {
		return hertz.IndexedName(cfg.Output.Path)
	}

	return hertz.FixedName(cfg.Output.Path)
}

// openCache returns nil when no cache directory is configured.
func openCache(cfg config.Config) (*cache.DiskCache, error) {
	if cfg.Paths.CacheDir == "" {
		return nil, nil
	}

	return cache.NewDiskCache(cfg.Paths.CacheDir)
}

// newPipeline assembles a pipeline around already built collaborators.
func newPipeline(cfg config.Config, mode config.SpeakerMode, ec hertz.ExecContext, tok hertz.Tokenizer, gen hertz.Generator, promptSeconds float64) *hertz.Pipeline {
	return &hertz.Pipeline{
		Mode:           mode,
		Exec:           ec,
		Tokenizer:      tok,
		Generator:      gen,
		Sink:           hertz.FileSink{Format: cfg.Output.Format},
		NameFor:        nameFor(cfg),
		NumCompletions: cfg.Generate.NumCompletions,
		Params:         completionParams(cfg, promptSeconds),
		SavePrompt:     cfg.Output.SavePrompt,
	}
}
