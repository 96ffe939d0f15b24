package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-hertz-dev/internal/hertz"
)

func newCompleteCmd() *cobra.Command {
	var (
		latentsPath string
		report      reportOptions
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Generate completions from encoded prompt latents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := report.validate(); err != nil {
				return err
			}

			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(latentsPath) == "" {
				return errors.New("--latents is required")
			}

			mode, err := cfg.SpeakerMode()
			if err != nil {
				return err
			}

			latents, meta, err := hertz.LoadLatents(latentsPath)
			if err != nil {
				return err
			}

			if meta.Mode != mode {
				return fmt.Errorf("latents were encoded for %s but %s is selected", meta.Mode, mode)
			}

			ec, err := execContext(cfg)
			if err != nil {
				return err
			}

			promptSeconds := cfg.Generate.PromptSeconds
			if !cmd.Flags().Changed("prompt-seconds") && meta.HasPromptSeconds {
				promptSeconds = meta.PromptSeconds
			}

			tok, closeTok, err := buildTokenizer(cfg)
			if err != nil {
				return err
			}
			defer closeTok.Close()

			gen, closeGen, err := buildGenerator(cfg, mode)
			if err != nil {
				return err
			}
			defer closeGen.Close()

			p := newPipeline(cfg, mode, ec, tok, gen, promptSeconds)

			res, err := p.RunLatents(cmd.Context(), latents)
			if err != nil {
				return err
			}

			return report.finish(cmd, res, false)
		},
	}

	cmd.Flags().StringVar(&latentsPath, "latents", "", "Prompt latents .safetensors written by encode")
	report.register(cmd)

	return cmd
}
