package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var report reportOptions

	cmd := &cobra.Command{
		Use:   "generate [prompt.wav]",
		Short: "Complete a prompt WAV and write the continuations",
		Long: "Preprocess the prompt, encode it to latents and generate " +
			"--num-completions continuations. Each one is decoded, normalized, " +
			"trimmed and written to --out.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := report.validate(); err != nil {
				return err
			}

			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			mode, err := cfg.SpeakerMode()
			if err != nil {
				return err
			}

			ec, err := execContext(cfg)
			if err != nil {
				return err
			}

			promptPath := cfg.Paths.Prompt
			if len(args) == 1 {
				promptPath = args[0]
			}

			if strings.TrimSpace(promptPath) == "" {
				return errors.New("prompt path is required")
			}

			if _, err := os.Stat(promptPath); err != nil {
				return fmt.Errorf("read prompt %q: %w", promptPath, err)
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

			p := newPipeline(cfg, mode, ec, tok, gen, cfg.Generate.PromptSeconds)

			dc, err := openCache(cfg)
			if err != nil {
				return err
			}
			if dc != nil {
				defer dc.Close()
				p.Cache = dc
			}

			res, err := p.Run(cmd.Context(), promptPath)
			if err != nil {
				return err
			}

			return report.finish(cmd, res, true)
		},
	}

	report.register(cmd)

	return cmd
}
