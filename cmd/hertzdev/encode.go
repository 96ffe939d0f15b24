package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-hertz-dev/internal/hertz"
)

func newEncodeCmd() *cobra.Command {
	var latentsOut string

	cmd := &cobra.Command{
		Use:   "encode [prompt.wav]",
		Short: "Encode a prompt WAV to latents (.safetensors)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(latentsOut) == "" {
				return errors.New("--latents-out is required")
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

			w, err := hertz.LoadPrompt(promptPath, mode)
			if err != nil {
				return err
			}

			tok, closeTok, err := buildTokenizer(cfg)
			if err != nil {
				return err
			}
			defer closeTok.Close()

			enc := &hertz.Encoder{Tokenizer: tok, Mode: mode, Exec: ec}

			latents, err := enc.Encode(cmd.Context(), w)
			if err != nil {
				return err
			}

			meta := hertz.LatentFile{Mode: mode, PromptSeconds: cfg.Generate.PromptSeconds, Precision: ec.Precision}
			if err := hertz.SaveLatents(latentsOut, latents, meta); err != nil {
				return fmt.Errorf("write latents: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "encoded %s -> %s %v\n", promptPath, latentsOut, latents.Shape())

			return nil
		},
	}

	cmd.Flags().StringVar(&latentsOut, "latents-out", "", "Output latents .safetensors path")

	return cmd
}
