package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-hertz-dev/internal/model"
	"github.com/example/go-hertz-dev/internal/onnx"
)

var runModelVerify = model.Verify

func newModelVerifyCmd() *cobra.Command {
	var skipRun bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the tokenizer and model bundles and smoke-run every graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			mode, err := cfg.SpeakerMode()
			if err != nil {
				return err
			}

			opts := model.VerifyOptions{
				TokenizerManifest: cfg.Paths.TokenizerManifest,
				ModelDir:          cfg.Paths.ModelDir,
				Mode:              mode,
				SkipRun:           skipRun,
				Stdout:            cmd.OutOrStdout(),
				Stderr:            cmd.ErrOrStderr(),
			}

			if !skipRun {
				opts.Runner, err = onnx.RunnerConfigFor(cfg.Runtime)
				if err != nil {
					return err
				}
			}

			if err := runModelVerify(cmd.Context(), opts); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "model verify passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&skipRun, "skip-run", false, "Only validate manifests and graph contracts")

	return cmd
}
