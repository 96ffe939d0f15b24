package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-hertz-dev/internal/config"
	"github.com/example/go-hertz-dev/internal/doctor"
	"github.com/example/go-hertz-dev/internal/model"
	"github.com/example/go-hertz-dev/internal/onnx"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			mode, modeErr := cfg.SpeakerMode()
			if modeErr != nil {
				mode = config.SpeakerSingle
			}

			_, _ = fmt.Fprintf(out, "speaker mode: %s (variant %s)\n", mode, mode.Variant())

			dcfg := doctor.Config{
				Runtime: func() (string, string, error) {
					info, err := onnx.DetectRuntime(cfg.Runtime)
					return info.LibraryPath, info.Version, err
				},
				CheckManifest: countGraphs,
				PromptFile:    cfg.Paths.Prompt,
			}

			for _, b := range model.Bundles(model.VerifyOptions{
				TokenizerManifest: cfg.Paths.TokenizerManifest,
				ModelDir:          cfg.Paths.ModelDir,
				Mode:              mode,
			}) {
				dcfg.Manifests = append(dcfg.Manifests, doctor.Manifest{Label: b.Role, Path: b.Manifest})
			}

			result := doctor.Run(dcfg, out)

			if modeErr != nil {
				result.AddFailure(fmt.Sprintf("speaker mode: %v", modeErr))
				_, _ = fmt.Fprintf(out, "%s speaker mode: %v\n", doctor.FailMark, modeErr)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

func countGraphs(path string) (int, error) {
	sm, err := onnx.NewSessionManager(path)
	if err != nil {
		return 0, err
	}

	return len(sm.Sessions()), nil
}
