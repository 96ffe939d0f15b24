package main

import "github.com/spf13/cobra"

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model bundle verification commands",
	}

	cmd.AddCommand(newModelVerifyCmd())
	return cmd
}
