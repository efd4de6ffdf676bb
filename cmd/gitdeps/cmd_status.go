package main

import (
	"github.com/odvcencio/gitdeps/pkg/deps"
	"github.com/spf13/cobra"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which dependency files a sync would download or delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			opts, cleanup, err := g.options(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := deps.Status(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
