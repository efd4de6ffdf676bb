package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/gitdeps/pkg/deps"
	"github.com/spf13/cobra"
)

func newGcCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Evict old packs from the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Cache.Disabled {
				return errors.New("the pack cache is disabled")
			}
			opts, cleanup, err := g.options(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := deps.CollectGarbage(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.Evicted == 0 {
				fmt.Fprintf(out, "nothing to evict (%d pack(s), %s of %s budget)\n",
					summary.Entries, humanize.Bytes(uint64(summary.TotalBytes)), humanize.Bytes(uint64(summary.Budget)))
				return nil
			}
			fmt.Fprintf(out, "evicted %d of %d pack(s), freed %s\n",
				summary.Evicted, summary.Entries, humanize.Bytes(uint64(summary.EvictedBytes)))
			return nil
		},
	}
}
