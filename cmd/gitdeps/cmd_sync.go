package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/gitdeps/pkg/deps"
	"github.com/odvcencio/gitdeps/pkg/download"
	"github.com/spf13/cobra"
)

func newSyncCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the working tree in line with the dependency manifests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, g)
		},
	}
	g.registerPolicy(cmd.Flags())
	return cmd
}

func runSync(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := g.load(cmd)
	if err != nil {
		return err
	}
	opts, cleanup, err := g.options(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts.DryRun = g.dryRun()
	progress := &progressLine{w: cmd.ErrOrStderr()}
	opts.OnProgress = progress.update

	report, err := deps.Sync(cmd.Context(), opts)
	progress.finish()

	out := cmd.OutOrStdout()
	if report != nil {
		if opts.DryRun {
			printPlan(out, report)
		} else {
			printSyncReport(out, report)
		}
	}
	return err
}

// progressLine redraws a single status line in place.
type progressLine struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

func (p *progressLine) update(pr download.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := pr.String()
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
	p.width = len(line)
}

func (p *progressLine) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

func printSyncReport(out io.Writer, r *deps.Report) {
	printTampered(out, r, "overwrote")
	if r.Downloaded == 0 && r.Deleted == 0 {
		fmt.Fprintln(out, "dependencies are up to date")
		return
	}
	fmt.Fprintf(out, "updated %d file(s), deleted %d, kept %d\n", r.Downloaded, r.Deleted, r.Kept)
	if r.Packs > 0 {
		fmt.Fprintf(out, "read %s from %d pack(s), %d from cache\n", humanize.Bytes(uint64(max(r.Bytes, 0))), r.Packs, r.CacheHits)
	}
	if r.Evicted != nil && r.Evicted.Evicted > 0 {
		fmt.Fprintf(out, "evicted %d cached pack(s) (%s)\n", r.Evicted.Evicted, humanize.Bytes(uint64(r.Evicted.EvictedBytes)))
	}
}

func printPlan(out io.Writer, r *deps.Report) {
	for _, name := range r.ToDownload {
		fmt.Fprintf(out, "  + %s\n", name)
	}
	for _, name := range r.ToDelete {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	printTampered(out, r, "will overwrite")
	if len(r.ToDownload) == 0 && len(r.ToDelete) == 0 {
		fmt.Fprintln(out, "dependencies are up to date")
		return
	}
	fmt.Fprintf(out, "%d file(s) to download from %d pack(s) (%s, %d cached), %d to delete\n",
		len(r.ToDownload), r.Packs, humanize.Bytes(r.PlannedBytes), r.CachedPacks, len(r.ToDelete))
}

// printTampered lists locally modified files, either skipped by the policy
// or about to be replaced.
func printTampered(out io.Writer, r *deps.Report, verb string) {
	if len(r.Skipped) > 0 {
		fmt.Fprintf(out, "%d locally modified file(s) left untouched (use --force to overwrite):\n", len(r.Skipped))
		for _, name := range r.Skipped {
			fmt.Fprintf(out, "  ! %s\n", name)
		}
		return
	}
	if len(r.Tampered) == 0 {
		return
	}
	fmt.Fprintf(out, "%s %d locally modified file(s):\n", verb, len(r.Tampered))
	for _, name := range r.Tampered {
		fmt.Fprintf(out, "  ! %s\n", name)
	}
}
