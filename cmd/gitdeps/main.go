package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/odvcencio/gitdeps/pkg/deps"
	"github.com/spf13/cobra"
)

// argsEnv holds default arguments prepended to the command line.
const argsEnv = "GITDEPS_ARGS"

const (
	exitFailure   = 1
	exitRetryable = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(withDefaultArgs(os.Getenv(argsEnv), os.Args[1:]))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	g := newGlobalFlags()
	root := &cobra.Command{
		Use:   "gitdeps",
		Short: "Synchronize binary dependencies described by *.gitdeps.xml manifests",
		Long: "gitdeps reads every dependency manifest under the root, downloads the packs\n" +
			"holding missing or outdated files, and removes files no manifest wants.\n" +
			"Running it with no subcommand performs a sync.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, g)
		},
	}
	g.register(root)
	g.registerPolicy(root.Flags())

	root.AddCommand(newSyncCmd(g))
	root.AddCommand(newStatusCmd(g))
	root.AddCommand(newGcCmd(g))
	root.AddCommand(newPackCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// withDefaultArgs prepends the whitespace separated arguments in env to args,
// so anything given explicitly on the command line wins.
func withDefaultArgs(env string, args []string) []string {
	defaults := strings.Fields(env)
	if len(defaults) == 0 {
		return args
	}
	return append(defaults, args...)
}

// exitCode tells wrapper scripts whether running again may help.
func exitCode(err error) int {
	if deps.Retryable(err) {
		return exitRetryable
	}
	return exitFailure
}
