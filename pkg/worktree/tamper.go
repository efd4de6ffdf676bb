package worktree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// OverwritePolicy selects what happens to locally modified files.
type OverwritePolicy string

const (
	// PolicyUnchanged leaves modified files untouched.
	PolicyUnchanged OverwritePolicy = "unchanged"
	// PolicyPrompt asks before overwriting modified files.
	PolicyPrompt OverwritePolicy = "prompt"
	// PolicyForce overwrites modified files without asking.
	PolicyForce OverwritePolicy = "force"
)

// ErrTampered is returned in strict mode when modified files were skipped.
var ErrTampered = errors.New("locally modified files block the sync")

// ParsePolicy validates a policy name.
func ParsePolicy(raw string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyUnchanged, nil
	case PolicyUnchanged, PolicyPrompt, PolicyForce:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overwrite policy %q (want unchanged, prompt or force)", raw)
	}
}

// Prompter asks the user whether modified files may be overwritten.
type Prompter interface {
	ConfirmOverwrite(paths []string) (bool, error)
}

func resolveTampered(policy OverwritePolicy, prompter Prompter, paths []string) (bool, error) {
	switch policy {
	case PolicyForce:
		return true, nil
	case PolicyPrompt:
		if prompter == nil {
			return false, nil
		}
		ok, err := prompter.ConfirmOverwrite(paths)
		if err != nil {
			return false, fmt.Errorf("confirm overwrite: %w", err)
		}
		return ok, nil
	default:
		return false, nil
	}
}

// LinePrompter lists the modified files on Out and reads a y/n answer from In.
// End of input counts as "no".
type LinePrompter struct {
	In  io.Reader
	Out io.Writer
}

// ConfirmOverwrite implements Prompter.
func (p LinePrompter) ConfirmOverwrite(paths []string) (bool, error) {
	fmt.Fprintln(p.Out, "The following files have been modified locally:")
	for _, name := range paths {
		fmt.Fprintf(p.Out, "  %s\n", name)
	}
	fmt.Fprint(p.Out, "Overwrite them? [y/N] ")

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
