package worktree

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreFileName is the per-root file listing paths the sync leaves alone.
const IgnoreFileName = ".gitdepsignore"

// IgnoreChecker matches root-relative paths against .gitdepsignore rules.
// Later rules override earlier ones, so "!" can re-include a path.
type IgnoreChecker struct {
	rules []ignoreRule
}

type ignoreRule struct {
	glob    string
	negate  bool
	dirOnly bool
	// anchored rules match the whole root-relative path; the rest match a
	// single path element at any depth.
	anchored bool
	re       *regexp.Regexp // set for ** globs
}

// LoadIgnoreFile reads root/.gitdepsignore. A missing file yields a checker
// that ignores nothing.
func LoadIgnoreFile(root string) (*IgnoreChecker, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &IgnoreChecker{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return NewIgnoreChecker(f)
}

// NewIgnoreChecker parses one rule per line from r.
func NewIgnoreChecker(r io.Reader) (*IgnoreChecker, error) {
	ic := &IgnoreChecker{}
	if r == nil {
		return ic, nil
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if rule, ok := parseIgnoreRule(scanner.Text()); ok {
			ic.rules = append(ic.rules, rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ic, nil
}

func parseIgnoreRule(line string) (ignoreRule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	var rule ignoreRule
	if rest, ok := strings.CutPrefix(line, "!"); ok {
		rule.negate = true
		line = rest
	}
	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if rest, ok := strings.CutPrefix(line, "/"); ok {
		rule.anchored = true
		line = rest
	}
	if line == "" {
		return ignoreRule{}, false
	}
	rule.anchored = rule.anchored || strings.Contains(line, "/")
	rule.glob = line
	if strings.Contains(line, "**") {
		re, err := regexp.Compile(globstarRegex(line))
		if err != nil {
			return ignoreRule{}, false
		}
		rule.re = re
	}
	return rule, true
}

// IsIgnored reports whether the slash-separated root-relative path name is
// ignored, either itself or through one of its parent directories.
func (ic *IgnoreChecker) IsIgnored(name string) bool {
	if ic == nil || len(ic.rules) == 0 {
		return false
	}
	name = filepath.ToSlash(name)
	for i := len(ic.rules) - 1; i >= 0; i-- {
		if ic.rules[i].matches(name) {
			return !ic.rules[i].negate
		}
	}
	return false
}

func (r *ignoreRule) matches(name string) bool {
	if !r.dirOnly && r.matchElem(name) {
		return true
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' && r.matchElem(name[:i]) {
			return true
		}
	}
	return false
}

// matchElem matches p, a file or directory path, against the rule.
func (r *ignoreRule) matchElem(p string) bool {
	if !r.anchored {
		p = path.Base(p)
	}
	if r.re != nil {
		return r.re.MatchString(p)
	}
	ok, _ := path.Match(r.glob, p)
	return ok
}

// globstarRegex translates a glob with ** into an anchored regular
// expression. "**/" matches zero or more whole directories.
func globstarRegex(glob string) string {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; {
		case strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 2
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return b.String()
}
