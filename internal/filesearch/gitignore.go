package filesearch

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which paths a walk skips: directories named by the
// excluded-directory list and anything matched by loaded gitignore rules.
type Matcher struct {
	excluded []string
	patterns []*gitignorePattern
}

type gitignorePattern struct {
	glob     string
	negation bool
	dirOnly  bool
	anchored bool
}

// NewMatcher creates a matcher for the given excluded directories. Entries
// are doublestar patterns; a pattern with a slash is matched against the
// whole absolute path, otherwise against the directory name.
func NewMatcher(excluded []string) *Matcher {
	return &Matcher{excluded: excluded}
}

// LoadGitignore adds the rules of a .gitignore file. A missing file is not
// an error.
func (m *Matcher) LoadGitignore(gitignorePath string) error {
	file, err := os.Open(gitignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if pattern := parseGitignorePattern(line); pattern != nil {
			m.patterns = append(m.patterns, pattern)
		}
	}
	return scanner.Err()
}

// ExcludedDir reports whether the directory name, at absolute path abs, is
// excluded.
func (m *Matcher) ExcludedDir(name, abs string) bool {
	if m == nil {
		return false
	}
	slashed := filepath.ToSlash(abs)
	for _, pattern := range m.excluded {
		target := name
		if strings.Contains(pattern, "/") {
			target = slashed
		}
		if ok, _ := doublestar.Match(pattern, target); ok {
			return true
		}
	}
	return false
}

// Ignored checks a path relative to the gitignore root. The last matching
// rule wins, so negations can re-include paths.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	// A rule matching a path also matches everything beneath it, so test
	// every leading prefix of the path.
	parts := strings.Split(filepath.ToSlash(rel), "/")
	var lastMatch bool
	for _, pattern := range m.patterns {
		for i := range parts {
			full := i == len(parts)-1
			if pattern.dirOnly && full && !isDir {
				continue
			}
			if pattern.match(strings.Join(parts[:i+1], "/")) {
				lastMatch = !pattern.negation
				break
			}
		}
	}
	return lastMatch
}

func (p *gitignorePattern) match(path string) bool {
	ok, _ := doublestar.Match(p.glob, path)
	return ok
}

// parseGitignorePattern converts a gitignore line to a doublestar glob.
func parseGitignorePattern(pattern string) *gitignorePattern {
	p := &gitignorePattern{}

	if strings.HasPrefix(pattern, "!") {
		p.negation = true
		pattern = pattern[1:]
	}
	if strings.HasPrefix(pattern, "/") {
		p.anchored = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if pattern == "" {
		return nil
	}

	// Unanchored rules may match at any depth.
	if !p.anchored && !strings.HasPrefix(pattern, "**/") {
		pattern = "**/" + pattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil
	}
	p.glob = pattern
	return p
}
