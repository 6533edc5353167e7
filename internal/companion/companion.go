// Package companion guesses which implementation files belong to a header or
// source file by looking for similarly named files nearby.
package companion

import (
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/xonecas/cxxnav/internal/filesearch"
)

// DefaultSearchLimit caps the directories visited per search.
const DefaultSearchLimit = 50

// DefaultSimilarity is the minimum base-name similarity, exclusive.
const DefaultSimilarity = 0.8

// ImplementationExtensions lists the extensions a companion may have.
var ImplementationExtensions = map[string]bool{
	".c":   true,
	".cc":  true,
	".cpp": true,
	".cxx": true,
	".c++": true,
	".m":   true,
	".mm":  true,
}

// Options configures a Finder. Zero values take the defaults.
type Options struct {
	SearchLimit int
	Similarity  float64
	Excluded    []string
}

// Finder locates companion files. It keeps no search state between calls
// and is safe for concurrent use.
type Finder struct {
	limit      int
	similarity float64
	matcher    *filesearch.Matcher
}

// New creates a Finder.
func New(opts Options) *Finder {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.Similarity <= 0 {
		opts.Similarity = DefaultSimilarity
	}
	return &Finder{
		limit:      opts.SearchLimit,
		similarity: opts.Similarity,
		matcher:    filesearch.NewMatcher(opts.Excluded),
	}
}

// DefinitionFiles lazily yields absolute paths of implementation files whose
// base name resembles target's. The target's directory tree is searched
// first, then each ancestor's tree, until the directory budget runs out.
// Directories are never searched twice and unreadable ones are skipped.
func (f *Finder) DefinitionFiles(target string) iter.Seq[string] {
	return func(yield func(string) bool) {
		abs, err := filepath.Abs(target)
		if err != nil {
			return
		}
		s := &search{
			finder:  f,
			stem:    stem(filepath.Base(abs)),
			visited: make(map[string]bool),
			yield:   yield,
		}

		dir := filepath.Dir(abs)
		for {
			if !s.tree(dir) || s.searched >= f.limit {
				return
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				return
			}
			dir = parent
		}
	}
}

// search is the state of one DefinitionFiles iteration.
type search struct {
	finder   *Finder
	stem     string
	visited  map[string]bool
	searched int
	yield    func(string) bool
}

type pending struct {
	dir     string
	entries []os.DirEntry
}

// tree searches dir and its subdirectories depth first, in directory
// listing order. Once the directory budget is spent no further directories
// are opened, but files of directories already open are still checked. It
// returns false once the consumer stops.
func (s *search) tree(root string) bool {
	var stack []*pending
	open := func(dir string) bool {
		s.searched++
		if s.searched > s.finder.limit {
			return false
		}
		s.visited[resolve(dir)] = true
		entries, err := os.ReadDir(dir)
		if err != nil {
			entries = nil
		}
		stack = append(stack, &pending{dir: dir, entries: entries})
		return true
	}

	if !open(root) {
		return true
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top.entries) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		entry := top.entries[0]
		top.entries = top.entries[1:]

		path := filepath.Join(top.dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if s.finder.matcher.ExcludedDir(entry.Name(), path) || s.visited[resolve(path)] {
				continue
			}
			open(path)
			continue
		}
		if info.Mode().IsRegular() && s.finder.isDefinitionFile(entry.Name(), s.stem) {
			if !s.yield(path) {
				return false
			}
		}
	}
	return true
}

func (f *Finder) isDefinitionFile(name, targetStem string) bool {
	ext := filepath.Ext(name)
	if !ImplementationExtensions[strings.ToLower(ext)] {
		return false
	}
	return Ratio(strings.TrimSuffix(name, ext), targetStem) > f.similarity
}

// Ratio is the normalized indel similarity of a and b in [0, 1]:
// (len(a)+len(b)-d)/(len(a)+len(b)) where d counts the insertions and
// deletions turning a into b. Two empty strings are identical.
func Ratio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	switch {
	case total == 0:
		return 1
	case a == "" || b == "":
		return 0
	}
	d := edlib.LCSEditDistance(a, b)
	return float64(total-d) / float64(total)
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// resolve returns the symlink-free path of dir, or dir itself if it cannot
// be resolved.
func resolve(dir string) string {
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		return real
	}
	return dir
}
