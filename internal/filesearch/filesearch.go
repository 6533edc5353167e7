// Package filesearch walks project trees for source files, honouring
// excluded directories and .gitignore rules.
package filesearch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// MaxFileSize is the largest file a walk reports.
const MaxFileSize = 1 << 20 // 1 MB

// Walker lists files under a root.
type Walker struct {
	root    string
	matcher *Matcher
}

// NewWalker creates a walker for rootDir. The root's .gitignore, if any, is
// loaded into a matcher seeded with the excluded directories.
func NewWalker(rootDir string, excluded []string) (*Walker, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rootDir, err)
	}
	matcher := NewMatcher(excluded)
	if err := matcher.LoadGitignore(filepath.Join(root, ".gitignore")); err != nil {
		// Non-fatal: just won't filter gitignored files
		matcher = NewMatcher(excluded)
	}
	return &Walker{root: root, matcher: matcher}, nil
}

// Root returns the absolute root directory.
func (w *Walker) Root() string { return w.root }

// Matcher returns the matcher the walker filters with.
func (w *Walker) Matcher() *Matcher { return w.matcher }

// Files calls fn with the absolute path of every regular file accepted by
// accept and no larger than MaxFileSize. It stops early if fn returns an
// error or ctx is done.
func (w *Walker) Files(ctx context.Context, accept func(path string) bool, fn func(path string) error) error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if skip := w.shouldSkip(path, d); skip != nil {
			return *skip
		}
		if !accept(path) {
			return nil
		}
		return fn(path)
	})
	if err != nil && err != filepath.SkipAll {
		return err
	}
	return nil
}

// Dirs calls fn with every directory under the root that is not excluded
// or ignored, the root included.
func (w *Walker) Dirs(ctx context.Context, fn func(path string) error) error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != w.root && w.Skips(path, true) {
			return filepath.SkipDir
		}
		return fn(path)
	})
	if err != nil && err != filepath.SkipAll {
		return err
	}
	return nil
}

// Skips reports whether a path under the root is excluded or ignored.
func (w *Walker) Skips(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	if isDir && w.matcher.ExcludedDir(filepath.Base(path), path) {
		return true
	}
	for dir := filepath.Dir(path); dir != w.root && len(dir) > len(w.root); dir = filepath.Dir(dir) {
		if w.matcher.ExcludedDir(filepath.Base(dir), dir) {
			return true
		}
	}
	return w.matcher.Ignored(rel, isDir)
}

// shouldSkip decides whether to skip a directory entry. Returns nil to proceed,
// or a pointer to the error to return from the walk callback.
func (w *Walker) shouldSkip(path string, d os.DirEntry) *error {
	if path == w.root {
		skip := error(nil)
		return &skip
	}
	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		skip := error(nil)
		return &skip
	}
	if d.IsDir() {
		skip := error(nil)
		if w.matcher.ExcludedDir(d.Name(), path) || w.matcher.Ignored(relPath, true) {
			skip = filepath.SkipDir
		}
		return &skip
	}
	if w.matcher.Ignored(relPath, false) || !d.Type().IsRegular() {
		skip := error(nil)
		return &skip
	}
	info, err := d.Info()
	if err != nil || info.Size() > MaxFileSize {
		skip := error(nil)
		return &skip
	}
	return nil
}
