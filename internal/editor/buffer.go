package editor

import (
	"slices"
	"sync"

	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"
)

// Buffer is an in-memory Editor. It records everything the core sends it
// and is safe for concurrent use.
type Buffer struct {
	mu          sync.Mutex
	name        string
	content     []byte
	options     []string
	excluded    []string
	location    Location
	opened      []Location
	messages    []string
	diagnostics []protocol.Diagnostic
	published   int
}

// NewBuffer creates a buffer editing name with content, cursor at 1:1.
func NewBuffer(name string, content []byte) *Buffer {
	return &Buffer{
		name:     name,
		content:  content,
		location: Location{File: name, Line: 1, Column: 1},
	}
}

// SetFile switches the buffer to another file, cursor at 1:1.
func (b *Buffer) SetFile(name string, content []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
	b.content = content
	b.location = Location{File: name, Line: 1, Column: 1}
}

// SetContent replaces the text of the current file.
func (b *Buffer) SetContent(content []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = content
}

// SetCursor moves the cursor within the current file.
func (b *Buffer) SetCursor(line, col int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.location = Location{File: b.name, Line: line, Column: col}
}

// SetOptions sets the compiler-style arguments.
func (b *Buffer) SetOptions(options []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.options = slices.Clone(options)
}

// SetExcludedDirectories sets the directory names skipped by searches.
func (b *Buffer) SetExcludedDirectories(dirs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.excluded = slices.Clone(dirs)
}

func (b *Buffer) CurrentFile() File {
	b.mu.Lock()
	defer b.mu.Unlock()
	return File{Name: b.name, Content: b.content}
}

func (b *Buffer) FileName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

func (b *Buffer) UserOptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.options)
}

func (b *Buffer) ExcludedDirectories() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.excluded)
}

func (b *Buffer) CurrentLocation() Location {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.location
}

// OpenLocation records the jump and moves the cursor there.
func (b *Buffer) OpenLocation(loc Location) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, loc)
	if loc.File == b.name {
		b.location = loc
	}
}

func (b *Buffer) DisplayMessage(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *Buffer) DisplayDiagnostics(diags []protocol.Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.diagnostics = slices.Clone(diags)
	b.published++
}

// Opened returns every location the core asked to open.
func (b *Buffer) Opened() []Location {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.opened)
}

// Messages returns every message displayed so far.
func (b *Buffer) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.messages)
}

// Diagnostics returns the last published diagnostics and how many times
// diagnostics were published.
func (b *Buffer) Diagnostics() ([]protocol.Diagnostic, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.diagnostics), b.published
}
