// Package editor defines what the navigation core needs from its host
// editor, plus two hosts: an in-memory Buffer and a Terminal that prints
// results.
package editor

import (
	"fmt"

	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"
	"mvdan.cc/sh/v3/shell"
)

// File is a file name with the content the editor currently holds for it,
// which may differ from disk.
type File struct {
	Name    string
	Content []byte
}

// Location is a position in a file. Line and Column are 1-indexed; Column
// counts bytes.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Editor is the host editor as seen by the navigation core.
type Editor interface {
	CurrentFile() File
	FileName() string
	UserOptions() []string
	ExcludedDirectories() []string
	CurrentLocation() Location
	OpenLocation(Location)
	DisplayMessage(string)
	DisplayDiagnostics([]protocol.Diagnostic)
}

// SplitOptions splits a user-options string the way a POSIX shell would,
// honouring quotes. Variables are not expanded.
func SplitOptions(s string) ([]string, error) {
	fields, err := shell.Fields(s, func(string) string { return "" })
	if err != nil {
		return nil, fmt.Errorf("split options %q: %w", s, err)
	}
	return fields, nil
}
