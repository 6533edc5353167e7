package treesitter

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Language identifies the grammar a unit was parsed with.
type Language int

const (
	LangUnknown Language = iota
	LangC
	LangCPP
)

func (l Language) String() string {
	switch l {
	case LangC:
		return "c"
	case LangCPP:
		return "c++"
	default:
		return "unknown"
	}
}

// grammar returns the tree-sitter language, or nil.
func (l Language) grammar() *sitter.Language {
	switch l {
	case LangC:
		return c.GetLanguage()
	case LangCPP:
		return cpp.GetLanguage()
	default:
		return nil
	}
}

// C headers are parsed with the C++ grammar; it accepts nearly all C.
var extLanguages = map[string]Language{
	".c":   LangC,
	".cc":  LangCPP,
	".cpp": LangCPP,
	".cxx": LangCPP,
	".c++": LangCPP,
	".hh":  LangCPP,
	".hpp": LangCPP,
	".hxx": LangCPP,
	".h++": LangCPP,
	".ipp": LangCPP,
	".tpp": LangCPP,
	".inl": LangCPP,
	".h":   LangCPP,
}

// LanguageForPath returns the language implied by the file extension.
func LanguageForPath(path string) Language {
	return extLanguages[strings.ToLower(filepath.Ext(path))]
}

// Supported returns true if the file extension maps to a C or C++ grammar.
func Supported(path string) bool {
	return LanguageForPath(path) != LangUnknown
}

// languageForFlag maps the value of a -x flag. ok is false for values the
// backend cannot parse.
func languageForFlag(v string) (Language, bool) {
	switch v {
	case "c", "c-header", "cpp-output":
		return LangC, true
	case "c++", "c++-header", "c++-cpp-output":
		return LangCPP, true
	default:
		return LangUnknown, false
	}
}
