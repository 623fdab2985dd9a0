package normalize

import "strings"

// Rule describes one strippable region. An empty Close means the region
// runs to the end of the line, excluding the newline itself.
type Rule struct {
	Open  string
	Close string
}

// Syntax is an ordered set of rules. Order matters: at any position the
// first rule whose region can be completed wins.
type Syntax struct {
	Name  string
	Rules []Rule
}

var (
	// Mixed strips C-style and Python-style comments plus triple-quoted
	// strings regardless of the file's language.
	Mixed = Syntax{
		Name: "mixed",
		Rules: []Rule{
			{Open: "//"},
			{Open: "/*", Close: "*/"},
			{Open: "#"},
			{Open: "'''", Close: "'''"},
			{Open: `"""`, Close: `"""`},
		},
	}

	Python = Syntax{
		Name: "python",
		Rules: []Rule{
			{Open: "#"},
			{Open: "'''", Close: "'''"},
			{Open: `"""`, Close: `"""`},
		},
	}

	CFamily = Syntax{
		Name: "c-family",
		Rules: []Rule{
			{Open: "//"},
			{Open: "/*", Close: "*/"},
		},
	}

	Shell = Syntax{
		Name: "shell",
		Rules: []Rule{
			{Open: "#"},
		},
	}
)

// Mode selects how a syntax is chosen for a file
type Mode string

const (
	ModeMixed    Mode = "mixed"
	ModeLanguage Mode = "language"
)

var languageSyntax = map[string]Syntax{
	"python":      Python,
	"c":           CFamily,
	"c++":         CFamily,
	"c#":          CFamily,
	"java":        CFamily,
	"go":          CFamily,
	"javascript":  CFamily,
	"typescript":  CFamily,
	"kotlin":      CFamily,
	"scala":       CFamily,
	"swift":       CFamily,
	"rust":        CFamily,
	"php":         Mixed,
	"shell":       Shell,
	"ruby":        Shell,
	"perl":        Shell,
	"r":           Shell,
	"makefile":    Shell,
	"yaml":        Shell,
	"objective-c": CFamily,
}

// SyntaxFor returns the syntax used for a file written in language.
// Mixed mode ignores the language; unknown languages fall back to Mixed.
func SyntaxFor(mode Mode, language string) Syntax {
	if mode != ModeLanguage {
		return Mixed
	}
	if s, ok := languageSyntax[strings.ToLower(language)]; ok {
		return s
	}
	return Mixed
}
