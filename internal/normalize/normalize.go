// Package normalize turns raw source text into the canonical form used for
// similarity scoring: comments and triple-quoted strings removed, whitespace
// collapsed.
package normalize

import (
	"strings"

	"github.com/RishiKendai/twinscan/internal/models"
)

// Normalizer strips the regions described by its syntax
type Normalizer struct {
	syntax Syntax
}

func New(syntax Syntax) *Normalizer {
	return &Normalizer{syntax: syntax}
}

// Syntax returns the syntax the normalizer strips
func (n *Normalizer) Syntax() Syntax {
	return n.syntax
}

// Normalize removes every strippable region, replacing it with a single
// space, then collapses whitespace runs to one space and trims the ends.
//
// The replacement space keeps tokens on either side of a removed region
// apart, which also makes Normalize idempotent: no new region opener can be
// formed by joining text across a removed span.
func (n *Normalizer) Normalize(raw string) string {
	return collapse(n.strip(raw))
}

// Normalize applies the Mixed syntax
func Normalize(raw string) string {
	return New(Mixed).Normalize(raw)
}

func (n *Normalizer) strip(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		if end, ok := n.regionAt(text, i); ok {
			b.WriteByte(' ')
			i = end
			continue
		}
		// Rule markers are ASCII, so byte stepping never splits one.
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

// regionAt reports the end offset of the region starting at i, if any rule
// opens and completes there.
func (n *Normalizer) regionAt(text string, i int) (int, bool) {
	rest := text[i:]
	for _, rule := range n.syntax.Rules {
		if !strings.HasPrefix(rest, rule.Open) {
			continue
		}
		body := i + len(rule.Open)
		if rule.Close == "" {
			if nl := strings.IndexByte(text[body:], '\n'); nl >= 0 {
				return body + nl, true
			}
			return len(text), true
		}
		if idx := strings.Index(text[body:], rule.Close); idx >= 0 {
			return body + idx + len(rule.Close), true
		}
		// Unterminated: try the remaining rules at this position.
	}
	return 0, false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ForFile returns a function normalizing a source file with the syntax
// chosen by mode and the file's detected language.
func ForFile(mode Mode) func(*models.SourceFile) string {
	normalizers := make(map[string]*Normalizer)
	for _, s := range []Syntax{Mixed, Python, CFamily, Shell} {
		normalizers[s.Name] = New(s)
	}
	return func(f *models.SourceFile) string {
		return normalizers[SyntaxFor(mode, f.Language).Name].Normalize(f.Raw)
	}
}
