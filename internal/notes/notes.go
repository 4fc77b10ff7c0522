// Package notes turns rich-text meeting notes into plain text and decides
// whether a note carries any content worth keeping.
//
// Notes are opaque markup produced by an editing surface. Nothing here edits
// markup; notes are stored verbatim and only inspected.
package notes

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BlankList is the markup a fresh note starts with: an empty bullet.
const BlankList = "<ul><li>&nbsp;</li></ul>"

// blockElements end a line of text when they open or close.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true,
	atom.Ul: true, atom.Ol: true, atom.Blockquote: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// PlainText strips all markup from a note and returns its text content.
// Entities are decoded, block elements become line breaks, and blank lines
// are dropped.
func PlainText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what was recovered.
			return tidy(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockElements[atom.Lookup(name)] {
				b.WriteByte('\n')
			}
		}
	}
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// IsBlank reports whether a note has no visible text once markup is removed.
// Whitespace, including non-breaking spaces, counts as blank.
func IsBlank(markup string) bool {
	return strings.TrimSpace(PlainText(markup)) == ""
}

// Clean returns a copy of notes without the entries that are blank.
// Kept entries retain their original markup.
func Clean(notes map[string]string) map[string]string {
	cleaned := make(map[string]string, len(notes))
	for branchID, markup := range notes {
		if !IsBlank(markup) {
			cleaned[branchID] = markup
		}
	}
	return cleaned
}
