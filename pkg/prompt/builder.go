// Package prompt builds fill-in-the-middle prompts from a document
// snapshot and a cursor position.
package prompt

import "strings"

// FIM delimiters understood by code-completion base models, plus the
// end-of-text marker such models emit when the infill is finished.
const (
	TokenPrefix    = "<PRE>"
	TokenSuffix    = "<SUF>"
	TokenMiddle    = "<MID>"
	TokenEndOfText = "<EOT>"
)

const (
	prefixWindowLines = 50
	suffixWindowLines = 10
)

// Document is an immutable line-addressable snapshot of a text buffer.
type Document struct {
	lines []string
}

// NewDocument snapshots text into a Document. An empty string yields a
// single empty line, matching how editors address an empty buffer.
func NewDocument(text string) Document {
	return Document{lines: strings.Split(text, "\n")}
}

// LineCount returns the number of lines in the document.
func (d Document) LineCount() int {
	return len(d.lines)
}

// Line returns the text of line i, or "" when i is out of range.
func (d Document) Line(i int) string {
	if i < 0 || i >= len(d.lines) {
		return ""
	}
	return d.lines[i]
}

// Position is a zero-based cursor location.
type Position struct {
	Line int
	Col  int
}

// clamp bounds pos to addressable coordinates within d.
func (d Document) clamp(pos Position) Position {
	if pos.Line < 0 {
		pos.Line = 0
	}
	if max := d.LineCount() - 1; pos.Line > max {
		pos.Line = max
	}
	if pos.Col < 0 {
		pos.Col = 0
	}
	if max := len(d.Line(pos.Line)); pos.Col > max {
		pos.Col = max
	}
	return pos
}

// TextBeforeCursor returns the cursor line's content strictly before the
// column. Out-of-range positions are clamped, never an error.
func TextBeforeCursor(doc Document, pos Position) string {
	pos = doc.clamp(pos)
	return doc.Line(pos.Line)[:pos.Col]
}

// Build produces the FIM prompt for a cursor position: up to 50 lines of
// prefix ending at the cursor and up to 10 lines of suffix starting at
// it, the cursor's own line split at the column. Pure and total; every
// degenerate input clips to the document bounds.
func Build(doc Document, pos Position) string {
	pos = doc.clamp(pos)
	cursorLine := doc.Line(pos.Line)

	start := pos.Line - (prefixWindowLines - 1)
	if start < 0 {
		start = 0
	}
	prefixLines := make([]string, 0, pos.Line-start+1)
	prefixLines = append(prefixLines, doc.lines[start:pos.Line]...)
	prefixLines = append(prefixLines, cursorLine[:pos.Col])

	end := pos.Line + suffixWindowLines
	if end > doc.LineCount() {
		end = doc.LineCount()
	}
	suffixLines := make([]string, 0, end-pos.Line)
	suffixLines = append(suffixLines, cursorLine[pos.Col:])
	suffixLines = append(suffixLines, doc.lines[pos.Line+1:end]...)

	var sb strings.Builder
	sb.WriteString(TokenPrefix)
	sb.WriteString(strings.Join(prefixLines, "\n"))
	sb.WriteString(TokenSuffix)
	sb.WriteString(strings.Join(suffixLines, "\n"))
	sb.WriteString(TokenMiddle)
	return sb.String()
}
