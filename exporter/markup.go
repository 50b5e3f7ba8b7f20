package exporter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// StyleRange marks a styled span inside cleaned text. Start and End are rune
// offsets into the clean text (markup removed), End exclusive.
type StyleRange struct {
	Start int
	End   int
	Style string // "bold", "italic" or "underline"
}

// Bold must be tried before italic so ** is not read as two asterisks.
var markupPattern = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__|\*(.+?)\*`)

// ParseMarkup strips inline emphasis markup (**bold**, *italic*, __underline__)
// from text and returns the clean text together with the style ranges the
// markup described.
func ParseMarkup(text string) (string, []StyleRange) {
	var clean strings.Builder
	var ranges []StyleRange

	last := 0
	for _, m := range markupPattern.FindAllStringSubmatchIndex(text, -1) {
		clean.WriteString(text[last:m[0]])

		var style, content string
		switch {
		case m[2] >= 0:
			style, content = "bold", text[m[2]:m[3]]
		case m[4] >= 0:
			style, content = "underline", text[m[4]:m[5]]
		default:
			style, content = "italic", text[m[6]:m[7]]
		}

		start := utf8.RuneCountInString(clean.String())
		clean.WriteString(content)
		ranges = append(ranges, StyleRange{
			Start: start,
			End:   start + utf8.RuneCountInString(content),
			Style: style,
		})
		last = m[1]
	}
	clean.WriteString(text[last:])

	return clean.String(), ranges
}
