package grammar

import "fmt"

// ValidationError describes why grammar text was rejected locally.
type ValidationError struct {
	Line int
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid grammar at line %d: %s", e.Line, e.Msg)
}

// Validate checks the quoting rules of the restricted grammar sublanguage.
// It rejects single-quoted literals anywhere outside a /regex/ pattern or a
// comment, and string literals opened with one quote style and closed with
// another (or never closed on their line).
func Validate(text string) error {
	line := 1
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\n':
			line++
			i++

		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			// Comment to end of line.
			for i < len(text) && text[i] != '\n' {
				i++
			}

		case c == '/':
			end, ok := scanDelimited(text, i, '/')
			if !ok {
				return &ValidationError{Line: line, Msg: "unterminated regular expression"}
			}
			i = end

		case c == '"':
			end, ok := scanDelimited(text, i, '"')
			if !ok {
				if j := indexOnLine(text, i+1, '\''); j >= 0 {
					return &ValidationError{Line: line, Msg: "mismatched quotes: literal opened with \" and closed with '"}
				}
				return &ValidationError{Line: line, Msg: "unterminated string literal"}
			}
			i = end

		case c == '\'':
			if j := indexOnLine(text, i+1, '"'); j >= 0 && indexOnLine(text, i+1, '\'') < 0 {
				return &ValidationError{Line: line, Msg: "mismatched quotes: literal opened with ' and closed with \""}
			}
			return &ValidationError{Line: line, Msg: "single-quoted literal; use double quotes"}

		default:
			i++
		}
	}
	return nil
}

// scanDelimited scans a literal starting at text[start] == delim, honouring
// backslash escapes. It returns the index just past the closing delimiter.
// Literals never span lines.
func scanDelimited(text string, start int, delim byte) (int, bool) {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '\n':
			return i, false
		case delim:
			return i + 1, true
		}
	}
	return len(text), false
}

// indexOnLine returns the index of the first unescaped b at or after from on
// the current line, or -1.
func indexOnLine(text string, from int, b byte) int {
	for i := from; i < len(text) && text[i] != '\n'; i++ {
		if text[i] == '\\' {
			i++
			continue
		}
		if text[i] == b {
			return i
		}
	}
	return -1
}
