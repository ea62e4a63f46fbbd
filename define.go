// SPDX-License-Identifier: MIT

package preproc

import (
	"fmt"
	"strings"
)

// macroShape is a parsed macro declarator: the pieces of a definition's
// name part.
type macroShape struct {
	name     string
	params   []string
	variadic bool
	funcLike bool
}

// parseMacroName parses a macro declarator: a bare identifier, or an
// identifier followed by a parenthesized, comma-separated parameter
// list whose last entry may be "...". Columns in errors are 1-based
// positions in the input string.
func parseMacroName(s string) (shape macroShape, err error) {
	i := skipSpace(s, 0)
	start := i
	for i < len(s) && isNameChar(s[i], i == start) {
		i++
	}
	if start == i {
		err = fmt.Errorf("column %d: macro name expected: %w", i+1, ErrBadParameterList)
		return
	}
	shape.name = s[start:i]

	if i = skipSpace(s, i); i == len(s) {
		return
	}
	if s[i] != '(' {
		err = fmt.Errorf("column %d: unexpected %q after macro name: %w", i+1, s[i], ErrBadParameterList)
		return
	}
	shape.funcLike = true
	i++

	// An empty parameter list is legal: NAME().
	if j := skipSpace(s, i); j < len(s) && s[j] == ')' {
		return shape, expectEnd(s, j+1)
	}

	for {
		if i = skipSpace(s, i); i == len(s) {
			err = fmt.Errorf("column %d: unterminated parameter list: %w", i+1, ErrBadParameterList)
			return
		}

		switch {
		case strings.HasPrefix(s[i:], "..."):
			if shape.variadic {
				err = fmt.Errorf("column %d: duplicate \"...\": %w", i+1, ErrBadParameterList)
				return
			}
			shape.variadic = true
			i += 3
		case isNameChar(s[i], true):
			start = i
			for i < len(s) && isNameChar(s[i], i == start) {
				i++
			}
			if shape.variadic {
				err = fmt.Errorf("column %d: parameter after \"...\": %w", start+1, ErrBadParameterList)
				return
			}
			shape.params = append(shape.params, s[start:i])
		default:
			// Covers the stray comma where a parameter name belongs.
			err = fmt.Errorf("column %d: parameter name expected: %w", i+1, ErrBadParameterList)
			return
		}

		if i = skipSpace(s, i); i == len(s) {
			err = fmt.Errorf("column %d: unterminated parameter list: %w", i+1, ErrBadParameterList)
			return
		}
		switch s[i] {
		case ')':
			return shape, expectEnd(s, i+1)
		case ',':
			i++
		default:
			err = fmt.Errorf("column %d: \",\" or \")\" expected: %w", i+1, ErrBadParameterList)
			return
		}
	}
}

func expectEnd(s string, i int) error {
	if i = skipSpace(s, i); i != len(s) {
		return fmt.Errorf("column %d: trailing %q after parameter list: %w", i+1, s[i], ErrBadParameterList)
	}

	return nil
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}

	return i
}

func isNameChar(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	default:
		return false
	}
}
