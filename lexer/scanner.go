// SPDX-License-Identifier: MIT
package lexer

// REF: preprocessing-token grammar, ISO C §6.4; pp-numbers are broader
// than C numbers.

import (
	"gitlab.com/tokenforge/preproc/token"
)

type (
	// Scanner turns one buffer (a real or virtual file) into raw
	// preprocessing tokens. It performs no macro expansion and no
	// directive handling; it only reports spellings, positions & the
	// whitespace flags the later stages depend on.
	Scanner struct {
		cfg Config

		source string
		cursor int

		// atBOL marks the next token as the first of a physical line.
		atBOL bool
		// pendingSpace marks the next token as preceded by whitespace.
		pendingSpace bool
	}
)

// threeCharPuncts and twoCharPuncts order multi-byte punctuators for
// longest-match scanning.
var (
	threeCharPuncts = []string{"<<=", ">>=", "..."}

	twoCharPuncts = []string{
		"##", "->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=",
		"&&", "||", "*=", "/=", "%=", "+=", "-=", "&=", "^=", "|=",
	}
)

// New creates a Scanner for the given source buffer.
func New(cfg *Config, source string) *Scanner {
	cfg.Validate()

	return &Scanner{
		cfg:    *cfg,
		source: source,
		atBOL:  true,
	}
}

// Next returns the next raw token. At the end of the buffer it returns
// an EOF token positioned one past the last byte, and keeps returning
// it on subsequent calls.
func (s *Scanner) Next() (tok token.Token) {
	s.skipBlank()

	tok.Loc = s.loc()
	if s.atBOL {
		tok.Flags |= token.StartOfLine
	} else if s.pendingSpace {
		tok.Flags |= token.LeadingSpace
	}

	if s.cursor >= len(s.source) {
		tok.Kind = token.EOF
		return
	}
	s.atBOL, s.pendingSpace = false, false

	switch ch := s.source[s.cursor]; {
	case ch == '"':
		tok.Kind, tok.Text = token.String, s.scanQuoted('"')
	case ch == '\'':
		tok.Kind, tok.Text = token.CharConst, s.scanQuoted('\'')
	case isDigit(ch) || (ch == '.' && isDigit(s.peek(1))):
		tok.Kind, tok.Text = token.Number, s.scanNumber()
	case isIdentStart(ch):
		tok.Kind, tok.Text = token.Ident, s.scanIdentifier()
	default:
		tok.Kind, tok.Text = token.Punct, s.scanPunctuator()
	}

	return
}

// Drain returns all remaining tokens, excluding the trailing EOF.
func (s *Scanner) Drain() (toks []token.Token) {
	for {
		tok := s.Next()
		if tok.Is(token.EOF) {
			return
		}
		toks = append(toks, tok)
	}
}

// skipBlank consumes whitespace, comments & line continuations,
// recording line/space state for the next token.
func (s *Scanner) skipBlank() {
	for s.cursor < len(s.source) {
		switch ch := s.source[s.cursor]; {
		case ch == '\n':
			s.atBOL = true
			s.cursor++
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f' || ch == '\v':
			s.pendingSpace = true
			s.cursor++
		case ch == '\\' && s.peek(1) == '\n':
			// Line continuation. The spliced line is a continuation, not
			// a fresh one.
			s.cursor += 2
		case ch == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case ch == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		default:
			return
		}
	}
}

func (s *Scanner) skipLineComment() {
	for s.cursor < len(s.source) && s.source[s.cursor] != '\n' {
		s.cursor++
	}
	// Comments read as a single space.
	s.pendingSpace = true
}

func (s *Scanner) skipBlockComment() {
	s.cursor += 2
	for s.cursor < len(s.source) {
		if s.source[s.cursor] == '*' && s.peek(1) == '/' {
			s.cursor += 2
			break
		}
		if s.source[s.cursor] == '\n' {
			s.atBOL = true
		}
		s.cursor++
	}
	s.pendingSpace = true
}

func (s *Scanner) scanQuoted(quote byte) string {
	start := s.cursor
	s.cursor++
	for s.cursor < len(s.source) {
		switch s.source[s.cursor] {
		case '\\':
			s.cursor += 2
			continue
		case quote:
			s.cursor++
			return s.source[start:s.cursor]
		case '\n':
			// Unterminated literal; surrender the partial spelling.
			s.cfg.Logger.Debugf("unterminated literal at offset %d", start)
			return s.source[start:s.cursor]
		}
		s.cursor++
	}

	return s.source[start:s.cursor]
}

func (s *Scanner) scanNumber() string {
	start := s.cursor
	for s.cursor < len(s.source) {
		ch := s.source[s.cursor]
		if !isDigit(ch) && !isIdentStart(ch) && ch != '.' {
			break
		}
		// Exponent signs belong to the pp-number.
		if (ch == 'e' || ch == 'E' || ch == 'p' || ch == 'P') &&
			(s.peek(1) == '+' || s.peek(1) == '-') {
			s.cursor++
		}
		s.cursor++
	}

	return s.source[start:s.cursor]
}

func (s *Scanner) scanIdentifier() string {
	start := s.cursor
	for s.cursor < len(s.source) && isIdentPart(s.source[s.cursor]) {
		s.cursor++
	}

	return s.source[start:s.cursor]
}

func (s *Scanner) scanPunctuator() string {
	rest := s.source[s.cursor:]
	for _, p := range threeCharPuncts {
		if len(rest) >= 3 && rest[:3] == p {
			s.cursor += 3
			return p
		}
	}
	for _, p := range twoCharPuncts {
		if len(rest) >= 2 && rest[:2] == p {
			s.cursor += 2
			return p
		}
	}
	s.cursor++

	return rest[:1]
}

func (s *Scanner) loc() token.Location {
	return token.Location{File: s.cfg.File, Offset: uint32(s.cursor)}
}

func (s *Scanner) peek(offset int) byte {
	if s.cursor+offset >= len(s.source) {
		return 0
	}
	return s.source[s.cursor+offset]
}

// isDigit return true for a decimal digit.
func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

// isIdentStart return true for an identifier-start byte.
func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isIdentPart return true for an identifier-continuation byte.
func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }
