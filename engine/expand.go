// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"
	"os"
	"strings"

	"gitlab.com/tokenforge/preproc/lexer"
	"gitlab.com/tokenforge/preproc/token"
)

// invocation is one parsed function-like macro invocation.
type invocation struct {
	// args holds the comma-split argument token sequences.
	args [][]token.Token
	// raw holds every argument token including the top-level commas,
	// preserving the caller's spelling for variadic substitution.
	raw []token.Token
	// vaStart indexes the first raw token of the variadic tail, -1
	// while the named arguments are still being collected.
	vaStart int
}

// expandMacro attempts to expand an occurrence of a defined macro. It
// reports false when a function-like macro's name is not followed by an
// invocation, in which case the name surfaces as an ordinary token.
func (e *Engine) expandMacro(m *Macro, name token.Token) (bool, error) {
	if len(e.sources) >= maxSourceDepth {
		return false, fmt.Errorf("%s: expanding %q: %w", e.errLoc(name.Loc), m.Name, ErrRecursionLimit)
	}

	var inv invocation
	if m.FunctionLike {
		nt, src, raw := e.takeToken()
		if nt.IsNot(token.Punct) || nt.Text != "(" {
			e.pushBack(nt, src, raw)
			return false, nil
		}
		var err error
		if inv, err = e.parseInvocation(m, name); err != nil {
			return false, err
		}
	}

	out := e.substitute(m, inv)

	e.logger.Debugf("expanding %q at %s into %d tokens", m.Name, e.errLoc(name.Loc), len(out))

	// An empty replacement still needs a live stream entry so the name
	// stays painted until the expansion point is fully consumed.
	e.pushSource(&streamSource{toks: out, macro: m.Name})

	return true, nil
}

// parseInvocation collects an invocation's argument tokens up to the
// matching ')'. Arguments are captured raw: no expansion happens here.
func (e *Engine) parseInvocation(m *Macro, name token.Token) (inv invocation, err error) {
	var (
		cur   []token.Token
		depth = 1
	)
	flush := func() {
		inv.args = append(inv.args, cur)
		cur = nil
	}

	inv.vaStart = -1
	if len(m.Params) == 0 {
		// No named arguments: the whole invocation is the tail.
		inv.vaStart = 0
	}

	for {
		tok, _, _ := e.takeToken()
		if tok.Is(token.EOF) {
			err = fmt.Errorf("%s: unterminated invocation of %q: %w",
				e.errLoc(name.Loc), m.Name, ErrMacroArgs)
			return
		}

		switch {
		case tok.Is(token.Punct) && tok.Text == "(":
			depth++
		case tok.Is(token.Punct) && tok.Text == ")":
			depth--
			if depth == 0 {
				if len(cur) > 0 || len(inv.args) > 0 || len(m.Params) > 0 {
					flush()
				}
				if inv.vaStart < 0 {
					// Named arguments only; the variadic tail is empty.
					inv.vaStart = len(inv.raw)
				}
				err = e.checkArity(m, name, len(inv.args))
				return
			}
		case tok.Is(token.Punct) && tok.Text == "," && depth == 1:
			flush()
			inv.raw = append(inv.raw, tok)
			if len(inv.args) == len(m.Params) {
				// The variadic tail starts past the comma that closed
				// the last named argument.
				inv.vaStart = len(inv.raw)
			}
			continue
		}

		cur = append(cur, tok)
		inv.raw = append(inv.raw, tok)
	}
}

func (e *Engine) checkArity(m *Macro, name token.Token, got int) error {
	want := len(m.Params)
	switch {
	case m.Variadic && got < want:
		return fmt.Errorf("%s: %q needs at least %d arguments, got %d: %w",
			e.errLoc(name.Loc), m.Name, want, got, ErrMacroArgs)
	case !m.Variadic && got != want && !(want == 0 && got == 0):
		return fmt.Errorf("%s: %q needs %d arguments, got %d: %w",
			e.errLoc(name.Loc), m.Name, want, got, ErrMacroArgs)
	}

	return nil
}

// substitute builds a macro's replacement tokens, splicing raw argument
// tokens over parameter occurrences & handling '#' stringification.
func (e *Engine) substitute(m *Macro, inv invocation) (out []token.Token) {
	body := m.Body
	for i := 0; i < len(body); i++ {
		bt := body[i]

		if bt.Is(token.Punct) && bt.Text == "#" && i+1 < len(body) {
			if nxt := body[i+1]; nxt.Is(token.Ident) {
				if idx, ok := m.isParam(nxt.Text); ok {
					st := stringifyTokens(e.argTokens(m, inv, idx))
					st.Flags = bt.Flags &^ token.StartOfLine
					out = append(out, st)
					i++
					continue
				}
			}
		}

		if bt.Is(token.Ident) {
			if idx, ok := m.isParam(bt.Text); ok {
				arg := e.argTokens(m, inv, idx)
				for j, at := range arg {
					at.Flags &^= token.StartOfLine
					if j == 0 {
						at.Flags &^= token.LeadingSpace
						at.Flags |= bt.Flags & token.LeadingSpace
					}
					out = append(out, at)
				}
				continue
			}
		}

		bt.Flags &^= token.StartOfLine
		out = append(out, bt)
	}

	return
}

// argTokens returns the raw tokens bound to a parameter index; the
// variadic pseudo-parameter maps to the trailing raw span, commas
// included.
func (e *Engine) argTokens(m *Macro, inv invocation, idx int) []token.Token {
	if idx < len(m.Params) {
		if idx < len(inv.args) {
			return inv.args[idx]
		}
		return nil
	}
	if inv.vaStart >= 0 && inv.vaStart <= len(inv.raw) {
		return inv.raw[inv.vaStart:]
	}

	return nil
}

// stringifyTokens renders tokens as a string literal, spelling a single
// space wherever the source carried whitespace.
func stringifyTokens(toks []token.Token) token.Token {
	var b strings.Builder
	b.WriteByte('"')
	for i, t := range toks {
		if i > 0 && t.Has(token.LeadingSpace) {
			b.WriteByte(' ')
		}
		for j := 0; j < len(t.Text); j++ {
			if c := t.Text[j]; c == '"' || c == '\\' {
				b.WriteByte('\\')
			}
			b.WriteByte(t.Text[j])
		}
	}
	b.WriteByte('"')

	return token.Token{Kind: token.String, Text: b.String()}
}

// unescapeString strips a string literal's quotes & backslash escapes.
func unescapeString(lit string) string {
	if len(lit) >= 2 && lit[0] == '"' && lit[len(lit)-1] == '"' {
		lit = lit[1 : len(lit)-1]
	}
	if !strings.ContainsRune(lit, '\\') {
		return lit
	}

	var b strings.Builder
	b.Grow(len(lit))
	for i := 0; i < len(lit); i++ {
		if lit[i] == '\\' && i+1 < len(lit) {
			i++
		}
		b.WriteByte(lit[i])
	}

	return b.String()
}

func newScratchScanner(e *Engine, fid token.FileID, content string) *lexer.Scanner {
	return lexer.New(&lexer.Config{Logger: e.logger, File: fid}, content)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
