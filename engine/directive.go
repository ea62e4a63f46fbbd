// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"gitlab.com/tokenforge/preproc/token"
)

type (
	// condFrame tracks one conditional directive region.
	condFrame struct {
		// parentActive is the enclosing region's activity; a frame in a
		// dead region can never activate.
		parentActive bool
		// active is the current branch's activity.
		active bool
		// taken records whether any branch of this conditional has been
		// active, which disables later elif/else branches.
		taken bool
		// seenElse blocks further elif/else once #else appeared.
		seenElse bool
		// line is the opening directive's presumed line, for
		// unterminated-conditional reporting.
		line int
	}

	// condStack tracks nested conditional directives.
	condStack struct {
		frames []condFrame
	}
)

// Active reports whether tokens at the current nesting are live.
func (c *condStack) Active() bool {
	for i := range c.frames {
		if !c.frames[i].active {
			return false
		}
	}

	return true
}

// Depth returns the open-conditional count.
func (c *condStack) Depth() int { return len(c.frames) }

// UnclosedLine returns the opening line of the innermost open
// conditional, 0 when balanced.
func (c *condStack) UnclosedLine() int {
	if len(c.frames) == 0 {
		return 0
	}
	return c.frames[len(c.frames)-1].line
}

// Push opens a conditional region.
func (c *condStack) Push(cond bool, line int) {
	parent := c.Active()
	c.frames = append(c.frames, condFrame{
		parentActive: parent,
		active:       parent && cond,
		taken:        cond,
		line:         line,
	})
}

// Elif switches to an elif branch.
func (c *condStack) Elif(cond bool) error {
	if len(c.frames) == 0 {
		return fmt.Errorf("#elif: %w", ErrConditionalUnderflow)
	}
	f := &c.frames[len(c.frames)-1]
	if f.seenElse {
		return fmt.Errorf("#elif after #else: %w", ErrBadDirective)
	}
	f.active = f.parentActive && cond && !f.taken
	if cond {
		f.taken = true
	}

	return nil
}

// Else switches to the else branch.
func (c *condStack) Else() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("#else: %w", ErrConditionalUnderflow)
	}
	f := &c.frames[len(c.frames)-1]
	if f.seenElse {
		return fmt.Errorf("#else after #else: %w", ErrBadDirective)
	}
	f.seenElse = true
	f.active = f.parentActive && !f.taken

	return nil
}

// Pop closes the innermost conditional region.
func (c *condStack) Pop() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("#endif: %w", ErrConditionalUnderflow)
	}
	c.frames = c.frames[:len(c.frames)-1]

	return nil
}

// handleDirective processes one '#' directive line from a file context.
// The introducing '#' has been consumed; the rest of the physical line
// is read here.
func (e *Engine) handleDirective(fs *fileSource, hash token.Token) error {
	line := e.readDirectiveLine(fs)
	if len(line) == 0 {
		// Null directive.
		return nil
	}

	name := line[0]
	if name.IsNot(token.Ident) {
		return fmt.Errorf("%s: directive name expected: %w", e.errLoc(name.Loc), ErrBadDirective)
	}
	args := line[1:]
	active := e.cond.Active()

	e.logger.Debugf("directive #%s at %s (active %t)", name.Text, e.errLoc(hash.Loc), active)

	switch name.Text {
	case "ifdef", "ifndef":
		if len(args) < 1 || args[0].IsNot(token.Ident) {
			if !active {
				e.cond.Push(false, e.presumedLine(hash.Loc))
				return nil
			}
			return fmt.Errorf("%s: #%s: macro name expected: %w", e.errLoc(name.Loc), name.Text, ErrBadDirective)
		}
		defined := e.isDefined(args[0].Text)
		if name.Text == "ifndef" {
			defined = !defined
		}
		e.cond.Push(defined, e.presumedLine(hash.Loc))
	case "if":
		e.cond.Push(e.evalCondition(args), e.presumedLine(hash.Loc))
	case "elif":
		return e.cond.Elif(e.evalCondition(args))
	case "else":
		return e.cond.Else()
	case "endif":
		return e.cond.Pop()
	case "define":
		if !active {
			return nil
		}
		return e.defineDirective(name.Loc, args)
	case "undef":
		if !active {
			return nil
		}
		if len(args) < 1 || args[0].IsNot(token.Ident) {
			return fmt.Errorf("%s: #undef: macro name expected: %w", e.errLoc(name.Loc), ErrBadDirective)
		}
		e.RemoveMacro(args[0].Text)
	case "include":
		if !active {
			return nil
		}
		return e.includeDirective(fs, name.Loc, args)
	case "pragma":
		if !active {
			return nil
		}
		return e.dispatchPragma(args, name)
	case "line", "error", "warning":
		// Recognized but not interpreted.
	default:
		if !active {
			return nil
		}
		return fmt.Errorf("%s: unknown directive #%s: %w", e.errLoc(name.Loc), name.Text, ErrBadDirective)
	}

	return nil
}

// readDirectiveLine collects the directive's tokens up to, but not
// including, the next physical line.
func (e *Engine) readDirectiveLine(fs *fileSource) (line []token.Token) {
	for {
		tok, src, raw := e.takeToken()
		if src != fs || tok.Has(token.StartOfLine) || tok.Is(token.EOF) {
			// The terminator re-reads after anything the directive
			// pushes, an #include's file contents in particular.
			e.pushBack(tok, src, raw)
			return
		}
		line = append(line, tok)
	}
}

// defineDirective installs a macro from a #define token line.
func (e *Engine) defineDirective(loc token.Location, args []token.Token) error {
	if len(args) < 1 || args[0].IsNot(token.Ident) {
		return fmt.Errorf("%s: #define: macro name expected: %w", e.errLoc(loc), ErrBadDirective)
	}
	name := args[0]
	rest := args[1:]

	m := &Macro{Name: name.Text}

	// A parameter list only forms when '(' abuts the macro name.
	if len(rest) > 0 && rest[0].Is(token.Punct) && rest[0].Text == "(" && !rest[0].Has(token.LeadingSpace) {
		var err error
		if rest, err = e.parseParams(m, rest[1:]); err != nil {
			return err
		}
		m.FunctionLike = true
	}

	m.Body = append([]token.Token(nil), rest...)
	if len(m.Body) > 0 {
		m.EndLoc = m.Body[len(m.Body)-1].Loc
	}

	if prev := e.macros[m.Name]; prev != nil && !prev.IdenticalTo(m) {
		return fmt.Errorf("%s: %q: %w", e.errLoc(name.Loc), m.Name, ErrMacroRedefined)
	}
	e.SetMacro(m)

	return nil
}

// parseParams consumes a macro parameter list after its opening '(',
// returning the remaining body tokens.
func (e *Engine) parseParams(m *Macro, rest []token.Token) ([]token.Token, error) {
	wantParam := true
	for i := 0; i < len(rest); i++ {
		t := rest[i]
		switch {
		case t.Is(token.Punct) && t.Text == ")":
			if wantParam && (len(m.Params) > 0 || m.Variadic) {
				return nil, fmt.Errorf("%s: parameter name expected: %w", e.errLoc(t.Loc), ErrBadDirective)
			}
			return rest[i+1:], nil
		case t.Is(token.Punct) && t.Text == ",":
			if wantParam {
				return nil, fmt.Errorf("%s: parameter name expected: %w", e.errLoc(t.Loc), ErrBadDirective)
			}
			wantParam = true
		case t.Is(token.Punct) && t.Text == "...":
			if !wantParam || m.Variadic {
				return nil, fmt.Errorf("%s: misplaced \"...\": %w", e.errLoc(t.Loc), ErrBadDirective)
			}
			m.Variadic = true
			wantParam = false
		case t.Is(token.Ident):
			if !wantParam || m.Variadic {
				return nil, fmt.Errorf("%s: unexpected parameter %q: %w", e.errLoc(t.Loc), t.Text, ErrBadDirective)
			}
			m.Params = append(m.Params, t.Text)
			wantParam = false
		default:
			return nil, fmt.Errorf("%s: unexpected %q in parameter list: %w", e.errLoc(t.Loc), t.Text, ErrBadDirective)
		}
	}

	return nil, fmt.Errorf("%s: unterminated parameter list: %w", e.errLoc(token.Location{}), ErrBadDirective)
}

// evalCondition evaluates a #if/#elif controlling expression. The
// grammar is deliberately small: defined(NAME), bare names, integer
// literals & a single leading negation.
func (e *Engine) evalCondition(args []token.Token) bool {
	if len(args) == 0 {
		return false
	}
	if args[0].Is(token.Punct) && args[0].Text == "!" {
		return !e.evalCondition(args[1:])
	}

	t := args[0]
	switch {
	case t.Is(token.Ident) && t.Text == "defined":
		name := ""
		if len(args) >= 2 && args[1].Is(token.Ident) {
			name = args[1].Text
		} else if len(args) >= 4 && args[1].Text == "(" && args[2].Is(token.Ident) && args[3].Text == ")" {
			name = args[2].Text
		}
		return name != "" && e.isDefined(name)
	case t.Is(token.Ident):
		m := e.macros[t.Text]
		if m == nil {
			return false
		}
		if len(m.Body) == 1 && m.Body[0].Is(token.Number) {
			return m.Body[0].Text != "0"
		}
		return len(m.Body) > 0
	case t.Is(token.Number):
		return t.Text != "0"
	default:
		return false
	}
}

func (e *Engine) isDefined(name string) bool { return e.macros[name] != nil }

// includeDirective resolves & enters an included file.
func (e *Engine) includeDirective(fs *fileSource, loc token.Location, args []token.Token) error {
	spec, err := e.includeSpec(loc, args)
	if err != nil {
		return err
	}

	resolved, err := e.resolveInclude(fs, spec)
	if err != nil {
		return fmt.Errorf("%s: %q: %w", e.errLoc(loc), spec, err)
	}
	if e.includeGuard[resolved] {
		return fmt.Errorf("%s: %q: %w", e.errLoc(loc), resolved, ErrIncludeCycle)
	}

	fid, err := e.sm.CreateFileFromDisk(resolved)
	if err != nil {
		return fmt.Errorf("%s: %w", e.errLoc(loc), err)
	}
	e.includeGuard[resolved] = true
	e.pushFile(fid, resolved, false)

	return nil
}

// includeSpec extracts the include path from the directive's tokens,
// accepting both the quoted and the angle-bracketed form.
func (e *Engine) includeSpec(loc token.Location, args []token.Token) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%s: #include: path expected: %w", e.errLoc(loc), ErrBadDirective)
	}
	if args[0].Is(token.String) {
		return unescapeString(args[0].Text), nil
	}
	if args[0].Is(token.Punct) && args[0].Text == "<" {
		var b strings.Builder
		for _, t := range args[1:] {
			if t.Is(token.Punct) && t.Text == ">" {
				return b.String(), nil
			}
			b.WriteString(t.Text)
		}
	}

	return "", fmt.Errorf("%s: #include: malformed path: %w", e.errLoc(loc), ErrBadDirective)
}

// resolveInclude locates an include target: relative to the including
// file's directory first, then along the configured include paths.
func (e *Engine) resolveInclude(fs *fileSource, spec string) (string, error) {
	var candidates []string
	if fs.name != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(fs.name), spec))
	}
	for _, dir := range e.includePaths {
		candidates = append(candidates, filepath.Join(dir, spec))
	}
	candidates = append(candidates, spec)

	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
	}

	return "", ErrIncludeNotFound
}

// dispatchPragma runs a pragma handler over the directive's argument
// tokens. The tokens are replayed through a terminated directive
// stream so that handlers lex them with the ordinary engine calls; the
// stream is drained afterwards regardless of how much the handler
// consumed.
func (e *Engine) dispatchPragma(args []token.Token, introducer token.Token) error {
	eod := token.Token{Kind: token.EOD, Loc: introducer.Loc}
	if n := len(args); n > 0 {
		eod.Loc = args[n-1].Loc
	}

	ds := &streamSource{toks: append(append([]token.Token(nil), args...), eod), directive: true}
	e.pushSource(ds)
	defer ds.exhaust()

	tok, err := e.LexUnexpanded()
	if err != nil {
		return err
	}
	if tok.Is(token.EOD) {
		// Empty pragma.
		return nil
	}
	if tok.IsNot(token.Ident) {
		e.logger.Debugf("ignoring pragma starting with %q at %s", tok.Text, e.errLoc(tok.Loc))
		return nil
	}

	h := e.pragmas[tok.Text]
	if h == nil {
		e.logger.Debugf("no handler for pragma %q at %s", tok.Text, e.errLoc(tok.Loc))
		return nil
	}

	return h.Handle(e, introducer)
}

// handlePragmaOperator implements the _Pragma("...") escape operator:
// the string literal's contents are re-lexed & dispatched as a pragma
// directive.
func (e *Engine) handlePragmaOperator(intro token.Token) error {
	lp, err := e.LexUnexpanded()
	if err != nil {
		return err
	}
	if lp.IsNot(token.Punct) || lp.Text != "(" {
		return fmt.Errorf("%s: _Pragma: \"(\" expected: %w", e.errLoc(lp.Loc), ErrBadDirective)
	}
	str, err := e.LexUnexpanded()
	if err != nil {
		return err
	}
	if str.IsNot(token.String) {
		return fmt.Errorf("%s: _Pragma: string literal expected: %w", e.errLoc(str.Loc), ErrBadDirective)
	}
	rp, err := e.LexUnexpanded()
	if err != nil {
		return err
	}
	if rp.IsNot(token.Punct) || rp.Text != ")" {
		return fmt.Errorf("%s: _Pragma: \")\" expected: %w", e.errLoc(rp.Loc), ErrBadDirective)
	}

	content := unescapeString(str.Text)
	fid := e.sm.CreateVirtualFile("<pragma>", content)
	sc := newScratchScanner(e, fid, content)
	args := sc.Drain()

	e.logger.Debugf("_Pragma at %s re-lexed to %d tokens", e.errLoc(intro.Loc), len(args))

	return e.dispatchPragma(args, intro)
}

func (e *Engine) presumedLine(loc token.Location) int {
	_, line, _, _ := e.sm.PresumedLoc(loc)
	return line
}
