// SPDX-License-Identifier: MIT

package preproc

import (
	"fmt"

	"gitlab.com/tokenforge/preproc/engine"
	"gitlab.com/tokenforge/preproc/token"
)

type (
	// tokenSaver is the sentinel argument-saving directive handler,
	// installed once per engine instance. Each capture replaces the
	// previous buffer wholesale; the buffer holds exactly one pending
	// invocation's arguments between the capture & dispatch steps.
	tokenSaver struct {
		buf []token.Token
	}

	// trampoline is the per-name dispatch directive handler: it hands
	// the captured arguments to the registered callback & injects the
	// result tokens into the live stream.
	trampoline struct {
		name     string
		callback MacroCallback
		saver    *tokenSaver
	}

	// pragmaAdapter exposes a callback as a plain directive handler,
	// with the directive's own trailing tokens as the arguments.
	pragmaAdapter struct {
		name     string
		callback MacroCallback
	}
)

// DefineFunc registers a callback-backed macro. Returns false without
// error for a nil callback. A name already defined by any means is
// refused with ErrAlreadyDefined; registration never overwrites.
//
// The synthesized replacement list chains two directive steps, glued
// through the predefined escape macro: the engine only recognizes
// directives between expansion cycles, so the arguments are first
// re-injected as a capture directive carrying them verbatim, and only
// the second cycle's dispatch directive reaches the callback.
func (p *Preprocessor) DefineFunc(name string, callback MacroCallback) (bool, error) {
	if callback == nil {
		return false, nil
	}
	if p.eng.Macro(name) != nil {
		return false, fmt.Errorf("define (%s): %w", name, ErrAlreadyDefined)
	}

	tr := &trampoline{name: name, callback: callback, saver: p.saver}
	if err := p.ns.AddHandler(tr); err != nil {
		return false, fmt.Errorf("define (%s): %w", name, ErrAlreadyDefined)
	}

	p.eng.SetMacro(p.indirectionMacro(name))
	p.registered[name] = true

	p.logger.Debugf("registered callback macro %q", name)

	return true, nil
}

// AddPragma registers a callback for direct directive-style invocation.
// The name is registered at the engine's top level, not under the
// dispatch namespace, so documents invoke it as `#pragma <name> ...`.
// Returns false without error for a nil callback.
func (p *Preprocessor) AddPragma(name string, callback MacroCallback) (bool, error) {
	if callback == nil {
		return false, nil
	}
	if err := p.eng.AddPragmaHandler(&pragmaAdapter{name: name, callback: callback}); err != nil {
		return false, fmt.Errorf("pragma (%s): %w", name, ErrAlreadyDefined)
	}

	return true, nil
}

// indirectionMacro synthesizes the function-like, variadic replacement
// chain for a registered name:
//
//	__PREPROC_INDIRECT ( preproc_capture __VA_ARGS__ ) _Pragma ( "preproc <name>" )
//
// The leading-space flags matter: stringification inside the escape
// macro spells a space wherever the flag is set, which keeps the
// capture directive's name separated from the first argument token
// when the directive text is re-lexed.
func (p *Preprocessor) indirectionMacro(name string) *engine.Macro {
	sp := func(t token.Token) token.Token { return t.WithFlags(token.LeadingSpace) }
	body := []token.Token{
		token.NewIdent(p.eng.Intern(indirectMacro)),
		sp(token.NewPunct("(")),
		sp(token.NewIdent(p.eng.Intern(captureDirective))),
		sp(token.NewIdent(p.eng.Intern("__VA_ARGS__"))),
		sp(token.NewPunct(")")),
		sp(token.NewIdent(p.eng.Intern("_Pragma"))),
		sp(token.NewPunct("(")),
		sp(token.NewString(`"` + pragmaNamespace + ` ` + name + `"`)),
		sp(token.NewPunct(")")),
	}

	return &engine.Macro{Name: name, Body: body, FunctionLike: true, Variadic: true}
}

func (s *tokenSaver) Name() string { return captureDirective }

// Handle implements engine.PragmaHandler: the directive's remaining
// tokens are buffered verbatim, unexpanded. The buffer is reallocated,
// not truncated: a nested capture must never scribble over argument
// tokens already lent to an outer callback.
func (s *tokenSaver) Handle(e *engine.Engine, _ token.Token) error {
	s.buf = nil
	for {
		tok, err := e.LexUnexpanded()
		if err != nil {
			return err
		}
		if tok.Is(token.EOD) || tok.Is(token.EOF) {
			return nil
		}
		s.buf = append(s.buf, tok)
	}
}

// take lends the buffered capture to a dispatch step.
func (s *tokenSaver) take() []token.Token { return s.buf }

func (t *trampoline) Name() string { return t.name }

// Handle implements engine.PragmaHandler. Callback errors propagate
// unmodified through the lex step that triggered the dispatch.
func (t *trampoline) Handle(e *engine.Engine, _ token.Token) error {
	if err := drainDirective(e); err != nil {
		return err
	}

	out, err := t.callback(t.saver.take())
	if err != nil {
		return err
	}

	e.EnterTokenStream(prepareInjected(out))

	return nil
}

func (a *pragmaAdapter) Name() string { return a.name }

func (a *pragmaAdapter) Handle(e *engine.Engine, _ token.Token) error {
	var args []token.Token
	for {
		tok, err := e.LexUnexpanded()
		if err != nil {
			return err
		}
		if tok.Is(token.EOD) || tok.Is(token.EOF) {
			break
		}
		args = append(args, tok)
	}

	out, err := a.callback(args)
	if err != nil {
		return err
	}

	e.EnterTokenStream(prepareInjected(out))

	return nil
}

// drainDirective discards the directive's remaining tokens. None are
// expected at dispatch, but the callback must not see them either way.
func drainDirective(e *engine.Engine) error {
	for {
		tok, err := e.LexUnexpanded()
		if err != nil {
			return err
		}
		if tok.Is(token.EOD) || tok.Is(token.EOF) {
			return nil
		}
	}
}

// prepareInjected copies callback result tokens for injection. Every
// token after the first gets the leading-space flag so re-lexed output
// cannot merge adjacent lexemes; line-start flags are dropped, the
// stream is mid-line by construction.
func prepareInjected(out []token.Token) []token.Token {
	if len(out) == 0 {
		return nil
	}

	toks := make([]token.Token, len(out))
	copy(toks, out)
	for i := range toks {
		toks[i].Flags &^= token.StartOfLine
		if i > 0 {
			toks[i].Flags |= token.LeadingSpace
		}
	}

	return toks
}
