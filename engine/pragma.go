// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"

	"gitlab.com/tokenforge/preproc/token"
)

type (
	// PragmaHandler reacts to `#pragma <name> ...` and
	// `_Pragma("<name> ...")` directives. Handle pulls the directive's
	// remaining tokens from the engine with LexUnexpanded until it sees
	// an EOD token; tokens it leaves behind are discarded by the engine.
	PragmaHandler interface {
		// Name is the directive token the handler is keyed by.
		Name() string

		// Handle consumes the directive. Errors propagate unmodified
		// through the lex step that triggered the directive.
		Handle(e *Engine, introducer token.Token) error
	}

	// PragmaNamespace is a PragmaHandler that dispatches on the
	// directive token following its own name, giving two-level pragma
	// names such as `#pragma preproc LOG`.
	PragmaNamespace struct {
		name     string
		handlers map[string]PragmaHandler
	}
)

// NewPragmaNamespace instantiates an empty pragma namespace.
func NewPragmaNamespace(name string) *PragmaNamespace {
	return &PragmaNamespace{
		name:     name,
		handlers: make(map[string]PragmaHandler),
	}
}

// Name implements PragmaHandler.
func (ns *PragmaNamespace) Name() string { return ns.name }

// Handler returns the nested handler for name, nil when absent.
func (ns *PragmaNamespace) Handler(name string) PragmaHandler {
	return ns.handlers[name]
}

// AddHandler registers a nested handler.
func (ns *PragmaNamespace) AddHandler(h PragmaHandler) error {
	if _, ok := ns.handlers[h.Name()]; ok {
		return fmt.Errorf("pragma (%s %s): %w", ns.name, h.Name(), ErrHandlerExists)
	}
	ns.handlers[h.Name()] = h

	return nil
}

// RemoveHandler drops a nested handler; unknown names are a no-op.
func (ns *PragmaNamespace) RemoveHandler(name string) { delete(ns.handlers, name) }

// Handle implements PragmaHandler by dispatching on the next directive
// token. Unknown sub-pragmas are drained and ignored.
func (ns *PragmaNamespace) Handle(e *Engine, introducer token.Token) error {
	tok, err := e.LexUnexpanded()
	if err != nil {
		return err
	}
	if tok.Is(token.Ident) {
		if h, ok := ns.handlers[tok.Text]; ok {
			return h.Handle(e, tok)
		}
	}

	e.logger.Debugf("pragma namespace (%s): ignoring (%s)", ns.name, tok.Text)

	return nil
}

// AddPragmaHandler registers a top-level pragma handler on the engine.
func (e *Engine) AddPragmaHandler(h PragmaHandler) error {
	if _, ok := e.pragmas[h.Name()]; ok {
		return fmt.Errorf("pragma (%s): %w", h.Name(), ErrHandlerExists)
	}
	e.pragmas[h.Name()] = h

	return nil
}

// PragmaHandlerFor returns the registered top-level handler for name,
// nil when absent.
func (e *Engine) PragmaHandlerFor(name string) PragmaHandler {
	return e.pragmas[name]
}
