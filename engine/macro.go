// SPDX-License-Identifier: MIT
package engine

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"gitlab.com/tokenforge/preproc/token"
)

type (
	// Macro is one macro-table entry: an expansion rule owned by the
	// engine instance that installed it.
	Macro struct {
		Name string

		// Params holds the parameter names of a function-like macro, in
		// order, excluding the variadic tail.
		Params []string

		// Body is the replacement token list, stored verbatim.
		Body []token.Token

		// EndLoc is the location of the last body token; the zero
		// Location when the body is empty.
		EndLoc token.Location

		FunctionLike bool
		Variadic     bool
	}

	macroTable map[string]*Macro
)

// IdenticalTo reports whether two macro definitions are bit-for-bit
// identical: same shape, same parameters, same replacement tokens with
// the same inter-token spacing.
func (m *Macro) IdenticalTo(other *Macro) bool {
	if other == nil ||
		m.FunctionLike != other.FunctionLike ||
		m.Variadic != other.Variadic ||
		len(m.Params) != len(other.Params) ||
		len(m.Body) != len(other.Body) {
		return false
	}
	for i := range m.Params {
		if m.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range m.Body {
		a, b := m.Body[i], other.Body[i]
		if a.Kind != b.Kind || a.Text != b.Text ||
			a.Has(token.LeadingSpace) != b.Has(token.LeadingSpace) {
			return false
		}
	}

	return true
}

// isParam reports whether name is substitutable in the macro body, and
// the argument-list index it maps to. The variadic tail maps __VA_ARGS__
// to index len(Params).
func (m *Macro) isParam(name string) (index int, ok bool) {
	for i, p := range m.Params {
		if p == name {
			return i, true
		}
	}
	if m.Variadic && name == "__VA_ARGS__" {
		return len(m.Params), true
	}

	return 0, false
}

// Macro looks up a macro-table entry; nil when name has no definition.
func (e *Engine) Macro(name string) *Macro { return e.macros[name] }

// SetMacro installs a macro-table entry, replacing any previous
// definition. Policy on conflicting definitions belongs to callers; the
// engine-level directive handler & the outer layer each apply their own.
func (e *Engine) SetMacro(m *Macro) {
	e.logger.Debugf("macro table: define (%s)", m.Name)
	e.macros[m.Name] = m
}

// RemoveMacro drops a macro-table entry if present.
func (e *Engine) RemoveMacro(name string) { delete(e.macros, name) }

// MacroNames lists the defined macro names in lexical order.
func (e *Engine) MacroNames() []string {
	names := maps.Keys(e.macros)
	slices.Sort(names)

	return names
}
