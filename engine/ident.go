// SPDX-License-Identifier: MIT
package engine

import "gitlab.com/tokenforge/preproc/token"

type (
	// IdentifierTable interns identifier names so that identifiers
	// compare equal by pointer, not by spelling. Each engine instance
	// owns one table.
	IdentifierTable struct {
		idents map[string]*token.Identifier
	}
)

// NewIdentifierTable instantiates an empty interning table.
func NewIdentifierTable() *IdentifierTable {
	return &IdentifierTable{idents: make(map[string]*token.Identifier)}
}

// Get interns name, returning the canonical *Identifier for it.
func (t *IdentifierTable) Get(name string) *token.Identifier {
	if id, ok := t.idents[name]; ok {
		return id
	}

	id := &token.Identifier{Name: name}
	t.idents[name] = id

	return id
}

// Len reports the number of interned names.
func (t *IdentifierTable) Len() int { return len(t.idents) }
