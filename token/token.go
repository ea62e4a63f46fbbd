// SPDX-License-Identifier: MIT
package token

import "fmt"

type (
	// Kind enumerates the lexical categories produced by the scanner.
	Kind uint8

	// FileID identifies one entry in the engine's source map. The zero
	// value denotes "no file" (synthesized tokens).
	FileID uint32

	// Flags carries per-token formatting state.
	Flags uint8

	// Location is a raw source position: a file identity plus a byte
	// offset into that file's content. Presumed line/column resolution
	// is owned by the source map.
	Location struct {
		File   FileID
		Offset uint32
	}

	// Identifier is an interned identifier name. Two identifier tokens
	// lexed through the same engine instance share the same *Identifier
	// for equal spellings.
	Identifier struct {
		Name string
	}

	// Token is one lexical unit: kind, spelling, source location &
	// formatting flags. Immutable once constructed; copies are cheap and
	// carry no shared mutable state.
	Token struct {
		Ident *Identifier
		Text  string
		Loc   Location
		Kind  Kind
		Flags Flags
	}
)

const (
	// EOF marks the end of the whole input.
	EOF Kind = iota
	// EOD marks the end of a directive's token stream.
	EOD
	// Ident is an identifier or keyword.
	Ident
	// Number is a preprocessing number.
	Number
	// String is a string literal, quotes included in the spelling.
	String
	// CharConst is a character constant, quotes included.
	CharConst
	// Punct is any punctuator, including `#` and `##`.
	Punct
)

const (
	// LeadingSpace is set when whitespace preceded the token on its line.
	LeadingSpace Flags = 1 << iota
	// StartOfLine is set on the first token of a physical line.
	StartOfLine
)

// kindNames indexes Kind for display.
var kindNames = [...]string{
	EOF:       "eof",
	EOD:       "eod",
	Ident:     "identifier",
	Number:    "number",
	String:    "string",
	CharConst: "char",
	Punct:     "punctuator",
}

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsValid reports whether the Location refers to some file.
func (l Location) IsValid() bool { return l.File != 0 }

// Is reports whether the token has the given kind.
func (t Token) Is(k Kind) bool { return t.Kind == k }

// IsNot reports whether the token does not have the given kind.
func (t Token) IsNot(k Kind) bool { return t.Kind != k }

// Has reports whether all the given flags are set.
func (t Token) Has(f Flags) bool { return t.Flags&f == f }

// WithFlags returns a copy of the token with the given flags added.
func (t Token) WithFlags(f Flags) Token {
	t.Flags |= f
	return t
}

// IsIdent reports whether the token is an identifier with the given
// spelling.
func (t Token) IsIdent(name string) bool {
	return t.Kind == Ident && t.Text == name
}

// NewIdent synthesizes an identifier token with no source position.
func NewIdent(id *Identifier) Token {
	return Token{Kind: Ident, Text: id.Name, Ident: id}
}

// NewPunct synthesizes a punctuator token with no source position.
func NewPunct(text string) Token { return Token{Kind: Punct, Text: text} }

// NewString synthesizes a string-literal token, quotes included, with no
// source position.
func NewString(text string) Token { return Token{Kind: String, Text: text} }
