// SPDX-License-Identifier: MIT
package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"gitlab.com/tokenforge/preproc/token"
)

func bodyOf(texts ...string) (body []token.Token) {
	for i, text := range texts {
		tok := token.Token{Kind: token.Ident, Text: text}
		if i > 0 {
			tok.Flags = token.LeadingSpace
		}
		body = append(body, tok)
	}

	return
}

func TestMacro_IdenticalTo(t *testing.T) {
	base := &Macro{Name: "M", Params: []string{"a"}, Body: bodyOf("a", "b"), FunctionLike: true}

	tests := []struct {
		name  string
		other *Macro
		want  bool
	}{
		{name: "nil", other: nil, want: false},
		{
			name:  "same",
			other: &Macro{Name: "M", Params: []string{"a"}, Body: bodyOf("a", "b"), FunctionLike: true},
			want:  true,
		},
		{
			name:  "different body text",
			other: &Macro{Name: "M", Params: []string{"a"}, Body: bodyOf("a", "c"), FunctionLike: true},
			want:  false,
		},
		{
			name: "different spacing",
			other: &Macro{Name: "M", Params: []string{"a"}, FunctionLike: true, Body: []token.Token{
				{Kind: token.Ident, Text: "a"},
				{Kind: token.Ident, Text: "b"},
			}},
			want: false,
		},
		{
			name:  "different shape",
			other: &Macro{Name: "M", Body: bodyOf("a", "b")},
			want:  false,
		},
		{
			name:  "different params",
			other: &Macro{Name: "M", Params: []string{"x"}, Body: bodyOf("a", "b"), FunctionLike: true},
			want:  false,
		},
		{
			name:  "variadic flag",
			other: &Macro{Name: "M", Params: []string{"a"}, Body: bodyOf("a", "b"), FunctionLike: true, Variadic: true},
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.IdenticalTo(tt.other); got != tt.want {
				t.Errorf("Macro.IdenticalTo() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestMacro_isParam(t *testing.T) {
	m := &Macro{Params: []string{"a", "b"}, Variadic: true}

	tests := []struct {
		name      string
		ident     string
		wantIndex int
		wantOK    bool
	}{
		{name: "first", ident: "a", wantIndex: 0, wantOK: true},
		{name: "second", ident: "b", wantIndex: 1, wantOK: true},
		{name: "variadic tail", ident: "__VA_ARGS__", wantIndex: 2, wantOK: true},
		{name: "unknown", ident: "c", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, ok := m.isParam(tt.ident)
			if index != tt.wantIndex || ok != tt.wantOK {
				t.Errorf("Macro.isParam(%q) = %d, %t, want %d, %t",
					tt.ident, index, ok, tt.wantIndex, tt.wantOK)
			}
		})
	}
}

func TestEngine_MacroNames(t *testing.T) {
	e, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"zeta", "alpha", "mid"} {
		e.SetMacro(&Macro{Name: name})
	}

	want := []string{"alpha", "mid", "zeta"}
	if diff := cmp.Diff(want, e.MacroNames()); diff != "" {
		t.Errorf("Engine.MacroNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_MacroNames_variadicNotParam(t *testing.T) {
	m := &Macro{Params: []string{"a"}}
	if _, ok := m.isParam("__VA_ARGS__"); ok {
		t.Error("Macro.isParam(__VA_ARGS__) = true for a non-variadic macro, want false")
	}
}
