// SPDX-License-Identifier: MIT
package preproc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gitlab.com/tokenforge/preproc/token"
)

func writeMainFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "main.src")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func newTestPreprocessor(t *testing.T, content string) *Preprocessor {
	t.Helper()

	p, err := New(&Config{MainFile: writeMainFile(t, content)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return p
}

func preprocessToString(t *testing.T, p *Preprocessor) string {
	t.Helper()

	var buf bytes.Buffer
	if err := p.Preprocess(&buf); err != nil {
		t.Fatalf("Preprocessor.Preprocess() error = %v", err)
	}

	return buf.String()
}

func texts(toks []token.Token) (out []string) {
	for _, tok := range toks {
		out = append(out, tok.Text)
	}

	return
}

// doubler parses its sole argument as an integer and produces twice it.
func doubler(args []token.Token) ([]token.Token, error) {
	if len(args) != 1 || args[0].IsNot(token.Number) {
		return nil, errors.New("doubler: want one number")
	}
	n, err := strconv.Atoi(args[0].Text)
	if err != nil {
		return nil, err
	}

	return []token.Token{{Kind: token.Number, Text: strconv.Itoa(2 * n)}}, nil
}

func TestPreprocessor_DefineFunc(t *testing.T) {
	p := newTestPreprocessor(t, "DOUBLE(21)\n")
	if ok, err := p.DefineFunc("DOUBLE", doubler); !ok || err != nil {
		t.Fatalf("Preprocessor.DefineFunc() = %t, %v, want true, nil", ok, err)
	}

	if got := preprocessToString(t, p); got != "42\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "42\n")
	}
}

func TestPreprocessor_DefineFunc_argumentOpacity(t *testing.T) {
	p := newTestPreprocessor(t, "#define b 1\nLOG(a, b+c)\n")

	var got []string
	if _, err := p.DefineFunc("LOG", func(args []token.Token) ([]token.Token, error) {
		got = texts(args)
		return nil, nil
	}); err != nil {
		t.Fatalf("Preprocessor.DefineFunc() error = %v", err)
	}
	preprocessToString(t, p)

	// Raw argument tokens, top-level comma included; b stays unexpanded.
	want := []string{"a", ",", "b", "+", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("callback arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestPreprocessor_DefineFunc_emptyResult(t *testing.T) {
	p := newTestPreprocessor(t, "before GONE(x) after\n")
	if _, err := p.DefineFunc("GONE", func([]token.Token) ([]token.Token, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("Preprocessor.DefineFunc() error = %v", err)
	}

	if got := preprocessToString(t, p); got != "before after\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "before after\n")
	}
}

func TestPreprocessor_DefineFunc_nilCallback(t *testing.T) {
	p := newTestPreprocessor(t, "")
	if ok, err := p.DefineFunc("F", nil); ok || err != nil {
		t.Errorf("Preprocessor.DefineFunc(nil) = %t, %v, want false, nil", ok, err)
	}
}

func TestPreprocessor_DefineFunc_alreadyDefined(t *testing.T) {
	p := newTestPreprocessor(t, "")
	if _, err := p.Define("X", "1"); err != nil {
		t.Fatalf("Preprocessor.Define() error = %v", err)
	}

	if _, err := p.DefineFunc("X", doubler); !errors.Is(err, ErrAlreadyDefined) {
		t.Errorf("Preprocessor.DefineFunc() error = %v, want %v", err, ErrAlreadyDefined)
	}

	if _, err := p.DefineFunc("Y", doubler); err != nil {
		t.Fatalf("Preprocessor.DefineFunc() error = %v", err)
	}
	if _, err := p.DefineFunc("Y", doubler); !errors.Is(err, ErrAlreadyDefined) {
		t.Errorf("Preprocessor.DefineFunc() re-registration error = %v, want %v", err, ErrAlreadyDefined)
	}
}

func TestPreprocessor_DefineFunc_callbackError(t *testing.T) {
	wantErr := errors.New("host failure")
	p := newTestPreprocessor(t, "BOOM()\n")
	if _, err := p.DefineFunc("BOOM", func([]token.Token) ([]token.Token, error) {
		return nil, wantErr
	}); err != nil {
		t.Fatalf("Preprocessor.DefineFunc() error = %v", err)
	}

	var buf bytes.Buffer
	// The callback's error comes back untouched, not wrapped.
	if err := p.Preprocess(&buf); err != wantErr {
		t.Errorf("Preprocessor.Preprocess() error = %v, want %v", err, wantErr)
	}
}

func TestPreprocessor_Define_idempotent(t *testing.T) {
	p := newTestPreprocessor(t, "ANSWER\n")
	for i := 0; i < 2; i++ {
		if ok, err := p.Define("ANSWER", "42"); !ok || err != nil {
			t.Fatalf("Preprocessor.Define() #%d = %t, %v, want true, nil", i+1, ok, err)
		}
	}

	if got := preprocessToString(t, p); got != "42\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "42\n")
	}
}

func TestPreprocessor_Define_conflict(t *testing.T) {
	p := newTestPreprocessor(t, "X\n")
	if _, err := p.Define("X", "1"); err != nil {
		t.Fatalf("Preprocessor.Define() error = %v", err)
	}

	if ok, err := p.Define("X", "2"); ok || !errors.Is(err, ErrMacroConflict) {
		t.Fatalf("Preprocessor.Define() conflicting = %t, %v, want false, %v", ok, err, ErrMacroConflict)
	}

	// The original definition survives the refused redefinition.
	if got := preprocessToString(t, p); got != "1\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "1\n")
	}
}

func TestPreprocessor_Define_functionLike(t *testing.T) {
	p := newTestPreprocessor(t, "ADD(1, 2)\n")
	if _, err := p.Define("ADD(x, y)", "x + y"); err != nil {
		t.Fatalf("Preprocessor.Define() error = %v", err)
	}

	if got := preprocessToString(t, p); got != "1 + 2\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "1 + 2\n")
	}
}

func TestPreprocessor_Define_badParameterList(t *testing.T) {
	tests := []struct {
		name     string
		macro    string
		wantCol  string
		wantPass bool
	}{
		{name: "bare name", macro: "X", wantPass: true},
		{name: "empty params", macro: "F()", wantPass: true},
		{name: "params", macro: "MAX(a, b)", wantPass: true},
		{name: "variadic", macro: "V(a, ...)", wantPass: true},
		{name: "spaced", macro: "  G ( a , b )  ", wantPass: true},
		{name: "stray comma", macro: "F(,a)", wantCol: "column 3"},
		{name: "missing close", macro: "F(a", wantCol: "column 4"},
		{name: "empty name", macro: "", wantCol: "column 1"},
		{name: "param after variadic", macro: "F(..., a)", wantCol: "column 8"},
		{name: "trailing garbage", macro: "F(a) b", wantCol: "column 6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPreprocessor(t, "")
			_, err := p.Define(tt.macro, "1")
			if tt.wantPass {
				if err != nil {
					t.Fatalf("Preprocessor.Define(%q) error = %v", tt.macro, err)
				}
				return
			}
			if !errors.Is(err, ErrBadParameterList) {
				t.Fatalf("Preprocessor.Define(%q) error = %v, want %v", tt.macro, err, ErrBadParameterList)
			}
			if !strings.Contains(err.Error(), tt.wantCol) {
				t.Errorf("Preprocessor.Define(%q) error = %q, want mention of %q", tt.macro, err, tt.wantCol)
			}
		})
	}
}

func TestPreprocessor_Undefine(t *testing.T) {
	p := newTestPreprocessor(t, "")
	if _, err := p.Define("X", "1"); err != nil {
		t.Fatal(err)
	}

	if !p.Undefine("X") {
		t.Error("Preprocessor.Undefine() = false, want true")
	}
	if p.Undefine("X") {
		t.Error("Preprocessor.Undefine() repeat = true, want false")
	}

	// A callback name becomes registrable again after removal.
	if _, err := p.DefineFunc("D", doubler); err != nil {
		t.Fatal(err)
	}
	p.Undefine("D")
	if ok, err := p.DefineFunc("D", doubler); !ok || err != nil {
		t.Errorf("Preprocessor.DefineFunc() after Undefine = %t, %v, want true, nil", ok, err)
	}
}

func TestPreprocessor_Next(t *testing.T) {
	p := newTestPreprocessor(t, "#define X 1\nX\n")

	tok, err := p.Next(true)
	if err != nil {
		t.Fatalf("Preprocessor.Next(true) error = %v", err)
	}
	if tok.Text != "1" {
		t.Errorf("Preprocessor.Next(true) = %q, want %q", tok.Text, "1")
	}

	p = newTestPreprocessor(t, "#define X 1\nX\n")
	if tok, err = p.Next(false); err != nil {
		t.Fatalf("Preprocessor.Next(false) error = %v", err)
	}
	if tok.Text != "X" {
		t.Errorf("Preprocessor.Next(false) = %q, want %q", tok.Text, "X")
	}
}

func TestPreprocessor_AddPragma(t *testing.T) {
	p := newTestPreprocessor(t, "#pragma note x y\nrest\n")

	var got []string
	if ok, err := p.AddPragma("note", func(args []token.Token) ([]token.Token, error) {
		got = texts(args)
		return []token.Token{token.NewPunct("!")}, nil
	}); !ok || err != nil {
		t.Fatalf("Preprocessor.AddPragma() = %t, %v, want true, nil", ok, err)
	}

	if out := preprocessToString(t, p); out != "!\nrest\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", out, "!\nrest\n")
	}
	if diff := cmp.Diff([]string{"x", "y"}, got); diff != "" {
		t.Errorf("pragma arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestPreprocessor_Tokenize_beforeMain(t *testing.T) {
	p := newTestPreprocessor(t, "doc\n")

	toks, err := p.Tokenize("a+b")
	if err != nil {
		t.Fatalf("Preprocessor.Tokenize() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "+", "b"}, texts(toks)); diff != "" {
		t.Errorf("Preprocessor.Tokenize() mismatch (-want +got):\n%s", diff)
	}

	// The bootstrapped session leaves the configured engine untouched.
	if got := preprocessToString(t, p); got != "doc\n" {
		t.Errorf("Preprocessor.Preprocess() after Tokenize = %q, want %q", got, "doc\n")
	}
}

func TestPreprocessor_Tokenize_empty(t *testing.T) {
	p := newTestPreprocessor(t, "")
	toks, err := p.Tokenize("")
	if toks != nil || err != nil {
		t.Errorf("Preprocessor.Tokenize(\"\") = %v, %v, want nil, nil", toks, err)
	}
}

func TestPreprocessor_Tokenize_identInterning(t *testing.T) {
	p := newTestPreprocessor(t, "")

	first, err := p.Tokenize("name")
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Tokenize("name")
	if err != nil {
		t.Fatal(err)
	}
	if first[0].Ident == nil || first[0].Ident != second[0].Ident {
		t.Error("identifiers from separate sessions do not share an interned name")
	}
}

func TestPreprocessor_Tokenize_nestedCallback(t *testing.T) {
	p := newTestPreprocessor(t, "OUTER(7)\n")

	var innerArgs []string
	if _, err := p.DefineFunc("FOO", func(args []token.Token) ([]token.Token, error) {
		innerArgs = texts(args)
		return []token.Token{{Kind: token.Number, Text: "99"}}, nil
	}); err != nil {
		t.Fatal(err)
	}

	var outerAfter []string
	if _, err := p.DefineFunc("OUTER", func(args []token.Token) ([]token.Token, error) {
		inner, terr := p.Tokenize("FOO(1,2)")
		if terr != nil {
			return nil, terr
		}
		outerAfter = texts(args)
		return inner, nil
	}); err != nil {
		t.Fatal(err)
	}

	if got := preprocessToString(t, p); got != "99\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "99\n")
	}
	if diff := cmp.Diff([]string{"1", ",", "2"}, innerArgs); diff != "" {
		t.Errorf("inner callback arguments mismatch (-want +got):\n%s", diff)
	}
	// The nested capture must not scribble over the outer buffer.
	if diff := cmp.Diff([]string{"7"}, outerAfter); diff != "" {
		t.Errorf("outer arguments after nested session mismatch (-want +got):\n%s", diff)
	}
}

func TestPreprocessor_Tokenize_injectionOrder(t *testing.T) {
	p := newTestPreprocessor(t, "WRAP(7) tail\n")

	// The session's lookahead past the fragment must not let the
	// document token trailing the invocation overtake the callback's
	// result tokens.
	if _, err := p.DefineFunc("WRAP", func([]token.Token) ([]token.Token, error) {
		if _, terr := p.Tokenize("x y"); terr != nil {
			return nil, terr
		}
		return []token.Token{{Kind: token.Number, Text: "99"}}, nil
	}); err != nil {
		t.Fatal(err)
	}

	if got := preprocessToString(t, p); got != "99 tail\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "99 tail\n")
	}
}

func TestPreprocessor_Iterate(t *testing.T) {
	p := newTestPreprocessor(t, "a b c\n")

	it, err := p.Iterate()
	if err != nil {
		t.Fatalf("Preprocessor.Iterate() error = %v", err)
	}

	var got []string
	for it.HasNext() {
		tok, nerr := it.Next()
		if nerr != nil {
			t.Fatalf("TokenIterator.Next() error = %v", nerr)
		}
		got = append(got, tok.Text)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("TokenIterator mismatch (-want +got):\n%s", diff)
	}

	if _, err = it.Next(); !errors.Is(err, ErrIteratorExhausted) {
		t.Errorf("TokenIterator.Next() exhausted error = %v, want %v", err, ErrIteratorExhausted)
	}
	if _, err = p.Iterate(); !errors.Is(err, ErrIteratorExists) {
		t.Errorf("Preprocessor.Iterate() second call error = %v, want %v", err, ErrIteratorExists)
	}
}

func TestPreprocessor_Preprocess_lineStructure(t *testing.T) {
	p := newTestPreprocessor(t, "a b\nc\n")
	if got := preprocessToString(t, p); got != "a b\nc\n" {
		t.Errorf("Preprocessor.Preprocess() = %q, want %q", got, "a b\nc\n")
	}
}
