// SPDX-License-Identifier: MIT

// Package engine implements the preprocessing engine consumed by the
// callback layer: a directive-aware lexer & macro expander over a
// shared source map, exposing the primitives the outer layer builds
// on — pragma handlers, token-stream injection & nested file contexts.
package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"gitlab.com/tokenforge/preproc/lexer"
	"gitlab.com/tokenforge/preproc/token"
)

type (
	// FileChangeReason discriminates file-change notifications.
	FileChangeReason int

	// Observer receives file-change notifications as the engine enters
	// & exits file contexts.
	Observer interface {
		FileChanged(reason FileChangeReason, loc token.Location)
	}

	// Options configures an Engine.
	Options struct {
		Logger logrus.FieldLogger

		// MainFile names the main document on disk. Empty is legal; a
		// synthetic main file may be set later with SetMainVirtual.
		MainFile string

		// IncludePaths lists the directories searched by #include.
		IncludePaths []string

		// Predefines is directive text processed before the first main
		// file token is lexed.
		Predefines string

		// Sources optionally shares another engine's source map, so
		// that file identities stay comparable across instances.
		Sources *SourceManager
	}

	// Engine is one preprocessing engine instance. A single instance
	// services one logical lex walk at a time; it is not safe for
	// concurrent use.
	Engine struct {
		logger logrus.FieldLogger

		sm     *SourceManager
		idents *IdentifierTable
		macros macroTable

		pragmas   map[string]PragmaHandler
		observers []Observer

		includePaths []string
		includeGuard map[string]bool
		predefines   string

		// sources is the stack of live token sources; the top one feeds
		// the lexer. Exhausted sources pop lazily, which keeps
		// in-progress macro expansions visible for recursion painting.
		sources []tokenSource

		// pending holds pushed-back tokens, most recent last.
		pending []pendingToken

		cond condStack

		mainFile token.FileID
		entered  bool
	}

	// tokenSource is one entry of the input stack.
	tokenSource interface {
		next() (token.Token, bool)
	}

	// fileSource lexes a source-map entry.
	fileSource struct {
		fid   token.FileID
		name  string
		sc    *lexer.Scanner
		quiet bool
		// guardKey is the include-cycle guard entry to release on exit,
		// empty for non-include contexts.
		guardKey string
	}

	// streamSource replays a fixed token sequence: an injected stream,
	// a macro expansion, or a directive's argument tokens.
	streamSource struct {
		toks []token.Token
		pos  int

		// macro names the expansion this stream is the body of; such
		// names are blocked from re-expansion while the stream is live.
		macro string

		// directive streams never expand and end with an EOD token.
		directive bool
	}

	pendingToken struct {
		tok token.Token
		src tokenSource
		// raw tokens re-enter directive recognition; processed ones
		// have already been through it.
		raw bool
		// depth is the input-stack height at pushback time. The entry
		// is served only once the stack has drained back to it, so
		// sources pushed after the pushback keep stream order.
		depth int
	}
)

const (
	// EnterFile notifies that a file context was pushed.
	EnterFile FileChangeReason = iota
	// ExitFile notifies that a file context was popped.
	ExitFile
)

// maxSourceDepth bounds the input stack against runaway expansion
// chains the recursion painting cannot catch.
const maxSourceDepth = 128

// Engine errors.
var (
	ErrHandlerExists = errors.New("handler already registered")

	ErrBadDirective   = errors.New("malformed directive")
	ErrMacroRedefined = errors.New("redefinition of macro")
	ErrMacroArgs      = errors.New("malformed macro invocation")
	ErrRecursionLimit = errors.New("macro expansion exceeds input stack limit")

	ErrUnterminatedConditional = errors.New("unclosed conditional directive")
	ErrConditionalUnderflow    = errors.New("conditional directive without a matching opening")

	ErrIncludeNotFound = errors.New("include not resolved")
	ErrIncludeCycle    = errors.New("include cycle detected")

	ErrMainFileEntered = errors.New("main file already entered")
	ErrNoMainFile      = errors.New("no main file configured")
)

// Validate populates missing Options entries with defaults.
func (o *Options) Validate() {
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Sources == nil {
		o.Sources = NewSourceManager()
	}
}

// New instantiates an Engine. The main file, when named, is read into
// the source map immediately; a missing or unreadable file fails here,
// not at first lex.
func New(opts Options) (*Engine, error) {
	opts.Validate()

	e := &Engine{
		logger:       opts.Logger,
		sm:           opts.Sources,
		idents:       NewIdentifierTable(),
		macros:       make(macroTable),
		pragmas:      make(map[string]PragmaHandler),
		includePaths: opts.IncludePaths,
		includeGuard: make(map[string]bool),
		predefines:   opts.Predefines,
	}

	if opts.MainFile != "" {
		fid, err := e.sm.CreateFileFromDisk(opts.MainFile)
		if err != nil {
			return nil, err
		}
		e.mainFile = fid
	}

	return e, nil
}

// Sources exposes the engine's source map.
func (e *Engine) Sources() *SourceManager { return e.sm }

// Intern interns an identifier name in this engine's identifier table.
func (e *Engine) Intern(name string) *token.Identifier { return e.idents.Get(name) }

// Predefines returns the engine's predefines text.
func (e *Engine) Predefines() string { return e.predefines }

// AppendPredefines appends directive text to the predefines. Only legal
// before the main file is entered.
func (e *Engine) AppendPredefines(text string) error {
	if e.entered {
		return ErrMainFileEntered
	}
	e.predefines += text

	return nil
}

// AddObserver registers a file-change observer.
func (e *Engine) AddObserver(o Observer) { e.observers = append(e.observers, o) }

// SetMainVirtual installs a synthetic main file. Only legal before the
// main file is entered.
func (e *Engine) SetMainVirtual(name, content string) error {
	if e.entered {
		return ErrMainFileEntered
	}
	e.mainFile = e.sm.CreateVirtualFile(name, content)

	return nil
}

// Entered reports whether the main file has been entered.
func (e *Engine) Entered() bool { return e.entered }

// EnterMainFile begins preprocessing the main document. The predefines
// text is processed before the first document token surfaces. Usable at
// most once per engine instance.
func (e *Engine) EnterMainFile() error {
	if e.entered {
		return ErrMainFileEntered
	}
	if e.mainFile == 0 {
		return ErrNoMainFile
	}
	e.entered = true

	e.pushFile(e.mainFile, "", false)
	if e.predefines != "" {
		text := e.predefines
		if text[len(text)-1] != '\n' {
			text += "\n"
		}
		fid := e.sm.CreateVirtualFile("<predefines>", text)
		e.pushFile(fid, "", true)
	}

	return nil
}

// EnterFile pushes an existing source-map entry as an include context.
func (e *Engine) EnterFile(fid token.FileID) error {
	if e.sm.File(fid) == nil {
		return fmt.Errorf("enter file (%d): %w", fid, ErrIncludeNotFound)
	}
	e.pushFile(fid, "", false)

	return nil
}

// EnterTokenStream injects tokens into the pending input stream, ahead
// of whatever follows.
func (e *Engine) EnterTokenStream(toks []token.Token) {
	if len(toks) == 0 {
		return
	}
	e.pushSource(&streamSource{toks: toks})
}

// Lex returns the next fully expanded token from the live stream.
func (e *Engine) Lex() (token.Token, error) {
	tok, _, err := e.lex(true)
	return tok, err
}

// LexUnexpanded returns the next token with macro expansion suppressed.
func (e *Engine) LexUnexpanded() (token.Token, error) {
	tok, _, err := e.lex(false)
	return tok, err
}

// Peek returns the next expanded token without consuming it. The
// peeked token is cached; the following Lex, LexUnexpanded or
// TakePeeked call returns it verbatim.
func (e *Engine) Peek() (token.Token, error) {
	if n := len(e.pending); n > 0 && !e.pending[n-1].raw && len(e.sources) <= e.pending[n-1].depth {
		return e.pending[n-1].tok, nil
	}

	tok, src, err := e.lex(true)
	if err != nil {
		return tok, err
	}
	e.pushBack(tok, src, false)

	return tok, nil
}

// TakePeeked pops the cached lookahead token, if any, exactly as Peek
// produced it.
func (e *Engine) TakePeeked() (token.Token, bool) {
	if n := len(e.pending); n > 0 && !e.pending[n-1].raw && len(e.sources) <= e.pending[n-1].depth {
		tok := e.pending[n-1].tok
		e.pending = e.pending[:n-1]
		return tok, true
	}

	return token.Token{}, false
}

// InFile reports whether a file context is still live on the input
// stack. Expansion & injection streams rooted in the file keep it live
// until they drain, so the answer flips only once lexing has genuinely
// moved past the file's contribution.
func (e *Engine) InFile(fid token.FileID) bool {
	for i := len(e.sources) - 1; i >= 0; i-- {
		if fs, ok := e.sources[i].(*fileSource); ok && fs.fid == fid {
			return true
		}
	}

	return false
}

// lex implements the shared lexing walk: directive recognition,
// conditional skipping, the _Pragma escape operator & macro expansion.
func (e *Engine) lex(expand bool) (token.Token, tokenSource, error) {
	for {
		tok, src, raw := e.takeToken()
		if !raw {
			// A cached lookahead token is already fully processed;
			// re-offering it to expansion would break the verbatim
			// contract once the streams it was lexed against pop.
			return tok, src, nil
		}

		if fs, ok := src.(*fileSource); ok {
			// Directives are recognized at physical-line granularity,
			// in file contexts only.
			if tok.Is(token.Punct) && tok.Text == "#" && tok.Has(token.StartOfLine) {
				if err := e.handleDirective(fs, tok); err != nil {
					return tok, src, err
				}
				continue
			}
			if !e.cond.Active() {
				// Inactive conditional region.
				continue
			}
		}

		if tok.Is(token.EOF) && src == nil && e.cond.Depth() != 0 {
			line := e.cond.UnclosedLine()
			e.cond = condStack{}
			return tok, src, fmt.Errorf("line %d: %w", line, ErrUnterminatedConditional)
		}

		if tok.Is(token.Ident) {
			if tok.Ident == nil {
				tok.Ident = e.idents.Get(tok.Text)
			}
			if expand && tok.Text == "_Pragma" {
				if err := e.handlePragmaOperator(tok); err != nil {
					return tok, src, err
				}
				continue
			}
			if expand && expansionAllowed(src) {
				if m := e.macros[tok.Text]; m != nil && !e.expanding(tok.Text) {
					did, err := e.expandMacro(m, tok)
					if err != nil {
						return tok, src, err
					}
					if did {
						continue
					}
				}
			}
		}

		return tok, src, nil
	}
}

// pushBack queues a token for re-reading. It is served again only once
// the input stack has drained back to its current height: anything
// pushed above in the meantime (an included file, an injected stream)
// comes first.
func (e *Engine) pushBack(tok token.Token, src tokenSource, raw bool) {
	e.pending = append(e.pending, pendingToken{tok: tok, src: src, raw: raw, depth: len(e.sources)})
}

// takeToken returns the next queued token, popping exhausted sources as
// they surface. Pushed-back tokens win only over the sources that were
// live at their pushback point.
func (e *Engine) takeToken() (token.Token, tokenSource, bool) {
	for {
		if n := len(e.pending); n > 0 && len(e.sources) <= e.pending[n-1].depth {
			p := e.pending[n-1]
			e.pending = e.pending[:n-1]
			return p.tok, p.src, p.raw
		}
		if len(e.sources) == 0 {
			return token.Token{Kind: token.EOF, Flags: token.StartOfLine}, nil, true
		}
		top := e.sources[len(e.sources)-1]
		if tok, ok := top.next(); ok {
			return tok, top, true
		}
		e.popSource()
	}
}

func (e *Engine) pushSource(src tokenSource) {
	e.sources = append(e.sources, src)
}

func (e *Engine) pushFile(fid token.FileID, guardKey string, quiet bool) {
	f := e.sm.File(fid)
	sc := lexer.New(&lexer.Config{Logger: e.logger, File: fid}, f.Content)
	e.pushSource(&fileSource{fid: fid, name: f.Name, sc: sc, quiet: quiet, guardKey: guardKey})
	if !quiet {
		e.fileChanged(EnterFile, token.Location{File: fid})
	}
}

func (e *Engine) popSource() {
	top := e.sources[len(e.sources)-1]
	e.sources = e.sources[:len(e.sources)-1]

	if fs, ok := top.(*fileSource); ok {
		if fs.guardKey != "" {
			delete(e.includeGuard, fs.guardKey)
		}
		if !fs.quiet {
			e.fileChanged(ExitFile, token.Location{File: fs.fid})
		}
	}
}

func (e *Engine) fileChanged(reason FileChangeReason, loc token.Location) {
	for _, o := range e.observers {
		o.FileChanged(reason, loc)
	}
}

// expanding reports whether a macro name is live on the expansion
// stack, i.e. is painted against re-expansion.
func (e *Engine) expanding(name string) bool {
	for i := len(e.sources) - 1; i >= 0; i-- {
		if ss, ok := e.sources[i].(*streamSource); ok && ss.macro == name {
			return true
		}
	}

	return false
}

func expansionAllowed(src tokenSource) bool {
	ss, ok := src.(*streamSource)
	return !ok || !ss.directive
}

// errLoc renders a location for error messages.
func (e *Engine) errLoc(loc token.Location) string {
	if name, line, col, ok := e.sm.PresumedLoc(loc); ok {
		return fmt.Sprintf("%s:%d:%d", name, line, col)
	}
	return "<synthesized>"
}

func (f *fileSource) next() (token.Token, bool) {
	tok := f.sc.Next()
	return tok, tok.IsNot(token.EOF)
}

func (s *streamSource) next() (token.Token, bool) {
	if s.pos >= len(s.toks) {
		return token.Token{Kind: token.EOF}, false
	}
	tok := s.toks[s.pos]
	s.pos++

	return tok, true
}

// exhaust discards the stream's remaining tokens.
func (s *streamSource) exhaust() { s.pos = len(s.toks) }
