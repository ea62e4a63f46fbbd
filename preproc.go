// SPDX-License-Identifier: MIT

// Package preproc layers externally implemented macro expansions over a
// directive-aware text preprocessing engine. A host program registers
// named callbacks; during preprocessing, invocations of those names
// hand the raw unexpanded argument tokens to the callback, whose result
// tokens are spliced back into the live expansion stream.
//
// The engine has no first-class expansion hook, so registration
// synthesizes a macro whose replacement chains two directive steps: a
// capture directive that buffers the arguments, then a dispatch
// directive that invokes the callback. Both are reached through the
// engine's string-to-directive escape operator.
package preproc

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"gitlab.com/tokenforge/preproc/engine"
	"gitlab.com/tokenforge/preproc/token"
)

type (
	// MacroCallback is host-supplied expansion logic. It receives the
	// invocation's raw argument tokens, top-level commas included, and
	// returns the tokens to splice into the stream. The argument slice
	// is lent for the duration of the call only.
	MacroCallback func(args []token.Token) ([]token.Token, error)

	// Config configures a Preprocessor.
	Config struct {
		Logger logrus.FieldLogger

		// MainFile is the document to preprocess. Optional when the
		// instance is used for tokenization & formatting only.
		MainFile string

		// IncludePaths lists directories searched by include
		// directives.
		IncludePaths []string
	}

	// Preprocessor binds one engine instance to the callback protocol.
	// Not safe for concurrent use; callbacks & tokenization sessions
	// nest on the call stack only.
	Preprocessor struct {
		logger logrus.FieldLogger

		// base is the engine New configured; eng is the currently
		// active one, swapped while a bootstrapped tokenization session
		// runs.
		base *engine.Engine
		eng  *engine.Engine

		tracker *fileTracker
		saver   *tokenSaver
		ns      *engine.PragmaNamespace

		// registered marks macro names installed through the callback
		// protocol, distinguishing them from ordinary definitions.
		registered map[string]bool

		iterated bool
	}
)

const (
	// pragmaNamespace introduces the dispatch directives: callback
	// invocations travel as `preproc <name>` pragmas.
	pragmaNamespace = "preproc"

	// captureDirective is the sentinel argument-saving directive.
	captureDirective = "preproc_capture"

	// indirectMacro is the predefined escape-to-directive helper.
	indirectMacro = "__PREPROC_INDIRECT"
)

// indirectPredefine is processed before the first document token. It
// stringifies its arguments & re-injects them as a directive, which is
// the glue both trampoline steps ride on. It must be installed before
// any registration happens.
const indirectPredefine = "#define " + indirectMacro + "(...) _Pragma(#__VA_ARGS__)\n"

// Preprocessor errors.
var (
	ErrMacroConflict     = errors.New("conflicting macro definition")
	ErrAlreadyDefined    = errors.New("macro name already defined")
	ErrBadParameterList  = errors.New("malformed macro parameter list")
	ErrIteratorExists    = errors.New("token iterator already created")
	ErrIteratorExhausted = errors.New("token iterator exhausted")
)

// fLogger is the package's fallback logger, mirrored into every Config
// that does not bring its own.
var fLogger logrus.FieldLogger = logrus.New()

// SetLogger configures the package's fallback logger.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		fLogger = l
	}
}

// Validate populates missing Config entries with defaults.
func (c *Config) Validate() {
	if c.Logger == nil {
		c.Logger = fLogger
	}
}

// New instantiates a Preprocessor over cfg.MainFile. Fails if the file
// cannot be read or the engine rejects the configuration.
func New(cfg *Config) (p *Preprocessor, err error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Validate()

	eng, err := engine.New(engine.Options{
		Logger:       cfg.Logger,
		MainFile:     cfg.MainFile,
		IncludePaths: cfg.IncludePaths,
		Predefines:   indirectPredefine,
	})
	if err != nil {
		return nil, fmt.Errorf("create preprocessor: %w", err)
	}

	p = &Preprocessor{
		logger:     cfg.Logger,
		base:       eng,
		eng:        eng,
		tracker:    &fileTracker{},
		saver:      &tokenSaver{},
		ns:         engine.NewPragmaNamespace(pragmaNamespace),
		registered: make(map[string]bool),
	}

	eng.AddObserver(p.tracker)
	if err = eng.AddPragmaHandler(p.saver); err != nil {
		return nil, fmt.Errorf("create preprocessor: %w", err)
	}
	if err = eng.AddPragmaHandler(p.ns); err != nil {
		return nil, fmt.Errorf("create preprocessor: %w", err)
	}

	return p, nil
}

// Define installs an ordinary text macro. name is either a bare
// identifier or an identifier with a parenthesized, comma-separated
// parameter list, a trailing "..." marking it variadic; value is
// tokenized with Tokenize. Redefinition with an identical body
// succeeds & changes nothing; an incompatible existing definition is
// refused with ErrMacroConflict.
func (p *Preprocessor) Define(name, value string) (bool, error) {
	shape, err := parseMacroName(name)
	if err != nil {
		return false, err
	}

	body, err := p.Tokenize(value)
	if err != nil {
		return false, fmt.Errorf("define (%s): %w", shape.name, err)
	}

	m := &engine.Macro{
		Name:         shape.name,
		Params:       shape.params,
		Body:         body,
		FunctionLike: shape.funcLike,
		Variadic:     shape.variadic,
	}
	// An empty body leaves the end location unset.
	if len(body) > 0 {
		m.EndLoc = body[len(body)-1].Loc
	}

	if prev := p.eng.Macro(m.Name); prev != nil {
		if prev.IdenticalTo(m) {
			return true, nil
		}
		return false, fmt.Errorf("define (%s): %w", m.Name, ErrMacroConflict)
	}
	p.eng.SetMacro(m)

	p.logger.Debugf("defined macro %q (%d body tokens)", m.Name, len(m.Body))

	return true, nil
}

// Undefine removes a macro, reporting whether it existed. Names
// registered through DefineFunc have their dispatch handler removed as
// well, freeing the name for re-registration.
func (p *Preprocessor) Undefine(name string) bool {
	existed := p.eng.Macro(name) != nil
	p.eng.RemoveMacro(name)
	if p.registered[name] {
		p.ns.RemoveHandler(name)
		delete(p.registered, name)
	}

	return existed
}

// Next lexes & returns exactly one token from the live stream,
// optionally suppressing macro expansion. The main document is entered
// on first use.
func (p *Preprocessor) Next(expand bool) (token.Token, error) {
	if err := p.ensureEntered(); err != nil {
		return token.Token{}, err
	}
	if expand {
		return p.eng.Lex()
	}

	return p.eng.LexUnexpanded()
}

// Preprocess drains the whole document through the engine's expanded
// textual output path into w.
func (p *Preprocessor) Preprocess(w io.Writer) error {
	if err := p.ensureEntered(); err != nil {
		return err
	}

	return p.eng.Print(w)
}

func (p *Preprocessor) ensureEntered() error {
	if p.eng.Entered() {
		return nil
	}

	return p.eng.EnterMainFile()
}

// Sources exposes the underlying source map, shared with any
// bootstrapped session engines.
func (p *Preprocessor) Sources() *engine.SourceManager { return p.base.Sources() }

// MacroNames returns the names of all defined macros, sorted.
func (p *Preprocessor) MacroNames() []string { return p.eng.MacroNames() }
