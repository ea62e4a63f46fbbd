// SPDX-License-Identifier: MIT

package preproc

import (
	"fmt"

	"gitlab.com/tokenforge/preproc/engine"
	"gitlab.com/tokenforge/preproc/token"
)

// Tokenize lexes a text fragment into tokens using the shared engine
// state, without disturbing the main lexing position. The fragment is
// inserted as a virtual file & entered as an include; lexing stops
// exactly at the fragment boundary. Empty input returns an empty
// sequence with no engine interaction.
//
// When no main file context is live, a disposable engine sharing the
// source map is bootstrapped for the session & the configured engine
// restored afterwards, on every exit path. Sessions nest in call stack
// order: a macro callback may itself call Tokenize.
func (p *Preprocessor) Tokenize(text string) (toks []token.Token, err error) {
	if text == "" {
		return nil, nil
	}

	eng, tracker := p.eng, p.tracker
	bootstrap := tracker.Depth() == 0
	if bootstrap {
		if eng, tracker, err = p.bootstrapSession(); err != nil {
			return nil, err
		}
		orig := p.eng
		p.eng = eng
		defer func() { p.eng = orig }()
	}

	fid := eng.Sources().CreateVirtualFile("<fragment>", text)

	before := tracker.Depth()
	if err = eng.EnterFile(fid); err != nil {
		p.logger.Debugf("tokenize: fragment rejected: %v", err)
		return nil, nil
	}
	if tracker.Depth() <= before {
		// The engine silently refused the file; nothing to lex.
		return nil, nil
	}

	for {
		tok, perr := eng.Peek()
		if perr != nil {
			return toks, fmt.Errorf("tokenize: %w", perr)
		}
		if tok.Is(token.EOF) || !eng.InFile(fid) {
			// The boundary token stays unconsumed for the outer walk.
			break
		}
		tok, _ = eng.TakePeeked()

		// Tokens crossing engines must compare equal by interning in
		// later use, so identifiers are re-interned into the configured
		// engine's table.
		if bootstrap && tok.Is(token.Ident) {
			tok.Ident = p.base.Intern(tok.Text)
		}
		toks = append(toks, tok)
	}

	return toks, nil
}

// bootstrapSession builds a disposable engine sharing the source map,
// entered at a synthetic empty main file, because file insertion &
// lexing require a live main file context.
func (p *Preprocessor) bootstrapSession() (*engine.Engine, *fileTracker, error) {
	eng, err := engine.New(engine.Options{
		Logger:     p.logger,
		Sources:    p.base.Sources(),
		Predefines: p.base.Predefines(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("tokenize: %w", err)
	}

	tracker := &fileTracker{}
	eng.AddObserver(tracker)

	if err = eng.SetMainVirtual("<session>", ""); err != nil {
		return nil, nil, fmt.Errorf("tokenize: %w", err)
	}
	if err = eng.EnterMainFile(); err != nil {
		return nil, nil, fmt.Errorf("tokenize: %w", err)
	}

	return eng, tracker, nil
}
