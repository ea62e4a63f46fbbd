// SPDX-License-Identifier: MIT

package preproc

import (
	"gitlab.com/tokenforge/preproc/token"
)

// TokenIterator is a single-lookahead pull iterator over the main
// document's fully expanded token stream. Exactly one token is
// buffered between calls.
type TokenIterator struct {
	p     *Preprocessor
	ahead token.Token
}

// Iterate enters the main document & returns its token iterator,
// priming the lookahead. Usable once per Preprocessor instance.
func (p *Preprocessor) Iterate() (*TokenIterator, error) {
	if p.iterated {
		return nil, ErrIteratorExists
	}
	if err := p.ensureEntered(); err != nil {
		return nil, err
	}
	p.iterated = true

	it := &TokenIterator{p: p}
	if err := it.advance(); err != nil {
		return nil, err
	}

	return it, nil
}

// HasNext reports whether Next has a token to return.
func (it *TokenIterator) HasNext() bool { return it.ahead.IsNot(token.EOF) }

// Next returns the buffered lookahead & lexes the next one. Calling it
// exhausted returns ErrIteratorExhausted. A lex failure is reported
// alongside the token that preceded it.
func (it *TokenIterator) Next() (token.Token, error) {
	if !it.HasNext() {
		return token.Token{}, ErrIteratorExhausted
	}
	tok := it.ahead

	return tok, it.advance()
}

func (it *TokenIterator) advance() (err error) {
	it.ahead, err = it.p.eng.Lex()
	return
}
