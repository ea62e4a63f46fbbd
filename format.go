// SPDX-License-Identifier: MIT

package preproc

import (
	"strings"

	"gitlab.com/tokenforge/preproc/token"
)

// Format renders a token sequence to text, inserting newlines & spaces
// to reproduce each token's original line & column. A pure function of
// the tokens & their recorded locations.
//
// Tokens without a resolvable location — synthesized ones, typically
// callback results — do not participate in layout reconstruction: they
// are emitted with at most the single space their leading-space flag
// implies.
func (p *Preprocessor) Format(toks []token.Token) string {
	var (
		b       strings.Builder
		line    = 0
		column  = 1
		sources = p.base.Sources()
	)

	for _, tok := range toks {
		if _, tline, tcol, ok := sources.PresumedLoc(tok.Loc); ok {
			if tline > line {
				// Lines are 1-based; zero means no token has been
				// emitted yet, so the first token gets no newlines.
				if line > 0 {
					b.WriteString(strings.Repeat("\n", tline-line))
					column = 1
				}
				line = tline
			}
			if tcol > column {
				b.WriteString(strings.Repeat(" ", tcol-column))
				column = tcol
			}
		} else if tok.Has(token.LeadingSpace) && b.Len() > 0 {
			b.WriteByte(' ')
			column++
		}

		b.WriteString(tok.Text)
		column += len(tok.Text)
	}

	return b.String()
}
