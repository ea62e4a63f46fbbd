// SPDX-License-Identifier: MIT

package engine

import (
	"bufio"
	"fmt"
	"io"

	"gitlab.com/tokenforge/preproc/token"
)

// Print lexes the remaining expanded token stream to its end, writing
// each token's spelling with line structure & inter-token spacing
// reconstructed from the token flags.
func (e *Engine) Print(w io.Writer) error {
	bw := bufio.NewWriter(w)

	first := true
	for {
		tok, err := e.Lex()
		if err != nil {
			return err
		}
		if tok.Is(token.EOF) {
			break
		}
		if tok.Is(token.EOD) {
			continue
		}

		switch {
		case tok.Has(token.StartOfLine) && !first:
			if err = bw.WriteByte('\n'); err != nil {
				return fmt.Errorf("print token stream: %w", err)
			}
		case tok.Has(token.LeadingSpace) && !first:
			if err = bw.WriteByte(' '); err != nil {
				return fmt.Errorf("print token stream: %w", err)
			}
		}
		if _, err = bw.WriteString(tok.Text); err != nil {
			return fmt.Errorf("print token stream: %w", err)
		}
		first = false
	}

	if !first {
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("print token stream: %w", err)
		}
	}

	return bw.Flush()
}
