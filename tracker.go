// SPDX-License-Identifier: MIT

package preproc

import (
	"gitlab.com/tokenforge/preproc/engine"
	"gitlab.com/tokenforge/preproc/token"
)

// fileTracker observes engine file changes & records the current
// file-nesting depth. Depth zero means no main file context is live,
// which is what tokenization sessions consult to decide whether a
// disposable engine must be bootstrapped.
type fileTracker struct {
	depth int
}

// FileChanged implements engine.Observer.
func (t *fileTracker) FileChanged(reason engine.FileChangeReason, _ token.Location) {
	switch reason {
	case engine.EnterFile:
		t.depth++
	case engine.ExitFile:
		if t.depth > 0 {
			t.depth--
		}
	}
}

// Depth returns the current file-nesting depth.
func (t *fileTracker) Depth() int { return t.depth }
