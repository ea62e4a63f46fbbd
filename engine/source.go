// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"os"
	"sort"

	"gitlab.com/tokenforge/preproc/token"
)

type (
	// SourceManager owns the source map: every buffer tokens can be
	// attributed to, real files and virtual ones alike. FileIDs are
	// stable for the lifetime of the manager and may be shared between
	// engine instances.
	SourceManager struct {
		files []*SourceFile
	}

	// SourceFile is one source-map entry. Content is owned by the
	// manager; virtual files copy their content at insertion so callers
	// may release their buffers immediately.
	SourceFile struct {
		Name    string
		Content string
		Virtual bool

		id token.FileID

		// lineOffsets holds the byte offset of each line start, built
		// lazily on first position resolution.
		lineOffsets []uint32
	}
)

// NewSourceManager instantiates an empty source map.
func NewSourceManager() *SourceManager { return &SourceManager{} }

// CreateVirtualFile inserts a synthetic source unit with no backing
// storage. The content string is retained as-is (Go strings are
// immutable, so insertion needs no copy).
func (sm *SourceManager) CreateVirtualFile(name, content string) token.FileID {
	return sm.add(&SourceFile{Name: name, Content: content, Virtual: true})
}

// CreateFileFromDisk reads path and inserts it into the source map.
func (sm *SourceManager) CreateFileFromDisk(path string) (token.FileID, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("source file (%s): %w", path, err)
	}

	return sm.add(&SourceFile{Name: path, Content: string(content)}), nil
}

// File resolves a FileID; nil for the zero or an unknown identity.
func (sm *SourceManager) File(id token.FileID) *SourceFile {
	if id == 0 || int(id) > len(sm.files) {
		return nil
	}
	return sm.files[id-1]
}

// FileOf returns the file identity a location is attributed to.
func (sm *SourceManager) FileOf(loc token.Location) token.FileID { return loc.File }

// PresumedLoc resolves a raw location to its presumed file name, line &
// column (both 1-based). ok is false for synthesized locations.
func (sm *SourceManager) PresumedLoc(loc token.Location) (name string, line, col int, ok bool) {
	f := sm.File(loc.File)
	if f == nil {
		return
	}

	line, col = f.position(loc.Offset)
	name, ok = f.Name, true

	return
}

func (sm *SourceManager) add(f *SourceFile) token.FileID {
	f.id = token.FileID(len(sm.files) + 1)
	sm.files = append(sm.files, f)

	return f.id
}

// ID returns the file's source-map identity.
func (f *SourceFile) ID() token.FileID { return f.id }

// position maps a byte offset to a 1-based line/column pair.
func (f *SourceFile) position(offset uint32) (line, col int) {
	if f.lineOffsets == nil {
		f.lineOffsets = []uint32{0}
		for i := 0; i < len(f.Content); i++ {
			if f.Content[i] == '\n' {
				f.lineOffsets = append(f.lineOffsets, uint32(i+1))
			}
		}
	}

	line = sort.Search(len(f.lineOffsets), func(i int) bool {
		return f.lineOffsets[i] > offset
	})
	col = int(offset-f.lineOffsets[line-1]) + 1

	return
}
