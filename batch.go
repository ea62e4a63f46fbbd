// SPDX-License-Identifier: MIT

package preproc

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

type (
	// BatchConfig configures PreprocessFiles.
	BatchConfig struct {
		Logger logrus.FieldLogger

		// Workers caps the number of documents preprocessed at once.
		Workers int

		// IncludePaths is shared by every document's Preprocessor.
		IncludePaths []string

		// Setup, when set, runs on each document's fresh Preprocessor
		// before preprocessing starts, typically to register macros &
		// callbacks. It runs on the worker goroutine.
		Setup func(*Preprocessor) error
	}

	// FileResult is one document's preprocessing outcome.
	FileResult struct {
		Path   string
		Output []byte
		Err    error
	}
)

// Validate populates missing BatchConfig entries with defaults.
func (c *BatchConfig) Validate() {
	if c.Logger == nil {
		c.Logger = fLogger
	}
	if c.Workers < 1 {
		c.Workers = runtime.NumCPU()
	}
}

// PreprocessFiles preprocesses several documents concurrently over a
// worker pool. Each document gets its own Preprocessor: an instance
// services a single lex walk, so no engine state is shared between
// workers. Results are positionally aligned with paths; per-document
// failures land in the result, not the returned error.
func PreprocessFiles(ctx context.Context, cfg *BatchConfig, paths []string) ([]FileResult, error) {
	if cfg == nil {
		cfg = &BatchConfig{}
	}
	cfg.Validate()

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("preprocess files: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		results = make([]FileResult, len(paths))
	)
	for i, path := range paths {
		if err = ctx.Err(); err != nil {
			break
		}

		i, path := i, path
		wg.Add(1)
		if serr := pool.Submit(func() {
			defer wg.Done()
			results[i] = preprocessOne(cfg, path)
		}); serr != nil {
			wg.Done()
			results[i] = FileResult{Path: path, Err: fmt.Errorf("preprocess files (%s): %w", path, serr)}
		}
	}
	wg.Wait()

	if err != nil {
		// Mark whatever was never submitted.
		for i := range results {
			if results[i].Path == "" {
				results[i] = FileResult{Path: paths[i], Err: err}
			}
		}
		return results, fmt.Errorf("preprocess files: %w", err)
	}

	return results, nil
}

func preprocessOne(cfg *BatchConfig, path string) FileResult {
	p, err := New(&Config{
		Logger:       cfg.Logger,
		MainFile:     path,
		IncludePaths: cfg.IncludePaths,
	})
	if err != nil {
		return FileResult{Path: path, Err: err}
	}

	if cfg.Setup != nil {
		if err = cfg.Setup(p); err != nil {
			return FileResult{Path: path, Err: fmt.Errorf("setup (%s): %w", path, err)}
		}
	}

	var buf bytes.Buffer
	if err = p.Preprocess(&buf); err != nil {
		cfg.Logger.Debugf("preprocess (%s) failed with macros: %s", path, spew.Sdump(p.MacroNames()))
		return FileResult{Path: path, Err: err}
	}

	return FileResult{Path: path, Output: buf.Bytes()}
}
