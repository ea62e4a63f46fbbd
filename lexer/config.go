// SPDX-License-Identifier: MIT
package lexer

import (
	"github.com/sirupsen/logrus"

	"gitlab.com/tokenforge/preproc/token"
)

type (
	// Config defines configuration options for the Scanner's operations.
	Config struct {
		Logger logrus.FieldLogger

		// File is the source-map identity stamped on every token's
		// location. Zero is legal; such tokens resolve to no presumed
		// position.
		File token.FileID
	}
)

// DefaultConfig configures the Scanner's Config.
func DefaultConfig() *Config {
	return &Config{Logger: logrus.New()}
}

// Validate populates missing Config entries with defaults.
func (c *Config) Validate() {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
}
