// Package logging builds the hclog.Logger every component takes as an
// explicit dependency (DESIGN NOTES §9, "Global mutable state → explicit
// context": no package-level logger singleton). It reimplements the
// contract of the teacher's (unvendored, Cardano-specific)
// cardano-infrastructure/logger package directly against hashicorp/go-hclog,
// since that dependency is not worth carrying whole for one constructor
// (see DESIGN.md, "Dropped teacher dependencies").
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/polymer-relay/relayer/common"
)

// Config mirrors the top-level configuration's `logging` block (spec §6).
type Config struct {
	Level             string `json:"level"`
	EnableFileLogging bool   `json:"enableFileLogging"`
	LogPath           string `json:"logPath"`
}

// New builds the root logger. When EnableFileLogging is set, output is
// duplicated to the configured file as well as stderr so operators keep
// seeing console output under a terminal.
func New(cfg Config) (hclog.Logger, error) {
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	var output io.Writer = os.Stderr

	if cfg.EnableFileLogging {
		if cfg.LogPath == "" {
			return nil, fmt.Errorf("logging: enableFileLogging is set but logPath is empty")
		}

		if err := common.CreateDirectoryIfNotExists(filepath.Dir(cfg.LogPath)); err != nil {
			return nil, fmt.Errorf("logging: could not create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("logging: could not open log file %s: %w", cfg.LogPath, err)
		}

		output = io.MultiWriter(os.Stderr, file)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "relayer",
		Level:  level,
		Output: output,
	})

	return logger, nil
}

// NormalizeLevel upper-cases and validates a configured log level string.
// It accepts TRACE, DEBUG, INFO, WARN, ERROR (in any case) and the empty
// string, and returns an error for anything else, including OFF.
func NormalizeLevel(level string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(level))

	switch upper {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "":
		return upper, nil
	default:
		return "", fmt.Errorf("logging: unknown level %q", level)
	}
}
