// Package logging builds the process logger: a text log file per session, an
// optional OTel bridge and optional GELF shipping, each with its own level.
package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// LogFilePath builds a per-session log file path using OS-appropriate separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// ParseLevel accepts slog level names in any case, including offsets such as
// "debug+2". Unknown or empty names fall back to INFO.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
