package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const scopeName = "ballbot-ai"

// swapped by tests
var osStdout io.Writer = os.Stdout

// Options selects the sinks built by Setup.
type Options struct {
	// File receives text records. Stdout is used when nil.
	File  io.Writer
	Level string
	// Provider enables the OTel bridge at Level.
	Provider *sdklog.LoggerProvider
	// GraylogLevel filters what is shipped when Graylog is enabled.
	GraylogLevel string
	// States stamps records with the controller's state names.
	States StateFunc
}

// SlogManager owns the process logger and the resources behind its sinks.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	graylog     *gelf.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// EnableGraylog connects the GELF writer. Call before Setup.
func (m *SlogManager) EnableGraylog(address string) error {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return fmt.Errorf("connecting to graylog at %s: %w", address, err)
	}
	w.Facility = scopeName
	m.graylog = w
	return nil
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
		}
	}
	return a
}

// Setup replaces the logger. It may be called again, e.g. once the OTel
// provider exists.
func (m *SlogManager) Setup(opts Options) {
	level := ParseLevel(opts.Level)
	m.logProvider = opts.Provider

	textOpts := &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: utcTime}
	out := opts.File
	if out == nil {
		out = osStdout
	}
	sinks := []Sink{{Handler: slog.NewTextHandler(out, textOpts), Level: level}}

	if opts.Provider != nil {
		sinks = append(sinks, Sink{
			Handler: otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(opts.Provider)),
			Level:   level,
		})
	}
	if m.graylog != nil {
		glevel := level
		if opts.GraylogLevel != "" {
			glevel = ParseLevel(opts.GraylogLevel)
		}
		sinks = append(sinks, Sink{
			Handler: slog.NewJSONHandler(m.graylog, textOpts),
			Level:   glevel,
		})
	}

	m.logger = slog.New(NewStateHandler(NewFanout(sinks...), opts.States))
	m.logger.Info("Logging initialized", "level", level.String(), "otel", opts.Provider != nil, "graylog", m.graylog != nil)
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// Close releases the Graylog connection.
func (m *SlogManager) Close() error {
	if m.graylog != nil {
		return m.graylog.Close()
	}
	return nil
}
