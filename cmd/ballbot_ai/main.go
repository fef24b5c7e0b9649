package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/logging"
	intOtel "github.com/ballbot/robot-ai/internal/otel"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "ballbot_ai"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()
)

// configDir is where ballbot_ai.cfg.json is looked up. BALLBOT_CONFIG_DIR
// overrides the working directory.
func configDir() string {
	if dir := os.Getenv("BALLBOT_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "."
}

func loadConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	err := config.Load(configDir())
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// defaults and environment still apply
		return nil
	}
	return err
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s %s (built %s)

Usage:
  %s                  run the AI
  %s run              run the AI
  %s setupdb          create or migrate the database tables
  %s samples [file]   export stored training samples as gzipped JSON
`, AppName, CurrentVersion, BuildDate, AppName, AppName, AppName, AppName)
}

func main() {
	if err := loadConfig(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := os.Args[1:]
	command := "run"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}

	var err error
	switch command {
	case "run":
		err = run()
	case "setupdb":
		initCLILogging()
		err = setupDB()
	case "samples":
		initCLILogging()
		out := ""
		if len(args) > 0 {
			out = args[0]
		}
		err = exportSamples(out)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		Logger.Error("Exiting with error", "command", command, "error", err)
		os.Exit(1)
	}
}
