package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ballbot/robot-ai/internal/api"
	"github.com/ballbot/robot-ai/internal/calibration"
	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/controller"
	"github.com/ballbot/robot-ai/internal/dispatcher"
	"github.com/ballbot/robot-ai/internal/gateway"
	"github.com/ballbot/robot-ai/internal/influx"
	"github.com/ballbot/robot-ai/internal/kinematics"
	"github.com/ballbot/robot-ai/internal/logging"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/monitor"
	intOtel "github.com/ballbot/robot-ai/internal/otel"
	"github.com/ballbot/robot-ai/internal/storage"
	"github.com/ballbot/robot-ai/internal/worker"
	"github.com/ballbot/robot-ai/pkg/messages"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout = 5 * time.Second
	uploadTimeout   = 2 * time.Minute
)

// initLogging opens the session log file and sets up slog, OTel and the
// zerolog logger shared by the dispatcher and the InfluxDB sink.
func initLogging(states logging.StateFunc) (zerolog.Logger, error) {
	SlogManager = logging.NewSlogManager()
	if config.GetBool("graylog.enabled") {
		if err := SlogManager.EnableGraylog(config.GetString("graylog.address")); err != nil {
			fmt.Fprintln(os.Stderr, "graylog disabled:", err)
		}
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return zerolog.Nop(), fmt.Errorf("creating logs directory: %w", err)
	}
	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	file, err := os.OpenFile(LogFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("opening log file: %w", err)
	}
	LogFile = file

	level := config.GetString("logLevel")
	opts := logging.Options{
		File:         LogFile,
		Level:        level,
		GraylogLevel: config.GetString("graylog.level"),
		States:       states,
	}
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			Writer:         LogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			opts.Provider = OTelProvider.LoggerProvider()
			SlogManager.Setup(opts)
			Logger = SlogManager.Logger()
			Logger.Info("OTel provider initialized", "service", otelCfg.ServiceName)
		}
	}

	zl := zerolog.New(LogFile).With().Timestamp().Str("app", AppName).Logger()
	if lvl, err := zerolog.ParseLevel(level); err == nil && lvl != zerolog.NoLevel {
		zl = zl.Level(lvl)
	}
	return zl, nil
}

// initCLILogging logs to the console for one-shot commands.
func initCLILogging() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: config.GetString("logLevel")})
	Logger = SlogManager.Logger()
}

// loadCalibration seeds the table from configuration and the stored training
// history.
func loadCalibration(backend storage.Backend, seed config.CalibrationConfig) *calibration.Table {
	table := calibration.NewTable(seed)
	stored, err := backend.TrainingSamples()
	if err != nil {
		Logger.Warn("Failed to load training history", "error", err)
		return table
	}
	samples := make([]calibration.Sample, 0, len(stored))
	for _, s := range stored {
		samples = append(samples, calibration.Sample{
			Technique: s.Technique,
			Distance:  s.Distance,
			Speed:     s.Speed,
			Offset:    s.CenterOffset,
		})
	}
	table.Load(samples)
	Logger.Info("Calibration loaded", "trainingSamples", len(samples))
	return table
}

func initTelemetry(ctx context.Context, zl zerolog.Logger) *influx.Manager {
	m := influx.NewManager(zl.With().Str("component", "influx").Logger(), config.GetInfluxConfig())
	if err := m.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			Logger.Warn("InfluxDB telemetry unavailable", "error", err)
		}
		return nil
	}
	return m
}

func publishAiEvent(gw *gateway.Gateway, event, sessionID string) {
	err := gw.Publish(messages.TopicAiEvent, messages.AiEvent{
		Event:     event,
		SessionID: sessionID,
		Time:      time.Now().UnixMilli(),
	})
	if err != nil {
		Logger.Warn("Failed to publish AI event", "event", event, "error", err)
	}
}

// run starts every service, runs the controller until SIGINT/SIGTERM and
// shuts down in reverse order.
func run() error {
	var ctrl *controller.Controller
	var ctrlMu sync.RWMutex
	states := func() (string, string) {
		ctrlMu.RLock()
		defer ctrlMu.RUnlock()
		if ctrl == nil {
			return "", ""
		}
		return ctrl.States()
	}

	zl, err := initLogging(states)
	if err != nil {
		return err
	}
	defer LogFile.Close()
	defer SlogManager.Close()

	sessionID := uuid.NewString()
	Logger.Info("Starting up", "version", CurrentVersion, "build", BuildDate, "session", sessionID, "logFile", LogFilePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tuning, err := config.GetTuning()
	if err != nil {
		return err
	}
	seed, err := config.GetCalibrationConfig()
	if err != nil {
		return err
	}

	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, config.GetDatabaseConfig(), Logger)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing %s storage: %w", storageCfg.Type, err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	robot := config.GetRobotConfig()
	session := &model.Session{
		ID:        sessionID,
		StartedAt: SessionStartTime,
		FieldID:   robot.FieldID,
		RobotID:   robot.RobotID,
	}
	if err := backend.StartSession(session); err != nil {
		Logger.Error("Failed to start storage session", "error", err)
	}

	table := loadCalibration(backend, seed)
	telemetry := initTelemetry(ctx, zl)

	gw, err := gateway.New(config.GetGatewayConfig(), Logger.With("component", "gateway"))
	if err != nil {
		return err
	}
	defer gw.Close()

	d, err := dispatcher.New(logging.NewDispatcherLogger(zl.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	deps := worker.Dependencies{Backend: backend, Logger: Logger}
	if telemetry != nil {
		deps.Telemetry = telemetry
	}
	manager := worker.NewManager(deps)

	c, err := controller.New(controller.Dependencies{
		Tuning:      tuning,
		Robot:       robot,
		Kinematics:  kinematics.NewOmni(config.GetKinematicsConfig()),
		Calibration: table,
		Publisher:   gw,
		Recorder:    manager,
		Logger:      Logger.With("component", "controller"),
		SessionID:   sessionID,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	ctrlMu.Lock()
	ctrl = c
	ctrlMu.Unlock()

	manager.RegisterHandlers(d, c)
	Logger.Info("Handlers registered", "topics", d.Topics())

	statusFile := config.GetString("statusFile")
	if err := os.MkdirAll(filepath.Dir(statusFile), 0755); err != nil {
		Logger.Warn("Failed to create status directory", "error", err)
	}
	mon := monitor.NewService(monitor.Dependencies{
		Snapshot:   c.Snapshot,
		Stats:      manager.Stats,
		Logger:     Logger.With("component", "monitor"),
		StatusFile: statusFile,
		StartedAt:  SessionStartTime,
	})
	if err := mon.Start(); err != nil {
		Logger.Warn("Status monitor not started", "error", err)
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- gw.Listen(ctx, func(e dispatcher.Event) {
			_, err := d.Dispatch(e)
			switch {
			case err == nil:
			case errors.Is(err, dispatcher.ErrNoHandler):
				Logger.Debug("Event not handled", "topic", e.Topic)
			default:
				Logger.Warn("Event rejected", "topic", e.Topic, "error", err)
			}
		})
	}()
	Logger.Info("Gateway listening", "addr", gw.Addr().String())

	publishAiEvent(gw, messages.EventAiStarted, sessionID)

	runErr := c.Run(ctx)
	stop()

	publishAiEvent(gw, messages.EventAiClosed, sessionID)
	if err := <-listenErr; err != nil {
		Logger.Error("Gateway stopped", "error", err)
	}

	d.Close()
	mon.Stop()
	shutdown(backend, session, telemetry, manager.Stats())

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	Logger.Info("Shut down cleanly", "session", sessionID)
	return nil
}

// uploadExport sends the session export to the collector when uploads are on.
func uploadExport(path string, meta api.UploadMetadata) {
	cfg := config.GetUploadConfig()
	if !cfg.Enabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("Collector unreachable, export kept locally", "file", path, "error", err)
		return
	}
	if err := client.Upload(ctx, path, meta); err != nil {
		Logger.Error("Failed to upload session export", "file", path, "error", err)
		return
	}
	Logger.Info("Session export uploaded", "file", path, "server", cfg.ServerURL)
}

func shutdown(backend storage.Backend, session *model.Session, telemetry *influx.Manager, stats worker.Stats) {
	closedAt := time.Now()
	session.ClosedAt = &closedAt
	if err := backend.EndSession(session); err != nil {
		Logger.Error("Failed to end storage session", "error", err)
	}
	if exp, ok := backend.(storage.Exportable); ok && exp.ExportedFilePath() != "" {
		Logger.Info("Session exported", "file", exp.ExportedFilePath())
		uploadExport(exp.ExportedFilePath(), api.UploadMetadata{
			SessionID: session.ID,
			FieldID:   session.FieldID,
			RobotID:   session.RobotID,
			Duration:  closedAt.Sub(session.StartedAt),
			Throws:    int(stats.ThrowsStored),
		})
	}
	if err := backend.Close(); err != nil {
		Logger.Error("Failed to close storage backend", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB telemetry", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if OTelProvider != nil {
		if err := OTelProvider.Flush(ctx); err != nil {
			Logger.Warn("Failed to flush OTel data", "error", err)
		}
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush logs", "error", err)
	}
}
