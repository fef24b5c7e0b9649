// Package influx writes controller telemetry to InfluxDB. When the server
// cannot be reached, points are appended as line protocol to a gzip backup
// file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/model"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

const (
	BucketTelemetry = "robot_telemetry"
	BucketThrows    = "throws"
)

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{BucketTelemetry, BucketThrows}

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client      influxdb2.Client
	Writers     map[string]influxdb2_api.WriteAPI
	IsValid     bool
	BucketNames []string
	Logger      zerolog.Logger

	cfg        config.InfluxConfig
	mu         sync.Mutex
	backupFile *os.File
	backup     *gzip.Writer
	ticks      int
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 1
	}
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		cfg:         cfg,
	}
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.Logger.Warn().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB not reachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.createWriters()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup != nil {
		return nil
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", orgName, err)
		}
	}

	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (m *Manager) createWriters() {
	for _, bucket := range m.BucketNames {
		w := m.Client.WriteAPI(m.cfg.Org, bucket)
		m.Writers[bucket] = w

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// RecordTick writes one ai_tick point every TickEvery calls.
func (m *Manager) RecordTick(s model.Snapshot) {
	m.mu.Lock()
	m.ticks++
	due := m.ticks%m.cfg.TickEvery == 0
	m.mu.Unlock()
	if !due {
		return
	}
	if err := m.WritePoint(BucketTelemetry, TickPoint(s)); err != nil {
		m.Logger.Debug().Err(err).Msg("Dropping tick point")
	}
}

// RecordThrow writes one throw point.
func (m *Manager) RecordThrow(r model.ThrowRecord) {
	if err := m.WritePoint(BucketThrows, ThrowPoint(r)); err != nil {
		m.Logger.Warn().Err(err).Msg("Dropping throw point")
	}
}

// TickPoint converts a telemetry snapshot into an ai_tick point.
func TickPoint(s model.Snapshot) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("ai_tick")
	addTags(p, "session", s.SessionID, "robot", s.RobotID, "motion", s.MotionState, "thrower", s.ThrowerState)
	p.AddField("tick", int64(s.Tick)).
		AddField("drive_side", s.Drive.Side).
		AddField("drive_forward", s.Drive.Forward).
		AddField("drive_rotation", s.Drive.Rotation).
		AddField("lidar_distance", s.Mainboard.FilteredLidarDistance).
		AddField("ball_visible", s.Perception.ClosestBall != nil).
		AddField("basket_visible", s.Perception.Basket != nil).
		AddField("ball_top_arc_threshold", s.Thresholds.BallTopArc).
		SetTime(s.Time)
	for i, v := range s.Speeds {
		p.AddField(fmt.Sprintf("speed%d", i+1), v)
	}
	return p
}

// ThrowPoint converts a throw record into a throw point.
func ThrowPoint(r model.ThrowRecord) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("throw")
	addTags(p, "session", r.SessionID, "technique", r.Technique, "basket", r.BasketColour)
	return p.AddField("speed", r.Speed).
		AddField("distance", r.Distance).
		AddField("angle", r.Angle).
		AddField("center_offset", r.CenterOffset).
		SetTime(r.Time)
}

// addTags adds key/value pairs, skipping empty values which line protocol
// cannot represent.
func addTags(p *influxdb2_write.Point, kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			p.AddTag(kv[i], kv[i+1])
		}
	}
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup == nil {
		return nil
	}
	err := errors.Join(m.backup.Close(), m.backupFile.Close())
	m.backup = nil
	m.backupFile = nil
	return err
}
