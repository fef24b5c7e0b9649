package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"robot": { "fieldID": "B", "robotID": "C" },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "B", viper.GetString("robot.fieldID"))
	assert.Equal(t, "C", viper.GetString("robot.robotID"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "./status.json", viper.GetString("statusFile"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "ballbot", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, 30, viper.GetInt("influx.tickEvery"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	var notFound viper.ConfigFileNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("BALLBOT_ROBOT_ROBOTID", "Z")

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "Z", GetRobotConfig().RobotID)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetRobotConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetRobotConfig()
	assert.Equal(t, "A", cfg.FieldID)
	assert.Equal(t, "A", cfg.RobotID)
	assert.Equal(t, "magenta", cfg.BasketColour)
	assert.False(t, cfg.IsCompetition)
	assert.Equal(t, []string{"straight", "bounce"}, cfg.AllowedTechniques)
}

func TestGetGatewayConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"gateway": { "listenAddr": "127.0.0.1:9000", "peers": ["10.0.0.2:9001", "10.0.0.3:9001"] }
	}`)))

	cfg := GetGatewayConfig()
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, []string{"10.0.0.2:9001", "10.0.0.3:9001"}, cfg.Peers)
	assert.Equal(t, 65535, cfg.ReadBuffer)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./throws", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, "", cfg.SQLite.Path)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "path": "/tmp/throws.db" },
			"websocket": { "url": "ws://collector:5000/ai", "secret": "s3cret" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, "/tmp/throws.db", sc.SQLite.Path)
	assert.Equal(t, "ws://collector:5000/ai", sc.Websocket.URL)
	assert.Equal(t, "s3cret", sc.Websocket.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "ballbot-ai", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, 10*time.Second, cfg.MetricInterval)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "robot-b",
			"batchTimeout": "10s",
			"metricInterval": "1m",
			"endpoint": "localhost:4318",
			"insecure": false
		}
	}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, true, cfg.Enabled)
	assert.Equal(t, "robot-b", cfg.ServiceName)
	assert.Equal(t, 10*time.Second, cfg.BatchTimeout)
	assert.Equal(t, time.Minute, cfg.MetricInterval)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, false, cfg.Insecure)
}

func TestGetKinematicsConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetKinematicsConfig()
	assert.Equal(t, []float64{45, 135, 225, 315}, cfg.WheelAngles)
	assert.InDelta(t, 0.14, cfg.WheelCenterDistance, 1e-9)
	assert.InDelta(t, 90.0, cfg.GearRatio, 1e-9)
}

func TestGetCalibrationConfig_DefaultSeed(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg, err := GetCalibrationConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Techniques, 2)
	assert.Equal(t, "bounce", cfg.Techniques[0].Name)
	assert.NotEmpty(t, cfg.Points)
}

func TestGetTuning_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	tuning, err := GetTuning()
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), tuning)
}

func TestGetTuning_PartialOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"tuning": {
			"perception": { "ballMissLimit": 15 },
			"driveToBall": { "timeout": "7s", "maxForward": 2.2 },
			"nudge": { "rotation": -2.0 }
		}
	}`)))

	tuning, err := GetTuning()
	require.NoError(t, err)
	def := DefaultTuning()

	assert.Equal(t, 15, tuning.Perception.BallMissLimit)
	assert.Equal(t, 7*time.Second, tuning.DriveToBall.Timeout)
	assert.InDelta(t, 2.2, tuning.DriveToBall.MaxForward, 1e-9)
	assert.InDelta(t, -2.0, tuning.Nudge.Rotation, 1e-9)

	// untouched fields keep defaults
	assert.Equal(t, def.Perception.BallTopArcThreshold, tuning.Perception.BallTopArcThreshold)
	assert.Equal(t, def.DriveToBall.MinForward, tuning.DriveToBall.MinForward)
	assert.Equal(t, def.Nudge.Duration, tuning.Nudge.Duration)
	assert.Equal(t, def.FindBall.Scan, tuning.FindBall.Scan)
}

func TestGetTuning_MalformedOverrideReturnsDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"tuning": {
			"nudge": { "rotation": -2.0 },
			"grabBall": { "timeout": "soon" }
		}
	}`)))

	tuning, err := GetTuning()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding tuning")
	assert.Equal(t, DefaultTuning(), tuning)
}

func TestGetCalibrationConfig_MalformedSectionReturnsDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"calibration": { "techniques": "straight" }
	}`)))

	cfg, err := GetCalibrationConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding calibration")
	assert.Equal(t, DefaultCalibration(), cfg)
}

func TestFrameCenterX(t *testing.T) {
	assert.Equal(t, 640.0, DefaultTuning().Frame.CenterX())
}

func TestGetDatabaseConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"db": {"host": "db.local", "username": "robot"}}`)))

	cfg := GetDatabaseConfig()
	assert.Equal(t, "db.local", cfg.Host)
	assert.Equal(t, "5432", cfg.Port)
	assert.Equal(t, "robot", cfg.Username)
	assert.Equal(t, "postgres", cfg.Password)
	assert.Equal(t, "ballbot", cfg.Database)
}

func TestGetUploadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"upload": {"enabled": true, "apiKey": "k"}}`)))

	assert.Equal(t, UploadConfig{
		Enabled:   true,
		ServerURL: "http://localhost:5000",
		APIKey:    "k",
	}, GetUploadConfig())
}
