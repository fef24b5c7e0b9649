package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "ballbot_ai.cfg.json"

// RobotConfig holds the identity and competition settings of this robot.
type RobotConfig struct {
	FieldID           string   `json:"fieldID" mapstructure:"fieldID"`
	RobotID           string   `json:"robotID" mapstructure:"robotID"`
	BasketColour      string   `json:"basketColour" mapstructure:"basketColour"`
	IsCompetition     bool     `json:"isCompetition" mapstructure:"isCompetition"`
	AllowedTechniques []string `json:"allowedTechniques" mapstructure:"allowedTechniques"`
}

// GatewayConfig holds the UDP messaging gateway settings.
type GatewayConfig struct {
	ListenAddr string   `json:"listenAddr" mapstructure:"listenAddr"`
	Peers      []string `json:"peers" mapstructure:"peers"`
	ReadBuffer int      `json:"readBuffer" mapstructure:"readBuffer"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings. An empty path keeps the DB in memory.
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// WebsocketConfig holds the streaming storage backend settings.
type WebsocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the throw/training storage backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// UploadConfig holds the collector that receives session exports.
type UploadConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds the InfluxDB telemetry sink settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
	// TickEvery writes one ai_tick point per this many ticks.
	TickEvery int `json:"tickEvery" mapstructure:"tickEvery"`
}

// KinematicsConfig describes the holonomic wheel layout.
type KinematicsConfig struct {
	WheelAngles         []float64 `json:"wheelAngles" mapstructure:"wheelAngles"`
	WheelCenterDistance float64   `json:"wheelCenterDistance" mapstructure:"wheelCenterDistance"`
	GearRatio           float64   `json:"gearRatio" mapstructure:"gearRatio"`
}

// TechniqueRange maps a throw technique to the lidar distances it is used for.
type TechniqueRange struct {
	Name        string  `json:"name" mapstructure:"name"`
	MinDistance float64 `json:"minDistance" mapstructure:"minDistance"`
	MaxDistance float64 `json:"maxDistance" mapstructure:"maxDistance"`
}

// CalibrationPoint seeds the calibration table before any training data exists.
type CalibrationPoint struct {
	Technique string  `json:"technique" mapstructure:"technique"`
	Distance  float64 `json:"distance" mapstructure:"distance"`
	Speed     float64 `json:"speed" mapstructure:"speed"`
	Offset    float64 `json:"offset" mapstructure:"offset"`
}

// CalibrationConfig holds the throw calibration seed data.
type CalibrationConfig struct {
	Techniques      []TechniqueRange   `json:"techniques" mapstructure:"techniques"`
	OffsetPerRadian float64            `json:"offsetPerRadian" mapstructure:"offsetPerRadian"`
	Points          []CalibrationPoint `json:"points" mapstructure:"points"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	viper.SetEnvPrefix("BALLBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("statusFile", "./status.json")

	viper.SetDefault("robot.fieldID", "A")
	viper.SetDefault("robot.robotID", "A")
	viper.SetDefault("robot.basketColour", "magenta")
	viper.SetDefault("robot.isCompetition", false)
	viper.SetDefault("robot.allowedTechniques", []string{"straight", "bounce"})

	viper.SetDefault("gateway.listenAddr", "0.0.0.0:8091")
	viper.SetDefault("gateway.peers", []string{"127.0.0.1:8092"})
	viper.SetDefault("gateway.readBuffer", 65535)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./throws")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/ai")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "ballbot")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "ballbot")
	viper.SetDefault("influx.backupPath", "./influx_backup.lp.gz")
	viper.SetDefault("influx.tickEvery", 30)

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.serverUrl", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
	viper.SetDefault("graylog.level", "warn")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "ballbot-ai")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "10s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("kinematics.wheelAngles", []float64{45, 135, 225, 315})
	viper.SetDefault("kinematics.wheelCenterDistance", 0.14)
	viper.SetDefault("kinematics.gearRatio", 90.0)

	viper.SetDefault("calibration.offsetPerRadian", 0.0)

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetRobotConfig returns robot identity and competition settings.
func GetRobotConfig() RobotConfig {
	return RobotConfig{
		FieldID:           viper.GetString("robot.fieldID"),
		RobotID:           viper.GetString("robot.robotID"),
		BasketColour:      viper.GetString("robot.basketColour"),
		IsCompetition:     viper.GetBool("robot.isCompetition"),
		AllowedTechniques: viper.GetStringSlice("robot.allowedTechniques"),
	}
}

// GetGatewayConfig returns the messaging gateway settings.
func GetGatewayConfig() GatewayConfig {
	return GatewayConfig{
		ListenAddr: viper.GetString("gateway.listenAddr"),
		Peers:      viper.GetStringSlice("gateway.peers"),
		ReadBuffer: viper.GetInt("gateway.readBuffer"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDatabaseConfig returns the Postgres connection settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetUploadConfig returns the session export upload settings.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled:   viper.GetBool("upload.enabled"),
		ServerURL: viper.GetString("upload.serverUrl"),
		APIKey:    viper.GetString("upload.apiKey"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Protocol:   viper.GetString("influx.protocol"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		BackupPath: viper.GetString("influx.backupPath"),
		TickEvery:  viper.GetInt("influx.tickEvery"),
	}
}

// GetKinematicsConfig returns the wheel layout.
func GetKinematicsConfig() KinematicsConfig {
	var angles []float64
	if err := viper.UnmarshalKey("kinematics.wheelAngles", &angles); err != nil || len(angles) != 4 {
		angles = []float64{45, 135, 225, 315}
	}
	return KinematicsConfig{
		WheelAngles:         angles,
		WheelCenterDistance: viper.GetFloat64("kinematics.wheelCenterDistance"),
		GearRatio:           viper.GetFloat64("kinematics.gearRatio"),
	}
}

// GetCalibrationConfig returns the calibration seed, falling back to
// DefaultCalibration for anything the config file leaves out. A section that
// fails to decode yields the full default seed and the decode error.
func GetCalibrationConfig() (CalibrationConfig, error) {
	cfg := DefaultCalibration()
	if err := viper.UnmarshalKey("calibration", &cfg); err != nil {
		return DefaultCalibration(), fmt.Errorf("decoding calibration: %w", err)
	}
	return cfg, nil
}

// GetTuning returns the controller tuning constants. Keys present under
// "tuning" override the corresponding DefaultTuning fields. A section that
// fails to decode yields DefaultTuning and the decode error.
func GetTuning() (Tuning, error) {
	t := DefaultTuning()
	if err := viper.UnmarshalKey("tuning", &t); err != nil {
		return DefaultTuning(), fmt.Errorf("decoding tuning: %w", err)
	}
	return t, nil
}

// DefaultCalibration returns the built-in throw calibration seed.
func DefaultCalibration() CalibrationConfig {
	return CalibrationConfig{
		Techniques: []TechniqueRange{
			{Name: "bounce", MinDistance: 0, MaxDistance: 1200},
			{Name: "straight", MinDistance: 1200, MaxDistance: 6000},
		},
		OffsetPerRadian: 0,
		Points: []CalibrationPoint{
			{Technique: "bounce", Distance: 400, Speed: 520, Offset: 0},
			{Technique: "bounce", Distance: 1200, Speed: 760, Offset: 4},
			{Technique: "straight", Distance: 1200, Speed: 900, Offset: 6},
			{Technique: "straight", Distance: 3000, Speed: 1350, Offset: 10},
			{Technique: "straight", Distance: 6000, Speed: 2100, Offset: 14},
		},
	}
}
