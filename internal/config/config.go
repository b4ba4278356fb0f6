package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/mission-trajectory-sim/core"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/logging"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/observability"
	"github.com/signalsfoundry/mission-trajectory-sim/internal/recorder"
)

// EnvPrefix prefixes every environment override, e.g.
// MISSION_PLAYBACK_RATE=60.
const EnvPrefix = "MISSION"

// Config is the full runtime configuration of the engine and its sinks.
type Config struct {
	Mission   MissionConfig   `mapstructure:"mission"`
	Ephemeris EphemerisConfig `mapstructure:"ephemeris"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	Stream    StreamConfig    `mapstructure:"stream"`
}

// MissionConfig holds the authored mission parameters.
type MissionConfig struct {
	Epoch             string         `mapstructure:"epoch"`
	Durations         DurationConfig `mapstructure:"durations"`
	ContinuityEpsilon float64        `mapstructure:"continuityEpsilon"`
	OrbitInclination  float64        `mapstructure:"orbitInclination"`
	SeparationAlt     float64        `mapstructure:"separationAlt"`
	References        bool           `mapstructure:"references"`
	ReferenceWindow   float64        `mapstructure:"referenceWindow"`
	ReferenceStep     float64        `mapstructure:"referenceStep"`
}

// DurationConfig holds phase lengths in seconds.
type DurationConfig struct {
	CarrierFlight    float64 `mapstructure:"carrierFlight"`
	Boost            float64 `mapstructure:"boost"`
	UpperStageAscent float64 `mapstructure:"upperStageAscent"`
	Deployment       float64 `mapstructure:"deployment"`
	Orbit            float64 `mapstructure:"orbit"`
	Deorbit          float64 `mapstructure:"deorbit"`
}

// EphemerisConfig names the two reports. Each is a file path or an http(s)
// URL; an empty primary disables ephemeris loading.
type EphemerisConfig struct {
	Primary   string        `mapstructure:"primary"`
	Dependent string        `mapstructure:"dependent"`
	Tolerance float64       `mapstructure:"tolerance"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CameraConfig tunes the automatic camera.
type CameraConfig struct {
	DeploymentMargin float64 `mapstructure:"deploymentMargin"`
}

// PlaybackConfig drives the mission clock.
type PlaybackConfig struct {
	Mode         string        `mapstructure:"mode"` // realtime | accelerated
	Rate         float64       `mapstructure:"rate"`
	Tick         time.Duration `mapstructure:"tick"`
	Loop         string        `mapstructure:"loop"` // none | repeat | stop
	Start        float64       `mapstructure:"start"`
	Stop         float64       `mapstructure:"stop"`
	ExitOnFinish bool          `mapstructure:"exitOnFinish"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	GraylogAddr string `mapstructure:"graylogAddr"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"serviceName"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	Path        string  `mapstructure:"path"` // span file for the file exporter
	SampleRatio float64 `mapstructure:"sampleRatio"`
}

// RecorderConfig selects the relational frame recorder.
type RecorderConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Driver  string  `mapstructure:"driver"` // sqlite | postgres
	DSN     string  `mapstructure:"dsn"`
	Every   float64 `mapstructure:"every"` // mission seconds between recorded frames
}

// InfluxConfig selects the time-series frame sink.
type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
	Backup  string `mapstructure:"backup"` // gzipped line protocol when the server is down
}

// StreamConfig configures the scene stream server.
type StreamConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metricsAddr"`
	Buffer      int    `mapstructure:"buffer"`
}

// New returns a viper instance with every default set and environment
// overrides enabled.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)
	return v
}

// envAliases are snake_case spellings of camelCase keys, which AutomaticEnv
// alone would only read as e.g. MISSION_TRACING_SAMPLERATIO.
var envAliases = map[string][]string{
	"tracing.serviceName": {"MISSION_TRACING_SERVICE_NAME"},
	"tracing.sampleRatio": {"MISSION_TRACING_SAMPLE_RATIO"},
	"tracing.endpoint":    {"MISSION_TRACING_ENDPOINT", "MISSION_OTLP_ENDPOINT"},
}

func bindEnvAliases(v *viper.Viper) {
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

func setDefaults(v *viper.Viper) {
	def := core.DefaultMissionConfig()

	v.SetDefault("mission.epoch", def.Epoch.Format(time.RFC3339))
	v.SetDefault("mission.durations.carrierFlight", def.Durations.CarrierFlight)
	v.SetDefault("mission.durations.boost", def.Durations.Boost)
	v.SetDefault("mission.durations.upperStageAscent", def.Durations.UpperStageAscent)
	v.SetDefault("mission.durations.deployment", def.Durations.Deployment)
	v.SetDefault("mission.durations.orbit", def.Durations.Orbit)
	v.SetDefault("mission.durations.deorbit", def.Durations.Deorbit)
	v.SetDefault("mission.continuityEpsilon", def.ContinuityEpsilon)
	v.SetDefault("mission.orbitInclination", def.OrbitInclinationDeg)
	v.SetDefault("mission.separationAlt", def.SeparationAlt)
	v.SetDefault("mission.references", true)
	v.SetDefault("mission.referenceWindow", def.ReferenceWindow)
	v.SetDefault("mission.referenceStep", def.ReferenceStep)

	v.SetDefault("ephemeris.primary", "")
	v.SetDefault("ephemeris.dependent", "")
	v.SetDefault("ephemeris.tolerance", core.DefaultMergeTolerance)
	v.SetDefault("ephemeris.timeout", "30s")

	v.SetDefault("camera.deploymentMargin", core.DefaultDeploymentMargin)

	v.SetDefault("playback.mode", "realtime")
	v.SetDefault("playback.rate", 1.0)
	v.SetDefault("playback.tick", "100ms")
	v.SetDefault("playback.loop", "none")
	v.SetDefault("playback.start", 0.0)
	v.SetDefault("playback.stop", 0.0) // 0 means the end of the last phase
	v.SetDefault("playback.exitOnFinish", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.graylogAddr", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "mission-sim")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.path", "")
	v.SetDefault("tracing.sampleRatio", 1.0)

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.driver", "sqlite")
	v.SetDefault("recorder.dsn", "mission_frames.db")
	v.SetDefault("recorder.every", 10.0)

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "mission")
	v.SetDefault("influx.bucket", "frames")
	v.SetDefault("influx.backup", "")

	v.SetDefault("stream.addr", ":50061")
	v.SetDefault("stream.metricsAddr", ":9464")
	v.SetDefault("stream.buffer", 16)
}

// Load builds a Config from the defaults, the optional file at path
// (json, yaml or toml by extension) and MISSION_* environment variables,
// in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			v.SetConfigType(ext)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.Parse(time.RFC3339, c.Mission.Epoch); err != nil {
		errs = append(errs, fmt.Errorf("mission.epoch: %w", err))
	}
	if c.Ephemeris.Tolerance <= 0 {
		errs = append(errs, errors.New("ephemeris.tolerance must be positive"))
	}
	if c.Camera.DeploymentMargin < 0 {
		errs = append(errs, errors.New("camera.deploymentMargin must not be negative"))
	}
	switch strings.ToLower(c.Playback.Mode) {
	case "realtime", "accelerated":
	default:
		errs = append(errs, fmt.Errorf("playback.mode %q: want realtime or accelerated", c.Playback.Mode))
	}
	if c.Playback.Tick <= 0 {
		errs = append(errs, errors.New("playback.tick must be positive"))
	}
	if c.Tracing.Enabled {
		switch strings.ToLower(c.Tracing.Exporter) {
		case observability.ExporterStdout, observability.ExporterOTLP, "otlpgrpc":
		case observability.ExporterFile:
			if c.Tracing.Path == "" {
				errs = append(errs, errors.New("tracing.path is required for the file exporter"))
			}
		default:
			errs = append(errs, fmt.Errorf("tracing.exporter %q: want stdout, file or otlp", c.Tracing.Exporter))
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			errs = append(errs, fmt.Errorf("tracing.sampleRatio %g: want a value in [0, 1]", c.Tracing.SampleRatio))
		}
	}
	switch strings.ToLower(c.Recorder.Driver) {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("recorder.driver %q: want sqlite or postgres", c.Recorder.Driver))
	}
	return errors.Join(errs...)
}

// CoreMission converts the mission section into the authoring parameters,
// starting from the built-in profile for the geometry it does not expose.
func (c *Config) CoreMission() (core.MissionConfig, error) {
	mc := core.DefaultMissionConfig()
	epoch, err := time.Parse(time.RFC3339, c.Mission.Epoch)
	if err != nil {
		return core.MissionConfig{}, fmt.Errorf("mission.epoch: %w", err)
	}
	mc.Epoch = epoch.UTC()
	d := c.Mission.Durations
	mc.Durations = core.PhaseDurations{
		CarrierFlight:    d.CarrierFlight,
		Boost:            d.Boost,
		UpperStageAscent: d.UpperStageAscent,
		Deployment:       d.Deployment,
		Orbit:            d.Orbit,
		Deorbit:          d.Deorbit,
	}
	mc.ContinuityEpsilon = c.Mission.ContinuityEpsilon
	mc.OrbitInclinationDeg = c.Mission.OrbitInclination
	mc.SeparationAlt = c.Mission.SeparationAlt
	mc.ReferenceWindow = c.Mission.ReferenceWindow
	mc.ReferenceStep = c.Mission.ReferenceStep
	if !c.Mission.References {
		mc.ReferenceSatellites = nil
	}
	return mc, nil
}

// LoggerConfig returns the logging section as a logging.Config.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:       c.Logging.Level,
		Format:      c.Logging.Format,
		AddSource:   true,
		GraylogAddr: c.Logging.GraylogAddr,
	}
}

// TracerConfig returns the tracing section as an observability.TracingConfig.
// Spans carry the mission epoch and playback mode as resource attributes.
func (c *Config) TracerConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		Path:        c.Tracing.Path,
		SampleRatio: c.Tracing.SampleRatio,
		Attributes: map[string]string{
			"mission.epoch": c.Mission.Epoch,
			"playback.mode": strings.ToLower(c.Playback.Mode),
		},
	}
}

// RecorderConfig returns the recorder section as a recorder.Config.
func (c *Config) RecorderConfig() recorder.Config {
	return recorder.Config{
		Driver: strings.ToLower(c.Recorder.Driver),
		DSN:    c.Recorder.DSN,
		Every:  c.Recorder.Every,
	}
}

// InfluxSinkConfig returns the influx section as a recorder.InfluxConfig.
func (c *Config) InfluxSinkConfig() recorder.InfluxConfig {
	return recorder.InfluxConfig{
		URL:        c.Influx.URL,
		Token:      c.Influx.Token,
		Org:        c.Influx.Org,
		Bucket:     c.Influx.Bucket,
		BackupPath: c.Influx.Backup,
	}
}
