// Package config loads gophaser settings from a YAML file, GOPHASER_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/fmcw"
	"github.com/rjboer/gophaser/internal/logging"
	"github.com/rjboer/gophaser/internal/phaser"
	"github.com/rjboer/gophaser/internal/sdr"
)

// EnvPrefix namespaces environment overrides: array.step_deg is read from
// GOPHASER_ARRAY_STEP_DEG.
const EnvPrefix = "GOPHASER"

// BackendConfig selects and tunes the receiver.
type BackendConfig struct {
	Name       string  `mapstructure:"name"`
	URI        string  `mapstructure:"uri"`
	SampleRate float64 `mapstructure:"sample_rate"`
	ToneOffset float64 `mapstructure:"tone_offset"`
	NumSamples int     `mapstructure:"num_samples"`
	// Mock-only source geometry and impairments.
	SourceAngleDeg float64 `mapstructure:"source_angle_deg"`
	NoiseSigma     float64 `mapstructure:"noise_sigma"`
	Seed           int64   `mapstructure:"seed"`

	Retries      uint64        `mapstructure:"retries"`
	RetryInitial time.Duration `mapstructure:"retry_initial"`
	RetryMax     time.Duration `mapstructure:"retry_max"`
}

// ProcessorConfig picks the range/Doppler windows by name.
type ProcessorConfig struct {
	RangeWindow   string `mapstructure:"range_window"`
	DopplerWindow string `mapstructure:"doppler_window"`
}

// SessionConfig controls the continuous sweep loop.
type SessionConfig struct {
	WarmupBuffers int           `mapstructure:"warmup_buffers"`
	Interval      time.Duration `mapstructure:"interval"`
}

// CalibrationConfig extends the measurement settings with the store path.
type CalibrationConfig struct {
	phaser.CalibrationConfig `mapstructure:",squash"`
	Path                     string `mapstructure:"path"`
}

// TelemetryConfig configures the HTTP server and its mDNS advertisement.
type TelemetryConfig struct {
	Addr         string `mapstructure:"addr"`
	HistoryLimit int    `mapstructure:"history_limit"`
	MDNS         bool   `mapstructure:"mdns"`
	Instance     string `mapstructure:"instance"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the complete runtime configuration.
type Config struct {
	Backend     BackendConfig           `mapstructure:"backend"`
	Radar       fmcw.RadarConfig        `mapstructure:"radar"`
	Processor   ProcessorConfig         `mapstructure:"processor"`
	Array       phaser.ArraySweepConfig `mapstructure:"array"`
	Session     SessionConfig           `mapstructure:"session"`
	Calibration CalibrationConfig       `mapstructure:"calibration"`
	Telemetry   TelemetryConfig         `mapstructure:"telemetry"`
	Logging     LoggingConfig           `mapstructure:"logging"`
}

// New returns a viper instance with defaults and environment overrides
// registered.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key so that environment overrides and Save
// see the full key set.
func SetDefaults(v *viper.Viper) {
	mock := sdr.DefaultMockConfig()
	retry := sdr.DefaultRetryPolicy()
	v.SetDefault("backend.name", "mock")
	v.SetDefault("backend.uri", "")
	v.SetDefault("backend.sample_rate", mock.SampleRate)
	v.SetDefault("backend.tone_offset", mock.ToneOffset)
	v.SetDefault("backend.num_samples", mock.NumSamples)
	v.SetDefault("backend.source_angle_deg", 0.0)
	v.SetDefault("backend.noise_sigma", 0.0)
	v.SetDefault("backend.seed", mock.Seed)
	v.SetDefault("backend.retries", retry.MaxRetries)
	v.SetDefault("backend.retry_initial", retry.InitialInterval)
	v.SetDefault("backend.retry_max", retry.MaxInterval)

	radar := fmcw.DefaultRadarConfig()
	v.SetDefault("radar.carrier_hz", radar.CarrierHz)
	v.SetDefault("radar.bandwidth_hz", radar.BandwidthHz)
	v.SetDefault("radar.chirp_duration", radar.ChirpDuration)
	v.SetDefault("radar.idle_time", radar.IdleTime)
	v.SetDefault("radar.samples_per_chirp", radar.SamplesPerChirp)
	v.SetDefault("radar.chirps_per_frame", radar.ChirpsPerFrame)
	v.SetDefault("radar.max_range", radar.MaxRange)
	v.SetDefault("radar.speed_of_light", radar.SpeedOfLight)

	v.SetDefault("processor.range_window", dsp.Blackman.String())
	v.SetDefault("processor.doppler_window", dsp.Blackman.String())

	sweep := phaser.DefaultSweepConfig()
	v.SetDefault("array.start_deg", sweep.StartDeg)
	v.SetDefault("array.stop_deg", sweep.StopDeg)
	v.SetDefault("array.step_deg", sweep.StepDeg)
	v.SetDefault("array.signal_freq_hz", sweep.SignalFreqHz)
	v.SetDefault("array.element_spacing_m", sweep.ElementSpacingM)
	v.SetDefault("array.speed_of_light", sweep.SpeedOfLight)
	v.SetDefault("array.gain_code", sweep.GainCode)
	v.SetDefault("array.taper", []int{})
	v.SetDefault("array.use_spectral_peak", false)

	v.SetDefault("session.warmup_buffers", 3)
	v.SetDefault("session.interval", 500*time.Millisecond)

	cal := phaser.DefaultCalibrationConfig()
	v.SetDefault("calibration.reference_gain_code", cal.ReferenceGainCode)
	v.SetDefault("calibration.reference_phase_deg", cal.ReferencePhaseDeg)
	v.SetDefault("calibration.phase_step_deg", cal.PhaseStepDeg)
	v.SetDefault("calibration.gain_reference", int(cal.GainReference))
	v.SetDefault("calibration.phase_polarity", int(cal.PhasePolarity))
	v.SetDefault("calibration.averages", cal.Averages)
	v.SetDefault("calibration.verbose", false)
	v.SetDefault("calibration.path", "calibration.yaml")

	v.SetDefault("telemetry.addr", ":8080")
	v.SetDefault("telemetry.history_limit", 500)
	v.SetDefault("telemetry.mdns", false)
	v.SetDefault("telemetry.instance", "gophaser")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads path (or gophaser.yaml from . and /etc/gophaser when path is
// empty) into v and decodes the result. A missing default file is not an
// error; a missing explicit file is.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gophaser")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gophaser")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Configuration("decode config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the effective settings to path so that a later run starts from
// the same values.
func Save(v *viper.Viper, path string) error {
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate cross-checks the sections that downstream constructors do not.
func (c Config) Validate() error {
	if _, err := sdr.Select(c.Backend.Name); err != nil {
		return err
	}
	if c.Backend.NumSamples <= 0 || c.Backend.SampleRate <= 0 {
		return errs.Configuration("backend needs positive sample count and rate, got %d and %g", c.Backend.NumSamples, c.Backend.SampleRate)
	}
	if c.Backend.NoiseSigma < 0 {
		return errs.Configuration("noise sigma %g must be non-negative", c.Backend.NoiseSigma)
	}
	if _, err := c.ProcessorOptions(); err != nil {
		return err
	}
	if err := c.Array.Validate(); err != nil {
		return err
	}
	if c.Session.WarmupBuffers < 0 {
		return errs.Configuration("warmup buffers %d must be non-negative", c.Session.WarmupBuffers)
	}
	if c.Session.Interval < 0 {
		return errs.Configuration("session interval %s must be non-negative", c.Session.Interval)
	}
	if c.Telemetry.HistoryLimit < 0 {
		return errs.Configuration("history limit %d must be non-negative", c.Telemetry.HistoryLimit)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errs.Configuration("logging: %v", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return errs.Configuration("logging: %v", err)
	}
	return nil
}

// ProcessorOptions resolves the window names.
func (c Config) ProcessorOptions() (fmcw.ProcessorOptions, error) {
	opts := fmcw.DefaultProcessorOptions()
	var err error
	if opts.RangeWindow, err = dsp.ParseWindow(c.Processor.RangeWindow); err != nil {
		return opts, errs.Configuration("range window: %v", err)
	}
	if opts.DopplerWindow, err = dsp.ParseWindow(c.Processor.DopplerWindow); err != nil {
		return opts, errs.Configuration("doppler window: %v", err)
	}
	return opts, nil
}

// SDRConfig returns the backend initialisation parameters.
func (c Config) SDRConfig() sdr.Config {
	return sdr.Config{
		SampleRate:      c.Backend.SampleRate,
		SignalFreqHz:    c.Array.SignalFreqHz,
		ToneOffset:      c.Backend.ToneOffset,
		NumSamples:      c.Backend.NumSamples,
		ElementSpacingM: c.Array.ElementSpacingM,
		URI:             c.Backend.URI,
	}
}

// MockConfig returns the simulated array matching the configured geometry.
func (c Config) MockConfig() sdr.MockConfig {
	m := sdr.DefaultMockConfig()
	m.SourceAngleDeg = c.Backend.SourceAngleDeg
	m.SignalFreqHz = c.Array.SignalFreqHz
	m.ElementSpacingM = c.Array.ElementSpacingM
	if c.Array.SpeedOfLight > 0 {
		m.SpeedOfLight = c.Array.SpeedOfLight
	}
	m.SampleRate = c.Backend.SampleRate
	m.ToneOffset = c.Backend.ToneOffset
	m.NumSamples = c.Backend.NumSamples
	m.NoiseSigma = c.Backend.NoiseSigma
	m.Seed = c.Backend.Seed
	return m
}

// RetryPolicy returns the acquisition retry settings.
func (c Config) RetryPolicy() sdr.RetryPolicy {
	return sdr.RetryPolicy{
		MaxRetries:      c.Backend.Retries,
		InitialInterval: c.Backend.RetryInitial,
		MaxInterval:     c.Backend.RetryMax,
	}
}

// Logger builds the logger described by the logging section, writing to out.
func (c Config) Logger(out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, out), nil
}
