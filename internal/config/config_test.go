package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/phaser"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Backend.Name)
	assert.Equal(t, 1024, cfg.Backend.NumSamples)
	assert.Equal(t, uint64(3), cfg.Backend.Retries)
	assert.Equal(t, 10*time.Millisecond, cfg.Backend.RetryInitial)
	assert.Equal(t, 1024, cfg.Radar.SamplesPerChirp)
	assert.Equal(t, 128, cfg.Radar.ChirpsPerFrame)
	assert.Equal(t, phaser.DefaultSweepConfig().StepDeg, cfg.Array.StepDeg)
	assert.Equal(t, phaser.ReferenceWeakest, cfg.Calibration.GainReference)
	assert.Equal(t, phaser.PolarityNull, cfg.Calibration.PhasePolarity)
	assert.Equal(t, "calibration.yaml", cfg.Calibration.Path)
	assert.Equal(t, 3, cfg.Session.WarmupBuffers)
	assert.Equal(t, ":8080", cfg.Telemetry.Addr)

	opts, err := cfg.ProcessorOptions()
	require.NoError(t, err)
	assert.Equal(t, dsp.Blackman, opts.RangeWindow)
	assert.Equal(t, dsp.Blackman, opts.DopplerWindow)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gophaser.yaml")
	content := `
backend:
  num_samples: 2048
  source_angle_deg: 20
array:
  step_deg: 1
  use_spectral_peak: true
processor:
  range_window: hann
session:
  interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("GOPHASER_ARRAY_GAIN_CODE", "100")
	t.Setenv("GOPHASER_LOGGING_LEVEL", "debug")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Backend.NumSamples)
	assert.Equal(t, 20.0, cfg.Backend.SourceAngleDeg)
	assert.Equal(t, 1.0, cfg.Array.StepDeg)
	assert.True(t, cfg.Array.UseSpectralPeak)
	assert.Equal(t, 100, cfg.Array.GainCode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.Session.Interval)

	opts, err := cfg.ProcessorOptions()
	require.NoError(t, err)
	assert.Equal(t, dsp.Hann, opts.RangeWindow)

	mock := cfg.MockConfig()
	assert.Equal(t, 20.0, mock.SourceAngleDeg)
	assert.Equal(t, 2048, mock.NumSamples)
	assert.Equal(t, 2048, cfg.SDRConfig().NumSamples)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "backend", key: "GOPHASER_BACKEND_NAME", val: "pluto"},
		{name: "window", key: "GOPHASER_PROCESSOR_DOPPLER_WINDOW", val: "kaiser"},
		{name: "sweep", key: "GOPHASER_ARRAY_STEP_DEG", val: "0"},
		{name: "log level", key: "GOPHASER_LOGGING_LEVEL", val: "loud"},
		{name: "samples", key: "GOPHASER_BACKEND_NUM_SAMPLES", val: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)
			_, err := Load(New(), "")
			assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	v := New()
	v.Set("array.step_deg", 4.0)
	v.Set("telemetry.addr", ":9090")
	path := filepath.Join(dir, "saved.yaml")
	require.NoError(t, Save(v, path))
	// Saving twice overwrites.
	require.NoError(t, Save(v, path))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.Array.StepDeg)
	assert.Equal(t, ":9090", cfg.Telemetry.Addr)
	assert.Equal(t, 1024, cfg.Backend.NumSamples)
}

func TestLogger(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	logger, err := cfg.Logger(io.Discard)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
