package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/fmcw"
	"github.com/rjboer/gophaser/internal/phaser"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestSimulateCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "simulate", "--range", "100", "--velocity", "20", "--out", "result.json", "--plot", "range.png")
	require.NoError(t, err)
	assert.Contains(t, out, "FMCW detection")

	data, err := os.ReadFile("result.json")
	require.NoError(t, err)
	var res fmcw.Result
	require.NoError(t, json.Unmarshal(data, &res))
	params, err := fmcw.NewRadarParameters(fmcw.DefaultRadarConfig())
	require.NoError(t, err)
	assert.InDelta(t, 100, res.DetectedRange, params.RangeResolution())
	assert.InDelta(t, 20, res.DetectedVelocity, params.VelocityResolution())

	info, err := os.Stat("range.png")
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSimulateRejectsNegativeNoise(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "simulate", "--noise", "-1")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestCalibrateThenSweep(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "calibrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Calibration")
	assert.Contains(t, out, "calibration.yaml")
	_, err = os.Stat("calibration.yaml")
	require.NoError(t, err)

	out, err = execute(t, "sweep", "--source-angle", "20", "--json", "--plot", "beam.svg")
	require.NoError(t, err)
	var resp phaser.AngleResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	peak, ok := resp.Peak()
	require.True(t, ok)
	assert.InDelta(t, 20, peak.AngleDeg, 1.5)
	_, err = os.Stat("beam.svg")
	require.NoError(t, err)
}

func TestSweepRendersSummary(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "sweep", "--step", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "angle of arrival")
	assert.Contains(t, out, "points")
}

func TestCalibrateRejectsUnknownPolarity(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "calibrate", "--polarity", "sideways")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = os.Stat("calibration.yaml")
	assert.True(t, os.IsNotExist(err))
}

func TestUnknownBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "--backend", "pluto", "sweep")
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestConfigSaveAndShow(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "--log-level", "debug", "config", "save", "saved.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "saved.yaml")
	data, err := os.ReadFile("saved.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "step_deg")

	out, err = execute(t, "--config", "saved.yaml", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "array:")
	assert.Contains(t, out, "level: debug")

	_, err = execute(t, "config", "save")
	assert.Error(t, err)
}

func TestServeStopsAfterDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "serve", "--addr", "127.0.0.1:0", "--duration", "300ms")
	assert.NoError(t, err)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "█▁▅▁", sparkline([]float64{0, -40, -20, -100}, -40))
}

func TestSweepSpectralFlagDescribesDefault(t *testing.T) {
	root := newRootCmd()
	sweep, _, err := root.Find([]string{"sweep"})
	require.NoError(t, err)
	flag := sweep.Flags().Lookup("spectral")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "total energy")
	assert.Equal(t, "false", flag.DefValue)
}
