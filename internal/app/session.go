// Package app wires a receiver backend, the calibration store and telemetry
// into calibration, beam sweeps and FMCW simulations.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/gophaser/internal/calstore"
	"github.com/rjboer/gophaser/internal/fmcw"
	"github.com/rjboer/gophaser/internal/iq"
	"github.com/rjboer/gophaser/internal/logging"
	"github.com/rjboer/gophaser/internal/phaser"
	"github.com/rjboer/gophaser/internal/sdr"
	"github.com/rjboer/gophaser/internal/telemetry"
)

// Config captures application level configuration.
type Config struct {
	Backend     sdr.Config
	Sweep       phaser.ArraySweepConfig
	Calibration phaser.CalibrationConfig
	// OperatingGain is the gain code applied after calibration.
	OperatingGain int
	WarmupBuffers int
	// Interval is the pause between sweeps in Run.
	Interval time.Duration

	Radar fmcw.RadarConfig
	// Processor selects windows and profile cuts; nil uses
	// fmcw.DefaultProcessorOptions.
	Processor *fmcw.ProcessorOptions
	// NoiseSigma and Seed shape simulated FMCW frames.
	NoiseSigma float64
	Seed       int64
}

// Session owns the array state for one backend.
type Session struct {
	backend  sdr.Backend
	acq      phaser.Acquirer
	store    phaser.CalibrationStore
	reporter telemetry.Reporter
	logger   logging.Logger
	cfg      Config
	array    *phaser.Array

	mu  sync.Mutex
	cal phaser.CalibrationVector
}

// NewSession builds a session. acq defaults to the backend itself and store
// to an in-memory store.
func NewSession(backend sdr.Backend, acq phaser.Acquirer, store phaser.CalibrationStore, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	if acq == nil {
		acq = backend
	}
	if store == nil {
		store = &calstore.MemoryStore{}
	}
	if reporter == nil {
		reporter = telemetry.MultiReporter(nil)
	}
	return &Session{
		backend:  backend,
		acq:      acq,
		store:    store,
		reporter: reporter,
		logger:   logger.With(logging.Subsystem("app")),
		cfg:      cfg,
		array:    phaser.NewArray(backend),
		cal:      phaser.DefaultCalibration(),
	}
}

// Init applies defaults, initialises the backend and loads the stored
// calibration. A missing calibration is not an error.
func (s *Session) Init(ctx context.Context) error {
	if s.cfg.WarmupBuffers == 0 {
		s.cfg.WarmupBuffers = 3
	}
	def := phaser.DefaultSweepConfig()
	if s.cfg.Sweep.SignalFreqHz == 0 {
		s.cfg.Sweep.SignalFreqHz = def.SignalFreqHz
	}
	if s.cfg.Sweep.ElementSpacingM == 0 {
		s.cfg.Sweep.ElementSpacingM = def.ElementSpacingM
	}
	if s.cfg.Sweep.SpeedOfLight == 0 {
		s.cfg.Sweep.SpeedOfLight = def.SpeedOfLight
	}
	if s.cfg.Sweep.StartDeg == 0 && s.cfg.Sweep.StopDeg == 0 {
		s.cfg.Sweep.StartDeg, s.cfg.Sweep.StopDeg = def.StartDeg, def.StopDeg
	}
	if s.cfg.Sweep.StepDeg == 0 {
		s.cfg.Sweep.StepDeg = 2
	}
	if s.cfg.Sweep.GainCode == 0 {
		s.cfg.Sweep.GainCode = 64
	}
	if s.cfg.OperatingGain == 0 {
		s.cfg.OperatingGain = s.cfg.Sweep.GainCode
	}
	if s.cfg.Calibration == (phaser.CalibrationConfig{}) {
		s.cfg.Calibration = phaser.DefaultCalibrationConfig()
	}
	if s.cfg.Interval == 0 {
		s.cfg.Interval = 500 * time.Millisecond
	}
	if s.cfg.Radar == (fmcw.RadarConfig{}) {
		s.cfg.Radar = fmcw.DefaultRadarConfig()
	}
	if s.cfg.Processor == nil {
		opts := fmcw.DefaultProcessorOptions()
		s.cfg.Processor = &opts
	}
	if err := s.backend.Init(ctx, s.cfg.Backend); err != nil {
		return fmt.Errorf("init backend: %w", err)
	}

	vec, err := s.store.LoadCalibration(ctx)
	switch {
	case errors.Is(err, calstore.ErrNotFound):
		s.logger.Info("no stored calibration, using defaults")
		vec = phaser.DefaultCalibration()
	case err != nil:
		return fmt.Errorf("load calibration: %w", err)
	}
	s.setCalibration(vec)
	return nil
}

// Config returns the effective configuration after Init.
func (s *Session) Config() Config { return s.cfg }

// Array returns the element table driven by the session.
func (s *Session) Array() *phaser.Array { return s.array }

// Calibration returns the active calibration vector.
func (s *Session) Calibration() phaser.CalibrationVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal
}

func (s *Session) setCalibration(vec phaser.CalibrationVector) {
	s.mu.Lock()
	s.cal = vec
	s.mu.Unlock()
	s.reporter.ReportCalibration(vec)
}

// Calibrate runs channel, gain and phase calibration, stores the result and
// leaves the array in the calibrated operating state. On failure the active
// calibration is unchanged and the partial vector is returned with the error.
func (s *Session) Calibrate(ctx context.Context) (phaser.CalibrationVector, error) {
	cal, err := phaser.NewCalibrator(s.array, s.acq, s.cfg.Calibration, s.logger)
	if err != nil {
		return phaser.CalibrationVector{}, err
	}
	start := time.Now()
	vec, err := cal.Run(ctx)
	if err != nil {
		return vec, err
	}
	if err := s.store.SaveCalibration(ctx, vec); err != nil {
		return vec, fmt.Errorf("save calibration: %w", err)
	}
	s.setCalibration(vec)
	if err := cal.ApplyOperatingState(ctx, s.cfg.OperatingGain); err != nil {
		return vec, fmt.Errorf("apply operating state: %w", err)
	}
	s.logger.Info("calibration stored",
		logging.F("run_id", vec.RunID),
		logging.F("duration_ms", time.Since(start).Seconds()*1000),
	)
	return vec, nil
}

// Sweep runs one beam sweep with the active calibration and reports it.
// Partial sweeps are returned with the error but not reported.
func (s *Session) Sweep(ctx context.Context) (phaser.AngleResponse, error) {
	sweeper, err := phaser.NewSweeper(s.array, s.acq, s.Calibration(), s.cfg.Sweep, s.logger)
	if err != nil {
		return phaser.AngleResponse{}, err
	}
	resp, err := sweeper.Sweep(ctx)
	if err != nil {
		return resp, err
	}
	s.reporter.ReportSweep(resp)
	return resp, nil
}

// Run discards the warm-up buffers, then sweeps until ctx is cancelled. It
// returns ctx.Err() on cancellation and the sweep error on failure.
func (s *Session) Run(ctx context.Context) error {
	if err := s.warmup(ctx); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	if s.cfg.Interval <= 0 {
		return errors.New("session not initialised")
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for iteration := 0; ; iteration++ {
		iterationStart := time.Now()
		if _, err := s.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sweep %d: %w", iteration, err)
		}
		s.logger.Debug("sweep complete",
			logging.F("iteration", iteration),
			logging.F("elapsed_ms", time.Since(iterationStart).Seconds()*1000),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) warmup(ctx context.Context) error {
	for i := 0; i < s.cfg.WarmupBuffers; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		warmupStart := time.Now()
		if _, err := s.acq.Acquire(ctx, phaser.NumChannels); err != nil {
			return fmt.Errorf("warmup buffer %d: %w", i, err)
		}
		s.logger.Debug("warmup buffer discarded", logging.F("index", i), logging.F("duration_ms", time.Since(warmupStart).Seconds()*1000))
	}
	return nil
}

// Simulate synthesizes a frame for target, processes it and reports the
// detection.
func (s *Session) Simulate(ctx context.Context, target fmcw.Target) (fmcw.Result, error) {
	if err := ctx.Err(); err != nil {
		return fmcw.Result{}, err
	}
	params, err := fmcw.NewRadarParameters(s.cfg.Radar)
	if err != nil {
		return fmcw.Result{}, err
	}
	model, err := fmcw.NewChirpModel(params)
	if err != nil {
		return fmcw.Result{}, err
	}
	proc, err := fmcw.NewProcessor(params, *s.cfg.Processor)
	if err != nil {
		return fmcw.Result{}, err
	}

	start := time.Now()
	var frame iq.Frame
	if s.cfg.NoiseSigma > 0 {
		frame = model.SynthesizeFrameNoisy(target, s.cfg.NoiseSigma, rand.New(rand.NewSource(s.cfg.Seed)))
	} else {
		frame = model.SynthesizeFrame(target)
	}
	res, err := proc.Process(frame)
	if err != nil {
		return fmcw.Result{}, fmt.Errorf("process frame: %w", err)
	}

	runID := uuid.NewString()
	s.reporter.ReportDetection(telemetry.Detection{
		Timestamp: start,
		RunID:     runID,
		RangeM:    res.DetectedRange,
		Velocity:  res.DetectedVelocity,
		RangeSNR:  res.RangeSNR,
	})
	s.logger.Debug("frame processed",
		logging.F("run_id", runID),
		logging.F("duration_ms", time.Since(start).Seconds()*1000),
	)
	return res, nil
}

// Close releases the backend.
func (s *Session) Close() error {
	return s.backend.Close()
}
