package phaser

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
	"github.com/rjboer/gophaser/internal/logging"
)

// GainReference selects the element all others are levelled to.
type GainReference int

// ReferenceWeakest levels every element down to the weakest one so that no
// corrected code exceeds the reference code.
const ReferenceWeakest GainReference = -1

// PhasePolarity selects which feature of the pair sweep defines alignment.
type PhasePolarity int

const (
	// PolarityNull aligns on the deepest null, 180 degrees from alignment.
	PolarityNull PhasePolarity = iota
	// PolarityPeak aligns on the strongest combined response.
	PolarityPeak
)

// CalibrationConfig tunes the calibration measurements.
type CalibrationConfig struct {
	ReferenceGainCode int           `mapstructure:"reference_gain_code" yaml:"reference_gain_code"`
	ReferencePhaseDeg float64       `mapstructure:"reference_phase_deg" yaml:"reference_phase_deg"`
	PhaseStepDeg      float64       `mapstructure:"phase_step_deg" yaml:"phase_step_deg"`
	GainReference     GainReference `mapstructure:"gain_reference" yaml:"gain_reference"`
	PhasePolarity     PhasePolarity `mapstructure:"phase_polarity" yaml:"phase_polarity"`
	// Averages is the number of buffers averaged per measurement.
	Averages int  `mapstructure:"averages" yaml:"averages"`
	Verbose  bool `mapstructure:"verbose" yaml:"verbose"`
}

// DefaultCalibrationConfig returns full reference gain, one-LSB phase steps,
// weakest-element gain reference and null polarity.
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		ReferenceGainCode: MaxGainCode,
		PhaseStepDeg:      PhaseLSB,
		GainReference:     ReferenceWeakest,
		PhasePolarity:     PolarityNull,
		Averages:          1,
	}
}

func (c CalibrationConfig) validate() error {
	if c.ReferenceGainCode <= 0 || c.ReferenceGainCode > MaxGainCode {
		return errs.Configuration("reference gain code %d outside (0,%d]", c.ReferenceGainCode, MaxGainCode)
	}
	if !(c.PhaseStepDeg > 0) || c.PhaseStepDeg >= 360 {
		return errs.Configuration("phase step %g outside (0,360)", c.PhaseStepDeg)
	}
	if c.GainReference != ReferenceWeakest && (c.GainReference < 0 || int(c.GainReference) >= NumElements) {
		return errs.Configuration("gain reference element %d outside [0,%d)", c.GainReference, NumElements)
	}
	if c.PhasePolarity != PolarityNull && c.PhasePolarity != PolarityPeak {
		return errs.Configuration("unknown phase polarity %d", c.PhasePolarity)
	}
	if c.Averages < 1 {
		return errs.Configuration("averages %d must be at least 1", c.Averages)
	}
	return nil
}

// ChannelReport is the outcome of the channel level calibration.
type ChannelReport struct {
	PowerDB [NumChannels]float64 `json:"powerDb"`
	Offsets [NumChannels]float64 `json:"offsets"`
}

// GainReport is the outcome of the per-element gain calibration.
type GainReport struct {
	Levels    [NumElements]float64 `json:"levels"`
	Reference int                  `json:"reference"`
	Gain      [NumElements]float64 `json:"gain"`
	// Spectra holds each isolated element's dB spectrum when Verbose is set.
	Spectra [NumElements][]float64 `json:"spectra,omitempty"`
}

// PhaseReport is the outcome of the pairwise phase calibration.
type PhaseReport struct {
	PhaseAxis []float64                 `json:"phaseAxis"`
	Curves    [NumElements - 1][]float64 `json:"curves"`
	Phase     [NumElements]float64      `json:"phase"`
}

type stage int

const (
	stageNone stage = iota
	stageChannel
	stageGain
	stagePhase
)

// Calibrator measures channel, gain and phase corrections through the array
// and an acquirer. Stages must run in that order.
type Calibrator struct {
	array  *Array
	acq    Acquirer
	cfg    CalibrationConfig
	logger logging.Logger
	dsp    *dsp.CachedDSP

	mu   sync.Mutex
	vec  CalibrationVector
	done stage
}

// NewCalibrator validates cfg and returns a calibrator starting from the
// default (identity) calibration.
func NewCalibrator(array *Array, acq Acquirer, cfg CalibrationConfig, logger logging.Logger) (*Calibrator, error) {
	if array == nil || acq == nil {
		return nil, errs.Configuration("calibrator needs an array and an acquirer")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Calibrator{
		array:  array,
		acq:    acq,
		cfg:    cfg,
		logger: logger.With(logging.Subsystem("calibration")),
		dsp:    dsp.NewCachedDSP(0, dsp.Blackman),
		vec:    DefaultCalibration(),
	}, nil
}

// Vector returns the calibration accumulated so far.
func (c *Calibrator) Vector() CalibrationVector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vec
}

func (c *Calibrator) completed() stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// measure latches the staged table, then averages the peak spectral magnitude
// of the signal produced by pick over cfg.Averages acquisitions.
func (c *Calibrator) measure(ctx context.Context, pick func([NumChannels]iq.Buffer) iq.Buffer) (float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := c.array.Latch(ctx); err != nil {
		return 0, nil, err
	}
	var (
		sum     float64
		spectra []float64
	)
	for n := 0; n < c.cfg.Averages; n++ {
		ch, err := acquire(ctx, c.acq)
		if err != nil {
			return 0, nil, err
		}
		x := pick(ch)
		c.dsp.UpdateSize(len(x))
		spec, err := c.dsp.Spectrum(x)
		if err != nil {
			return 0, nil, err
		}
		bin, _, _ := dsp.PeakBin(spec.Values, 0, len(spec.Values))
		sum += absC(spec.Coefficients[bin])
		spectra = spec.Values
	}
	return sum / float64(c.cfg.Averages), spectra, nil
}

func absC(v complex128) float64 { return math.Hypot(real(v), imag(v)) }

func (c *Calibrator) stageReference(gains [NumElements]int) error {
	c.array.SetGains(gains)
	for i := 0; i < NumElements; i++ {
		if err := c.array.SetElementPhase(i, c.cfg.ReferencePhaseDeg); err != nil {
			return err
		}
	}
	return nil
}

// ChannelCalibration drives every element at the reference setting, measures
// each channel's peak level and sets ccal[ch] = max(level) - level[ch] in dB.
func (c *Calibrator) ChannelCalibration(ctx context.Context) (ChannelReport, error) {
	var report ChannelReport
	var gains [NumElements]int
	for i := range gains {
		gains[i] = c.cfg.ReferenceGainCode
	}
	if err := c.stageReference(gains); err != nil {
		return report, err
	}

	var levels [NumChannels]float64
	for ch := 0; ch < NumChannels; ch++ {
		ch := ch
		level, _, err := c.measure(ctx, func(b [NumChannels]iq.Buffer) iq.Buffer { return b[ch] })
		if err != nil {
			return report, fmt.Errorf("measure channel %d: %w", ch, err)
		}
		levels[ch] = level
		report.PowerDB[ch] = dsp.PowerDB(level)
	}
	maxDB := floats.Max(report.PowerDB[:])
	for ch := range report.Offsets {
		report.Offsets[ch] = maxDB - report.PowerDB[ch]
	}

	c.mu.Lock()
	c.vec.Channel = report.Offsets
	c.done = stageChannel
	c.mu.Unlock()

	c.logger.Info("channel calibration complete",
		logging.F("ch0_db", report.PowerDB[0]), logging.F("ch1_db", report.PowerDB[1]),
		logging.F("ccal0", report.Offsets[0]), logging.F("ccal1", report.Offsets[1]))
	return report, nil
}

// GainCalibration isolates each element, measures its level on its own
// channel with ccal applied and sets gcal[i] = level[ref]/level[i].
func (c *Calibrator) GainCalibration(ctx context.Context) (GainReport, error) {
	var report GainReport
	if c.completed() < stageChannel {
		return report, errs.Configuration("gain calibration requires channel calibration first")
	}
	scale := c.Vector().ChannelScale()

	for i := 0; i < NumElements; i++ {
		var gains [NumElements]int
		gains[i] = c.cfg.ReferenceGainCode
		if err := c.stageReference(gains); err != nil {
			return report, err
		}
		ch := ChannelOf(i)
		level, spectrum, err := c.measure(ctx, func(b [NumChannels]iq.Buffer) iq.Buffer {
			out := make(iq.Buffer, len(b[ch]))
			s := complex(scale[ch], 0)
			for k, v := range b[ch] {
				out[k] = s * v
			}
			return out
		})
		if err != nil {
			return report, fmt.Errorf("measure element %d: %w", i, err)
		}
		if !(level > 0) {
			return report, errs.Acquisition("gain calibration", fmt.Errorf("element %d produced no signal", i))
		}
		report.Levels[i] = level
		if c.cfg.Verbose {
			report.Spectra[i] = spectrum
		}
		c.logger.Debug("element level", logging.F("element", i), logging.F("channel", ch), logging.F("level_db", dsp.PowerDB(level)))
	}

	ref := int(c.cfg.GainReference)
	if c.cfg.GainReference == ReferenceWeakest {
		ref = floats.MinIdx(report.Levels[:])
	}
	report.Reference = ref
	for i, level := range report.Levels {
		report.Gain[i] = report.Levels[ref] / level
	}

	c.mu.Lock()
	c.vec.Gain = report.Gain
	c.done = stageGain
	c.mu.Unlock()

	c.logger.Info("gain calibration complete", logging.F("reference", ref), logging.F("gcal", report.Gain))
	return report, nil
}

// PhaseCalibration aligns neighbouring elements pairwise. Element i is held at
// pcal[i] while element i+1 sweeps [0,360); the null (or peak) of the
// combined response fixes pcal[i+1].
func (c *Calibrator) PhaseCalibration(ctx context.Context) (PhaseReport, error) {
	var report PhaseReport
	if c.completed() < stageGain {
		return report, errs.Configuration("phase calibration requires gain calibration first")
	}
	vec := c.Vector()
	scale := vec.ChannelScale()
	steps := int(math.Ceil(360/c.cfg.PhaseStepDeg - 1e-9))
	report.PhaseAxis = make([]float64, steps)
	for k := range report.PhaseAxis {
		report.PhaseAxis[k] = float64(k) * c.cfg.PhaseStepDeg
	}

	var pcal [NumElements]float64
	for i := 0; i < NumElements-1; i++ {
		var gains [NumElements]int
		gains[i] = ApplyGainCalibration(c.cfg.ReferenceGainCode, vec.Gain[i])
		gains[i+1] = ApplyGainCalibration(c.cfg.ReferenceGainCode, vec.Gain[i+1])
		c.array.SetGains(gains)
		for e := 0; e < NumElements; e++ {
			if err := c.array.SetElementPhase(e, 0); err != nil {
				return report, err
			}
		}
		if err := c.array.SetElementPhase(i, pcal[i]); err != nil {
			return report, err
		}

		// A pair inside one subarray is measured on its own channel only; the
		// idle channel would add nothing but scaled noise.
		pick := func(b [NumChannels]iq.Buffer) iq.Buffer { return combine(b, scale, 1) }
		if ch := ChannelOf(i); ch == ChannelOf(i+1) {
			pick = func(b [NumChannels]iq.Buffer) iq.Buffer { return b[ch] }
		}

		curve := make([]float64, steps)
		levels := make([]float64, steps)
		for k, theta := range report.PhaseAxis {
			if err := c.array.SetElementPhase(i+1, theta); err != nil {
				return report, err
			}
			level, _, err := c.measure(ctx, pick)
			if err != nil {
				return report, fmt.Errorf("measure pair %d/%d at %.4f deg: %w", i, i+1, theta, err)
			}
			levels[k] = level
			curve[k] = dsp.PowerDB(level)
		}
		report.Curves[i] = curve

		if c.cfg.PhasePolarity == PolarityPeak {
			peak := report.PhaseAxis[floats.MaxIdx(curve)]
			if fitted, ok := fitPeakPhase(report.PhaseAxis, levels, peak); ok {
				peak = fitted
			}
			pcal[i+1] = dsp.WrapDegreesSigned(peak)
		} else {
			null := report.PhaseAxis[floats.MinIdx(curve)]
			if fitted, ok := fitPeakPhase(report.PhaseAxis, levels, null); ok {
				null = fitted + 180
			}
			pcal[i+1] = dsp.WrapDegreesSigned(null - 180)
		}
		c.logger.Debug("pair aligned", logging.F("element", i+1), logging.F("pcal", pcal[i+1]))
	}
	report.Phase = pcal

	c.mu.Lock()
	c.vec.Phase = pcal
	c.done = stagePhase
	c.mu.Unlock()

	c.logger.Info("phase calibration complete", logging.F("pcal", pcal))
	return report, nil
}

// fitPeakPhase fits p = c0 + c1*cos(theta) + c2*sin(theta) to the linear pair
// power within a quarter turn of center and returns the phase of the fitted
// maximum in degrees. ok is false when the window is too small or the fitted
// curve is flat.
func fitPeakPhase(axis, levels []float64, center float64) (float64, bool) {
	var (
		design []float64
		power  []float64
	)
	for k, theta := range axis {
		if math.Abs(dsp.WrapDegreesSigned(theta-center)) > 90 {
			continue
		}
		r := theta * math.Pi / 180
		design = append(design, 1, math.Cos(r), math.Sin(r))
		power = append(power, levels[k]*levels[k])
	}
	if len(power) < 3 {
		return 0, false
	}
	var coef mat.VecDense
	if err := coef.SolveVec(mat.NewDense(len(power), 3, design), mat.NewVecDense(len(power), power)); err != nil {
		return 0, false
	}
	c0, c1, c2 := coef.AtVec(0), coef.AtVec(1), coef.AtVec(2)
	if !(math.Hypot(c1, c2) > 1e-9*math.Abs(c0)) {
		return 0, false
	}
	return math.Atan2(c2, c1) * 180 / math.Pi, true
}

// Run performs channel, gain and phase calibration in order. It stops at the
// first failing stage; the returned vector holds every stage that completed.
func (c *Calibrator) Run(ctx context.Context) (CalibrationVector, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := c.logger.With(logging.F("run_id", runID))
	logger.Info("calibration started")

	if _, err := c.ChannelCalibration(ctx); err != nil {
		logger.Error("channel calibration failed", logging.Err(err))
		return c.stamp(runID), fmt.Errorf("channel calibration: %w", err)
	}
	if _, err := c.GainCalibration(ctx); err != nil {
		logger.Error("gain calibration failed", logging.Err(err))
		return c.stamp(runID), fmt.Errorf("gain calibration: %w", err)
	}
	if _, err := c.PhaseCalibration(ctx); err != nil {
		logger.Error("phase calibration failed", logging.Err(err))
		return c.stamp(runID), fmt.Errorf("phase calibration: %w", err)
	}
	logger.Info("calibration finished", logging.F("duration_ms", time.Since(start).Seconds()*1000))
	return c.stamp(runID), nil
}

func (c *Calibrator) stamp(runID string) CalibrationVector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vec.RunID = runID
	c.vec.UpdatedAt = time.Now().UTC()
	return c.vec
}

// ApplyOperatingState restores the array to its operating point: every
// element at the calibrated gain code and its phase offset, then latches.
func ApplyOperatingState(ctx context.Context, array *Array, vec CalibrationVector, gainCode int) error {
	var gains [NumElements]int
	for i := range gains {
		gains[i] = ApplyGainCalibration(gainCode, vec.Gain[i])
	}
	array.SetGains(gains)
	if err := array.SetAllPhases(vec.Phase); err != nil {
		return err
	}
	return array.Latch(ctx)
}

// ApplyOperatingState restores the array using the calibrator's vector.
func (c *Calibrator) ApplyOperatingState(ctx context.Context, gainCode int) error {
	return ApplyOperatingState(ctx, c.array, c.Vector(), gainCode)
}
