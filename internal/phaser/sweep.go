package phaser

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
	"github.com/rjboer/gophaser/internal/logging"
)

// ArraySweepConfig describes one beam sweep over inter-element phase steps.
type ArraySweepConfig struct {
	StartDeg float64 `mapstructure:"start_deg" yaml:"start_deg" json:"startDeg"`
	// StopDeg is exclusive.
	StopDeg         float64 `mapstructure:"stop_deg" yaml:"stop_deg" json:"stopDeg"`
	StepDeg         float64 `mapstructure:"step_deg" yaml:"step_deg" json:"stepDeg"`
	SignalFreqHz    float64 `mapstructure:"signal_freq_hz" yaml:"signal_freq_hz" json:"signalFreqHz"`
	ElementSpacingM float64 `mapstructure:"element_spacing_m" yaml:"element_spacing_m" json:"elementSpacingM"`
	SpeedOfLight    float64 `mapstructure:"speed_of_light" yaml:"speed_of_light" json:"speedOfLight"`
	GainCode        int     `mapstructure:"gain_code" yaml:"gain_code" json:"gainCode"`
	// Taper overrides GainCode per element when it holds NumElements codes.
	Taper []int `mapstructure:"taper" yaml:"taper" json:"taper,omitempty"`
	// UseSpectralPeak measures power at the FFT peak instead of total energy.
	UseSpectralPeak bool `mapstructure:"use_spectral_peak" yaml:"use_spectral_peak" json:"useSpectralPeak"`
}

// BlackmanTaper is a sidelobe-suppressing set of element gain codes.
var BlackmanTaper = []int{8, 34, 84, 127, 127, 84, 34, 8}

// DefaultSweepConfig sweeps [-180,180) in 2 degree steps for a 10.525 GHz
// source and 14 mm element spacing.
func DefaultSweepConfig() ArraySweepConfig {
	return ArraySweepConfig{
		StartDeg:        -180,
		StopDeg:         180,
		StepDeg:         2,
		SignalFreqHz:    10.525e9,
		ElementSpacingM: 0.014,
		SpeedOfLight:    dsp.SpeedOfLight,
		GainCode:        64,
	}
}

func (c ArraySweepConfig) withDefaults() ArraySweepConfig {
	if c.SpeedOfLight == 0 {
		c.SpeedOfLight = dsp.SpeedOfLight
	}
	if c.GainCode == 0 {
		c.GainCode = 64
	}
	return c
}

// Validate rejects non-physical steering geometry and empty sweeps.
func (c ArraySweepConfig) Validate() error {
	switch {
	case !(c.SignalFreqHz > 0) || math.IsInf(c.SignalFreqHz, 0):
		return errs.Configuration("signal frequency %g must be positive", c.SignalFreqHz)
	case !(c.ElementSpacingM > 0) || math.IsInf(c.ElementSpacingM, 0):
		return errs.Configuration("element spacing %g must be positive", c.ElementSpacingM)
	case !(c.SpeedOfLight > 0):
		return errs.Configuration("propagation speed %g must be positive", c.SpeedOfLight)
	case !(c.StepDeg > 0):
		return errs.Configuration("sweep step %g must be positive", c.StepDeg)
	case !(c.StopDeg > c.StartDeg):
		return errs.Configuration("sweep stop %g must exceed start %g", c.StopDeg, c.StartDeg)
	case c.GainCode < 0 || c.GainCode > MaxGainCode:
		return errs.Configuration("gain code %d outside [0,%d]", c.GainCode, MaxGainCode)
	case len(c.Taper) != 0 && len(c.Taper) != NumElements:
		return errs.Configuration("taper has %d codes, want %d", len(c.Taper), NumElements)
	}
	return nil
}

// Steps returns the inter-element phase steps of the sweep.
func (c ArraySweepConfig) Steps() []float64 {
	n := int(math.Ceil((c.StopDeg-c.StartDeg)/c.StepDeg - 1e-9))
	out := make([]float64, 0, n)
	for k := 0; k < n; k++ {
		out = append(out, c.StartDeg+float64(k)*c.StepDeg)
	}
	return out
}

// AnglePoint is the measured response at one steering setting.
type AnglePoint struct {
	SteeringPhaseDeg float64 `json:"steeringPhaseDeg"`
	AngleDeg         float64 `json:"angleDeg"`
	PowerDB          float64 `json:"powerDb"`
	// DeltaDB is the difference (ch0 - ch1) pattern on the same scale.
	DeltaDB float64 `json:"deltaDb"`
	// MonopulsePhaseRad is the sum/difference correlation phase.
	MonopulsePhaseRad float64 `json:"monopulsePhaseRad"`
}

// AngleResponse is a normalized beam pattern: the strongest point is 0 dB.
type AngleResponse struct {
	RunID     string       `json:"runId"`
	StartedAt time.Time    `json:"startedAt"`
	Points    []AnglePoint `json:"points"`
}

// Peak returns the strongest point; ok is false for an empty response.
func (r AngleResponse) Peak() (AnglePoint, bool) {
	if len(r.Points) == 0 {
		return AnglePoint{}, false
	}
	best := 0
	for i, p := range r.Points {
		if p.PowerDB > r.Points[best].PowerDB {
			best = i
		}
	}
	return r.Points[best], true
}

// Angles returns the steering angles in sweep order.
func (r AngleResponse) Angles() []float64 {
	out := make([]float64, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.AngleDeg
	}
	return out
}

// Powers returns the normalized powers in sweep order.
func (r AngleResponse) Powers() []float64 {
	out := make([]float64, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.PowerDB
	}
	return out
}

// Normalize shifts sum and delta powers so the sum maximum is exactly 0 dB.
func Normalize(points []AnglePoint) {
	if len(points) == 0 {
		return
	}
	maxDB := points[0].PowerDB
	for _, p := range points[1:] {
		if p.PowerDB > maxDB {
			maxDB = p.PowerDB
		}
	}
	for i := range points {
		points[i].PowerDB -= maxDB
		points[i].DeltaDB -= maxDB
	}
}

// Sweeper steers the array through a phase sweep and records the response.
type Sweeper struct {
	array  *Array
	acq    Acquirer
	cal    CalibrationVector
	cfg    ArraySweepConfig
	logger logging.Logger
	dsp    *dsp.CachedDSP
}

// NewSweeper validates the configuration before touching any hardware.
func NewSweeper(array *Array, acq Acquirer, cal CalibrationVector, cfg ArraySweepConfig, logger logging.Logger) (*Sweeper, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if array == nil || acq == nil {
		return nil, errs.Configuration("sweeper needs an array and an acquirer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		array:  array,
		acq:    acq,
		cal:    cal,
		cfg:    cfg,
		logger: logger.With(logging.Subsystem("beamforming")),
		dsp:    dsp.NewCachedDSP(0, dsp.Blackman),
	}, nil
}

// Config returns the effective sweep configuration.
func (s *Sweeper) Config() ArraySweepConfig { return s.cfg }

// ElementPhases returns (delta*i + pcal[i]) mod 360 for every element.
func (s *Sweeper) ElementPhases(deltaDeg float64) [NumElements]float64 {
	var out [NumElements]float64
	for i := range out {
		out[i] = dsp.WrapDegrees(deltaDeg*float64(i) + s.cal.Phase[i])
	}
	return out
}

// SteeringAngle maps an inter-element phase step to the steering angle in
// degrees. The arcsine argument is clamped to [-1,1].
func (s *Sweeper) SteeringAngle(deltaDeg float64) float64 {
	theta, _ := dsp.PhaseToTheta(deltaDeg, s.cfg.SignalFreqHz, s.cfg.ElementSpacingM, s.cfg.SpeedOfLight)
	return theta
}

func (s *Sweeper) gains() [NumElements]int {
	var out [NumElements]int
	for i := range out {
		code := s.cfg.GainCode
		if len(s.cfg.Taper) == NumElements {
			code = s.cfg.Taper[i]
		}
		out[i] = ApplyGainCalibration(code, s.cal.Gain[i])
	}
	return out
}

// Steer stages and latches the element table for one phase step.
func (s *Sweeper) Steer(ctx context.Context, deltaDeg float64) error {
	s.array.SetGains(s.gains())
	if err := s.array.SetAllPhases(s.ElementPhases(deltaDeg)); err != nil {
		return err
	}
	return s.array.Latch(ctx)
}

// Sweep measures the response at every phase step. On cancellation or an
// acquisition error it returns the normalized response of the completed
// steps together with the error.
func (s *Sweeper) Sweep(ctx context.Context) (AngleResponse, error) {
	resp := AngleResponse{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	steps := s.cfg.Steps()
	resp.Points = make([]AnglePoint, 0, len(steps))
	logger := s.logger.With(logging.F("run_id", resp.RunID))
	start := time.Now()

	for _, delta := range steps {
		if err := ctx.Err(); err != nil {
			Normalize(resp.Points)
			return resp, err
		}
		point, err := s.measure(ctx, delta)
		if err != nil {
			Normalize(resp.Points)
			logger.Warn("sweep interrupted", logging.F("completed", len(resp.Points)), logging.Err(err))
			return resp, fmt.Errorf("sweep step %.2f deg: %w", delta, err)
		}
		resp.Points = append(resp.Points, point)
	}
	Normalize(resp.Points)

	if peak, ok := resp.Peak(); ok {
		logger.Debug("sweep complete",
			logging.F("points", len(resp.Points)),
			logging.F("peak_angle_deg", peak.AngleDeg),
			logging.F("duration_ms", time.Since(start).Seconds()*1000))
	}
	return resp, nil
}

func (s *Sweeper) measure(ctx context.Context, delta float64) (AnglePoint, error) {
	if err := s.Steer(ctx, delta); err != nil {
		return AnglePoint{}, err
	}
	ch, err := acquire(ctx, s.acq)
	if err != nil {
		return AnglePoint{}, err
	}
	scale := s.cal.ChannelScale()
	sum := combine(ch, scale, 1)
	diff := combine(ch, scale, -1)

	point := AnglePoint{SteeringPhaseDeg: delta, AngleDeg: s.SteeringAngle(delta)}
	s.dsp.UpdateSize(len(sum))
	sumSpec, err := s.dsp.Spectrum(sum)
	if err != nil {
		return AnglePoint{}, err
	}
	diffSpec, err := s.dsp.Spectrum(diff)
	if err != nil {
		return AnglePoint{}, err
	}
	if s.cfg.UseSpectralPeak {
		_, peak, _ := dsp.PeakBin(sumSpec.Values, 0, len(sumSpec.Values))
		_, dpeak, _ := dsp.PeakBin(diffSpec.Values, 0, len(diffSpec.Values))
		point.PowerDB, point.DeltaDB = peak, dpeak
	} else {
		point.PowerDB = energyDB(sum)
		point.DeltaDB = energyDB(diff)
	}
	point.MonopulsePhaseRad = dsp.MonopulsePhase(sumSpec.Coefficients, diffSpec.Coefficients, 0, len(sum))
	return point, nil
}

// energyDB is 10*log10(sum |x|^2), floored at dsp.MinDB.
func energyDB(x iq.Buffer) float64 {
	e := iq.Energy(x)
	if e <= 0 {
		return dsp.MinDB
	}
	return math.Max(10*math.Log10(e), dsp.MinDB)
}
