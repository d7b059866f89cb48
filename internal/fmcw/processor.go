package fmcw

import (
	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
)

// ProcessorOptions tunes the range/Doppler processing chain.
type ProcessorOptions struct {
	RangeWindow   dsp.WindowKind
	DopplerWindow dsp.WindowKind
	// RangeChirp selects the chirp used for the single range profile.
	RangeChirp int
	// DopplerSample selects the fast-time sample used for the velocity profile.
	DopplerSample int
	// Linear reports magnitudes instead of dB.
	Linear bool
}

// DefaultProcessorOptions uses Blackman tapers on both axes and dB output.
func DefaultProcessorOptions() ProcessorOptions {
	return ProcessorOptions{RangeWindow: dsp.Blackman, DopplerWindow: dsp.Blackman}
}

// Profile is a one-dimensional spectrum over a physical axis.
type Profile struct {
	Values []float64 `json:"values"`
	Axis   []float64 `json:"axis"`
	DB     bool      `json:"db"`
}

// Peak returns the index, axis position and value of the profile maximum.
func (p Profile) Peak() (idx int, at, value float64) {
	i, v, ok := dsp.PeakBin(p.Values, 0, len(p.Values))
	if !ok {
		return 0, 0, 0
	}
	return i, p.Axis[i], v
}

// SNR returns the peak-to-noise ratio in dB; zero for linear profiles.
func (p Profile) SNR() float64 {
	if !p.DB {
		return 0
	}
	i, _, _ := p.Peak()
	return dsp.EstimateSNR(p.Values, i, 0, len(p.Values))
}

// RangeVelocityMap is the cropped 2-D spectrum of a frame: rows follow the
// velocity axis, columns the range axis.
type RangeVelocityMap struct {
	Values       [][]float64 `json:"values"`
	RangeAxis    []float64   `json:"rangeAxis"`
	VelocityAxis []float64   `json:"velocityAxis"`
	DB           bool        `json:"db"`
}

// Peak returns the range and velocity of the strongest cell.
func (m RangeVelocityMap) Peak() (rangeM, velocity, value float64) {
	best := -1
	for r, row := range m.Values {
		c, v, ok := dsp.PeakBin(row, 0, len(row))
		if !ok {
			continue
		}
		if best < 0 || v > value {
			best = r
			rangeM, velocity, value = m.RangeAxis[c], m.VelocityAxis[r], v
		}
	}
	return rangeM, velocity, value
}

// Result bundles the outputs of Process.
type Result struct {
	Range    Profile          `json:"range"`
	Velocity Profile          `json:"velocity"`
	Map      RangeVelocityMap `json:"map"`

	DetectedRange    float64 `json:"detectedRange"`
	DetectedVelocity float64 `json:"detectedVelocity"`
	RangeSNR         float64 `json:"rangeSnr"`
}

// Processor turns IF frames into range and velocity estimates. It holds only
// immutable state and is safe for concurrent use.
type Processor struct {
	p    RadarParameters
	opts ProcessorOptions

	rangeWindow   []float64
	dopplerWindow []float64
	rangeAxis     []float64
	velocityAxis  []float64
}

// NewProcessor precomputes windows and axes for the parameters.
func NewProcessor(p RadarParameters, opts ProcessorOptions) (*Processor, error) {
	if !p.Valid() {
		return nil, errs.Configuration("radar parameters were not built with NewRadarParameters")
	}
	nr, nd := p.SamplesPerChirp(), p.ChirpsPerFrame()
	if opts.RangeChirp < 0 || opts.RangeChirp >= nd {
		return nil, errs.Configuration("range chirp %d outside [0,%d)", opts.RangeChirp, nd)
	}
	if opts.DopplerSample < 0 || opts.DopplerSample >= nr {
		return nil, errs.Configuration("doppler sample %d outside [0,%d)", opts.DopplerSample, nr)
	}

	proc := &Processor{
		p:             p,
		opts:          opts,
		rangeWindow:   dsp.MakeWindow(opts.RangeWindow, nr),
		dopplerWindow: dsp.MakeWindow(opts.DopplerWindow, nd),
		rangeAxis:     make([]float64, nr/2),
		velocityAxis:  make([]float64, nd/2),
	}
	binHz := p.SampleRate() / float64(nr)
	for i := range proc.rangeAxis {
		proc.rangeAxis[i] = p.RangeForFrequency(float64(i) * binHz)
	}
	for k := range proc.velocityAxis {
		proc.velocityAxis[k] = float64(k) * p.VelocityResolution()
	}
	return proc, nil
}

// Parameters returns the processor's radar parameters.
func (proc *Processor) Parameters() RadarParameters { return proc.p }

// RangeAxis returns a copy of the range axis in metres (Nr/2 bins).
func (proc *Processor) RangeAxis() []float64 {
	return append([]float64(nil), proc.rangeAxis...)
}

// VelocityAxis returns a copy of the velocity axis in m/s (Nd/2 bins).
func (proc *Processor) VelocityAxis() []float64 {
	return append([]float64(nil), proc.velocityAxis...)
}

// RangeProfile transforms one chirp of Nr IF samples and keeps the first Nr/2
// bins.
func (proc *Processor) RangeProfile(chirp []complex128) (Profile, error) {
	nr := proc.p.SamplesPerChirp()
	if len(chirp) != nr {
		return Profile{}, errs.Shape("chirp has %d samples, want %d", len(chirp), nr)
	}
	return proc.profile(chirp, proc.rangeWindow, proc.rangeAxis)
}

// VelocityProfile transforms the slow-time sequence at the configured sample
// index across all chirps and keeps the first Nd/2 bins.
func (proc *Processor) VelocityProfile(frame iq.Frame) (Profile, error) {
	if err := frame.Validate(proc.p.ChirpsPerFrame(), proc.p.SamplesPerChirp()); err != nil {
		return Profile{}, err
	}
	column, err := frame.Column(proc.opts.DopplerSample)
	if err != nil {
		return Profile{}, err
	}
	return proc.profile(column, proc.dopplerWindow, proc.velocityAxis)
}

func (proc *Processor) profile(x []complex128, window, axis []float64) (Profile, error) {
	spec, err := dsp.FFT(x, dsp.SpectrumOptions{Window: window, DB: !proc.opts.Linear})
	if err != nil {
		return Profile{}, err
	}
	values := make([]float64, len(axis))
	copy(values, spec.Values[:len(axis)])
	return Profile{
		Values: values,
		Axis:   append([]float64(nil), axis...),
		DB:     !proc.opts.Linear,
	}, nil
}

// RangeVelocityMap computes the 2-D spectrum of the frame and crops it to the
// non-negative quadrant [0,Nd/2) x [0,Nr/2).
func (proc *Processor) RangeVelocityMap(frame iq.Frame) (RangeVelocityMap, error) {
	nd, nr := proc.p.ChirpsPerFrame(), proc.p.SamplesPerChirp()
	if err := frame.Validate(nd, nr); err != nil {
		return RangeVelocityMap{}, err
	}
	rows := make([][]complex128, nd)
	for k := range frame {
		rows[k] = frame[k]
	}
	grid, err := dsp.FFT2(rows, dsp.GridOptions{
		RowWindow:    proc.rangeWindow,
		ColumnWindow: proc.dopplerWindow,
		DB:           !proc.opts.Linear,
	})
	if err != nil {
		return RangeVelocityMap{}, err
	}
	cropped, err := grid.Crop(nd/2, nr/2)
	if err != nil {
		return RangeVelocityMap{}, err
	}
	return RangeVelocityMap{
		Values:       cropped.Values,
		RangeAxis:    proc.RangeAxis(),
		VelocityAxis: proc.VelocityAxis(),
		DB:           !proc.opts.Linear,
	}, nil
}

// Process runs the full chain on one frame. Range comes from the configured
// chirp, velocity from the configured sample column.
func (proc *Processor) Process(frame iq.Frame) (Result, error) {
	if err := frame.Validate(proc.p.ChirpsPerFrame(), proc.p.SamplesPerChirp()); err != nil {
		return Result{}, err
	}
	rng, err := proc.RangeProfile(frame[proc.opts.RangeChirp])
	if err != nil {
		return Result{}, err
	}
	vel, err := proc.VelocityProfile(frame)
	if err != nil {
		return Result{}, err
	}
	rvMap, err := proc.RangeVelocityMap(frame)
	if err != nil {
		return Result{}, err
	}
	_, r, _ := rng.Peak()
	_, v, _ := vel.Peak()
	return Result{
		Range:            rng,
		Velocity:         vel,
		Map:              rvMap,
		DetectedRange:    r,
		DetectedVelocity: v,
		RangeSNR:         rng.SNR(),
	}, nil
}
