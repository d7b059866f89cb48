// Package fmcw synthesizes FMCW chirps and turns frames of dechirped (IF)
// samples into range and velocity estimates.
package fmcw

import (
	"math"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
)

// RadarConfig is the user-facing description of one chirp sequence.
type RadarConfig struct {
	CarrierHz       float64 `mapstructure:"carrier_hz" yaml:"carrier_hz" json:"carrierHz"`
	BandwidthHz     float64 `mapstructure:"bandwidth_hz" yaml:"bandwidth_hz" json:"bandwidthHz"`
	ChirpDuration   float64 `mapstructure:"chirp_duration" yaml:"chirp_duration" json:"chirpDuration"`
	IdleTime        float64 `mapstructure:"idle_time" yaml:"idle_time" json:"idleTime"`
	SamplesPerChirp int     `mapstructure:"samples_per_chirp" yaml:"samples_per_chirp" json:"samplesPerChirp"`
	ChirpsPerFrame  int     `mapstructure:"chirps_per_frame" yaml:"chirps_per_frame" json:"chirpsPerFrame"`
	// MaxRange is the design range in metres; zero means "up to Nyquist".
	MaxRange     float64 `mapstructure:"max_range" yaml:"max_range" json:"maxRange"`
	SpeedOfLight float64 `mapstructure:"speed_of_light" yaml:"speed_of_light" json:"speedOfLight"`
}

// DefaultRadarConfig is a 77 GHz automotive chirp with 1 m range resolution
// out to 200 m: 1024 samples per chirp, 128 chirps per frame.
func DefaultRadarConfig() RadarConfig {
	cfg, _ := ConfigForResolution(200, 1, 77e9, 6.3e-6, 1024, 128)
	return cfg
}

// ConfigForResolution derives bandwidth and chirp time from a design range
// and range resolution: B = c/(2*res), Tchirp = 5.5*2*maxRange/c.
func ConfigForResolution(maxRange, rangeRes, carrierHz, idle float64, nr, nd int) (RadarConfig, error) {
	if maxRange <= 0 || rangeRes <= 0 {
		return RadarConfig{}, errs.Configuration("max range %g and resolution %g must be positive", maxRange, rangeRes)
	}
	c := dsp.SpeedOfLight
	return RadarConfig{
		CarrierHz:       carrierHz,
		BandwidthHz:     c / (2 * rangeRes),
		ChirpDuration:   5.5 * 2 * maxRange / c,
		IdleTime:        idle,
		SamplesPerChirp: nr,
		ChirpsPerFrame:  nd,
		MaxRange:        maxRange,
		SpeedOfLight:    c,
	}, nil
}

// RadarParameters is a validated, immutable RadarConfig with its derived
// quantities computed once.
type RadarParameters struct {
	cfg RadarConfig

	slope         float64
	sampleRate    float64
	wavelength    float64
	chirpInterval float64
	rangeRes      float64
	velocityRes   float64
	maxIF         float64
}

// NewRadarParameters validates cfg and caches the derived values.
func NewRadarParameters(cfg RadarConfig) (RadarParameters, error) {
	if cfg.SpeedOfLight == 0 {
		cfg.SpeedOfLight = dsp.SpeedOfLight
	}
	switch {
	case !positive(cfg.CarrierHz):
		return RadarParameters{}, errs.Configuration("carrier frequency %g must be positive", cfg.CarrierHz)
	case !positive(cfg.BandwidthHz):
		return RadarParameters{}, errs.Configuration("bandwidth %g must be positive", cfg.BandwidthHz)
	case !positive(cfg.ChirpDuration):
		return RadarParameters{}, errs.Configuration("chirp duration %g must be positive", cfg.ChirpDuration)
	case cfg.IdleTime < 0 || math.IsNaN(cfg.IdleTime) || math.IsInf(cfg.IdleTime, 0):
		return RadarParameters{}, errs.Configuration("idle time %g must be non-negative", cfg.IdleTime)
	case !positive(cfg.SpeedOfLight):
		return RadarParameters{}, errs.Configuration("propagation speed %g must be positive", cfg.SpeedOfLight)
	case cfg.SamplesPerChirp < 2:
		return RadarParameters{}, errs.Configuration("samples per chirp %d must be at least 2", cfg.SamplesPerChirp)
	case cfg.ChirpsPerFrame < 2:
		return RadarParameters{}, errs.Configuration("chirps per frame %d must be at least 2", cfg.ChirpsPerFrame)
	case cfg.MaxRange < 0:
		return RadarParameters{}, errs.Configuration("max range %g must be non-negative", cfg.MaxRange)
	}

	p := RadarParameters{cfg: cfg}
	p.slope = cfg.BandwidthHz / cfg.ChirpDuration
	p.sampleRate = float64(cfg.SamplesPerChirp) / cfg.ChirpDuration
	p.wavelength = cfg.SpeedOfLight / cfg.CarrierHz
	p.chirpInterval = cfg.ChirpDuration + cfg.IdleTime
	p.rangeRes = cfg.SpeedOfLight / (2 * cfg.BandwidthHz)
	p.velocityRes = p.wavelength / (2 * float64(cfg.ChirpsPerFrame) * p.chirpInterval)
	p.maxIF = p.sampleRate / 2
	if cfg.MaxRange > 0 {
		p.maxIF = p.slope * 2 * cfg.MaxRange / cfg.SpeedOfLight
		if p.maxIF > p.sampleRate/2 {
			return RadarParameters{}, errs.Configuration("max range %g m needs IF %g Hz above Nyquist %g Hz", cfg.MaxRange, p.maxIF, p.sampleRate/2)
		}
	}
	return p, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Config returns the configuration the parameters were built from.
func (p RadarParameters) Config() RadarConfig { return p.cfg }

// Valid reports whether p came from NewRadarParameters.
func (p RadarParameters) Valid() bool { return p.slope > 0 }

func (p RadarParameters) Carrier() float64 { return p.cfg.CarrierHz }
func (p RadarParameters) Bandwidth() float64 { return p.cfg.BandwidthHz }
func (p RadarParameters) ChirpDuration() float64 { return p.cfg.ChirpDuration }
func (p RadarParameters) SamplesPerChirp() int { return p.cfg.SamplesPerChirp }
func (p RadarParameters) ChirpsPerFrame() int { return p.cfg.ChirpsPerFrame }
func (p RadarParameters) SpeedOfLight() float64 { return p.cfg.SpeedOfLight }
func (p RadarParameters) Slope() float64 { return p.slope }
func (p RadarParameters) SampleRate() float64 { return p.sampleRate }
func (p RadarParameters) Wavelength() float64 { return p.wavelength }
func (p RadarParameters) ChirpInterval() float64 { return p.chirpInterval }
func (p RadarParameters) RangeResolution() float64 { return p.rangeRes }

// VelocityResolution is the width of one Doppler bin, lambda/(2*Nd*Tc).
func (p RadarParameters) VelocityResolution() float64 { return p.velocityRes }

// MaxIFFrequency is the beat frequency of a target at MaxRange, or the
// Nyquist frequency when no design range is set.
func (p RadarParameters) MaxIFFrequency() float64 { return p.maxIF }

// MaxVelocity is the largest velocity on the reported Doppler axis.
func (p RadarParameters) MaxVelocity() float64 {
	return p.velocityRes * float64(p.cfg.ChirpsPerFrame/2)
}

// RangeForFrequency maps a beat frequency to range: f*c/(2*slope).
func (p RadarParameters) RangeForFrequency(f float64) float64 {
	return f * p.cfg.SpeedOfLight / (2 * p.slope)
}
