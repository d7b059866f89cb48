package sdr

import (
	"context"
	"strings"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/phaser"
)

// Config carries parameters required to initialize a backend.
type Config struct {
	SampleRate      float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	SignalFreqHz    float64 `mapstructure:"signal_freq_hz" yaml:"signal_freq_hz"`
	ToneOffset      float64 `mapstructure:"tone_offset" yaml:"tone_offset"`
	NumSamples      int     `mapstructure:"num_samples" yaml:"num_samples"`
	ElementSpacingM float64 `mapstructure:"element_spacing_m" yaml:"element_spacing_m"`
	URI             string  `mapstructure:"uri" yaml:"uri"`
}

// Backend is a two-channel receiver behind an 8-element beamformer.
type Backend interface {
	phaser.Acquirer
	phaser.Controller
	Init(ctx context.Context, cfg Config) error
	Close() error
}

// Backends lists the names accepted by Select.
var Backends = []string{"mock"}

// Select returns the backend registered under name with default settings.
func Select(name string) (Backend, error) {
	return NewBackend(name, DefaultMockConfig())
}

// NewBackend returns the backend registered under name; mock describes the
// simulated array when name selects the mock.
func NewBackend(name string, mock MockConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mock", "sim":
		return NewMockPhaser(mock), nil
	default:
		return nil, errs.Configuration("unknown backend %q (available: %s)", name, strings.Join(Backends, ", "))
	}
}
