package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rjboer/gophaser/internal/app"
	"github.com/rjboer/gophaser/internal/calstore"
	"github.com/rjboer/gophaser/internal/config"
	"github.com/rjboer/gophaser/internal/logging"
	"github.com/rjboer/gophaser/internal/sdr"
	"github.com/rjboer/gophaser/internal/telemetry"
)

// cli carries the state shared by every subcommand once the persistent
// pre-run has resolved the configuration.
type cli struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
	logger     logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}
	root := &cobra.Command{
		Use:   "gophaser",
		Short: "Phased-array calibration, beam sweeping and FMCW radar simulation",
		Long: `gophaser drives an 8-element, 2-channel phased array: it calibrates
element gains and phases, sweeps the steering angle to find the direction of
arrival and simulates an FMCW range/Doppler radar.

Settings come from gophaser.yaml (in . or /etc/gophaser), GOPHASER_*
environment variables and flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default gophaser.yaml in . or /etc/gophaser)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("backend", "", "receiver backend (mock)")
	c.bind(pf, "logging.level", "log-level")
	c.bind(pf, "logging.format", "log-format")
	c.bind(pf, "backend.name", "backend")

	root.AddCommand(
		c.simulateCmd(),
		c.calibrateCmd(),
		c.sweepCmd(),
		c.serveCmd(),
		c.discoverCmd(),
		c.configCmd(),
	)
	return root
}

// bind ties a flag to a configuration key so that an explicitly set flag
// overrides file and environment values.
func (c *cli) bind(fs *pflag.FlagSet, key, flag string) {
	if err := c.v.BindPFlag(key, fs.Lookup(flag)); err != nil {
		panic(err)
	}
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.v, c.configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	logging.SetDefault(logger)
	return nil
}

// appConfig maps the loaded settings onto the session configuration.
func (c *cli) appConfig() (app.Config, error) {
	opts, err := c.cfg.ProcessorOptions()
	if err != nil {
		return app.Config{}, err
	}
	return app.Config{
		Backend:       c.cfg.SDRConfig(),
		Sweep:         c.cfg.Array,
		Calibration:   c.cfg.Calibration.CalibrationConfig,
		OperatingGain: c.cfg.Array.GainCode,
		WarmupBuffers: c.cfg.Session.WarmupBuffers,
		Interval:      c.cfg.Session.Interval,
		Radar:         c.cfg.Radar,
		Processor:     &opts,
		NoiseSigma:    c.cfg.Backend.NoiseSigma,
		Seed:          c.cfg.Backend.Seed,
	}, nil
}

// newSession builds a session on the configured backend with retried
// acquisitions and the file calibration store. A nil reporter drops results.
func (c *cli) newSession(cfg app.Config, reporter telemetry.Reporter) (*app.Session, error) {
	backend, err := sdr.NewBackend(c.cfg.Backend.Name, c.cfg.MockConfig())
	if err != nil {
		return nil, err
	}
	acq := sdr.NewRetryingAcquirer(backend, c.cfg.RetryPolicy(), c.logger)
	store := calstore.NewFileStore(c.cfg.Calibration.Path)
	return app.NewSession(backend, acq, store, reporter, c.logger, cfg), nil
}
