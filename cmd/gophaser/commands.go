package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rjboer/gophaser/internal/config"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/fmcw"
	"github.com/rjboer/gophaser/internal/logging"
	"github.com/rjboer/gophaser/internal/mdns"
	"github.com/rjboer/gophaser/internal/phaser"
	"github.com/rjboer/gophaser/internal/plotting"
	"github.com/rjboer/gophaser/internal/telemetry"
)

func (c *cli) simulateCmd() *cobra.Command {
	var (
		target   fmcw.Target
		noise    float64
		outPath  string
		plotPath string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Synthesize one FMCW frame for a point target and estimate its range and velocity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := c.appConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("noise") {
				if noise < 0 {
					return errs.Input("noise sigma %g must be non-negative", noise)
				}
				cfg.NoiseSigma = noise
			}
			s, err := c.newSession(cfg, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Init(ctx); err != nil {
				return err
			}

			res, err := s.Simulate(ctx, target)
			if err != nil {
				return err
			}
			params, err := fmcw.NewRadarParameters(s.Config().Radar)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDetection(target, res, params))

			if outPath != "" {
				if err := writeJSONFile(outPath, res); err != nil {
					return err
				}
			}
			if plotPath != "" {
				p, err := plotting.Profile(res.Range, "Range profile", "Range (m)")
				if err != nil {
					return err
				}
				if err := plotting.Save(p, plotPath); err != nil {
					return err
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&target.Range0, "range", 100, "initial target range in metres")
	f.Float64Var(&target.Velocity, "velocity", 20, "radial target velocity in m/s, positive receding")
	f.Float64Var(&noise, "noise", 0, "complex noise sigma added to the frame (default backend.noise_sigma)")
	f.StringVar(&outPath, "out", "", "write the full result as JSON to this file")
	f.StringVar(&plotPath, "plot", "", "render the range profile to this image file")
	return cmd
}

func (c *cli) calibrateCmd() *cobra.Command {
	var polarity string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure channel, gain and phase corrections and store them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := c.appConfig()
			if err != nil {
				return err
			}
			if polarity != "" {
				if cfg.Calibration.PhasePolarity, err = parsePolarity(polarity); err != nil {
					return err
				}
			}
			s, err := c.newSession(cfg, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Init(ctx); err != nil {
				return err
			}

			vec, err := s.Calibrate(ctx)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), styleWarn.Render("calibration failed, previous corrections kept"))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCalibration(vec))
			fmt.Fprintln(cmd.OutOrStdout(), kv("saved to", "%s", c.cfg.Calibration.Path))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&polarity, "polarity", "", "phase alignment feature: null or peak (default calibration.phase_polarity)")
	f.Int("averages", 0, "acquisitions averaged per measurement")
	c.bind(f, "calibration.averages", "averages")
	return cmd
}

func parsePolarity(s string) (phaser.PhasePolarity, error) {
	switch s {
	case "null":
		return phaser.PolarityNull, nil
	case "peak":
		return phaser.PolarityPeak, nil
	default:
		return 0, errs.Input("unknown phase polarity %q, want null or peak", s)
	}
}

func (c *cli) sweepCmd() *cobra.Command {
	var (
		plotPath string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep the steering angle once and report the direction of arrival",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := c.appConfig()
			if err != nil {
				return err
			}
			s, err := c.newSession(cfg, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Init(ctx); err != nil {
				return err
			}

			resp, sweepErr := s.Sweep(ctx)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderSweep(resp, sweepErr))
			}
			if sweepErr != nil {
				return sweepErr
			}
			if plotPath != "" {
				p, err := plotting.BeamPattern(resp)
				if err != nil {
					return err
				}
				return plotting.Save(p, plotPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64("step", 0, "steering step in degrees")
	f.Float64("source-angle", 0, "direction of the simulated source in degrees")
	f.Bool("spectral", false, "measure each point at the spectral peak instead of total energy")
	f.StringVar(&plotPath, "plot", "", "render the beam pattern to this image file")
	f.BoolVar(&asJSON, "json", false, "print the angle response as JSON")
	c.bind(f, "array.step_deg", "step")
	c.bind(f, "backend.source_angle_deg", "source-angle")
	c.bind(f, "array.use_spectral_peak", "spectral")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sweep continuously and publish results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			ctx, stop := context.WithCancel(ctx)
			defer stop()

			hub := telemetry.NewHub(c.cfg.Telemetry.HistoryLimit, c.logger)
			reporter := telemetry.MultiReporter{hub, telemetry.NewStdoutReporter(c.logger)}
			cfg, err := c.appConfig()
			if err != nil {
				return err
			}
			s, err := c.newSession(cfg, reporter)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Init(ctx); err != nil {
				return err
			}

			ln, err := net.Listen("tcp", c.cfg.Telemetry.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", c.cfg.Telemetry.Addr, err)
			}
			ws := telemetry.NewWebServer(c.cfg.Telemetry.Addr, hub, c.logger)
			served := make(chan error, 1)
			go func() { served <- ws.Serve(ctx, ln) }()

			if c.cfg.Telemetry.MDNS {
				port, err := mdns.PortFromAddr(ln.Addr().String())
				if err != nil {
					stop()
					<-served
					return err
				}
				ad, err := mdns.Register(c.cfg.Telemetry.Instance, port, []string{"path=/api/live"})
				if err != nil {
					c.logger.Warn("mdns advertisement unavailable", logging.Err(err))
				} else {
					defer ad.Shutdown()
				}
			}

			runErr := s.Run(ctx)
			stop()
			serveErr := <-served
			if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
				return runErr
			}
			return serveErr
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address (default telemetry.addr)")
	f.Bool("mdns", false, "advertise the server over mDNS")
	f.DurationVar(&duration, "duration", 0, "stop after this long; zero runs until interrupted")
	c.bind(f, "telemetry.addr", "addr")
	c.bind(f, "telemetry.mdns", "mdns")
	return cmd
}

func (c *cli) discoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for running gophaser servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hosts, err := mdns.Browse(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHosts(hosts))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to listen for announcements")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or persist the effective configuration",
	}
	save := &cobra.Command{
		Use:   "save <path>",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(c.v, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kv("saved to", "%s", args[0]))
			return nil
		},
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(c.v.AllSettings())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.AddCommand(save, show)
	return cmd
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
