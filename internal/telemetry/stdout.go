package telemetry

import (
	"github.com/rjboer/gophaser/internal/logging"
	"github.com/rjboer/gophaser/internal/phaser"
)

// Reporter captures results as they are produced.
type Reporter interface {
	ReportSweep(resp phaser.AngleResponse)
	ReportDetection(d Detection)
	ReportCalibration(vec phaser.CalibrationVector)
}

// StdoutReporter logs results through the structured logger.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger.With(logging.Subsystem("telemetry"))}
}

func (r StdoutReporter) ReportSweep(resp phaser.AngleResponse) {
	sample, ok := SampleFromResponse(resp)
	if !ok {
		r.logger.Warn("empty sweep", logging.F("run_id", resp.RunID))
		return
	}
	r.logger.Info("angle of arrival",
		logging.F("run_id", sample.RunID),
		logging.F("angle_deg", sample.AngleDeg),
		logging.F("steering_phase_deg", sample.SteeringPhaseDeg),
		logging.F("delta_db", sample.DeltaDB),
		logging.F("monopulse_phase_rad", sample.MonopulsePhaseRad),
		logging.F("points", sample.Points),
	)
}

func (r StdoutReporter) ReportDetection(d Detection) {
	fields := []logging.Field{
		logging.F("run_id", d.RunID),
		logging.F("range_m", d.RangeM),
		logging.F("velocity_mps", d.Velocity),
	}
	if d.RangeSNR != 0 {
		fields = append(fields, logging.F("snr_db", d.RangeSNR))
	}
	r.logger.Info("target detected", fields...)
}

func (r StdoutReporter) ReportCalibration(vec phaser.CalibrationVector) {
	r.logger.Info("calibration active",
		logging.F("run_id", vec.RunID),
		logging.F("channel_db", vec.Channel),
		logging.F("gain", vec.Gain),
		logging.F("phase_deg", vec.Phase),
	)
}

// MultiReporter fans results out to multiple destinations.
type MultiReporter []Reporter

func (m MultiReporter) ReportSweep(resp phaser.AngleResponse) {
	for _, r := range m {
		if r != nil {
			r.ReportSweep(resp)
		}
	}
}

func (m MultiReporter) ReportDetection(d Detection) {
	for _, r := range m {
		if r != nil {
			r.ReportDetection(d)
		}
	}
}

func (m MultiReporter) ReportCalibration(vec phaser.CalibrationVector) {
	for _, r := range m {
		if r != nil {
			r.ReportCalibration(vec)
		}
	}
}

var (
	_ Reporter = (*Hub)(nil)
	_ Reporter = StdoutReporter{}
	_ Reporter = MultiReporter(nil)
)
