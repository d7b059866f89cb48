package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rjboer/gophaser/internal/logging"
	"github.com/rjboer/gophaser/internal/phaser"
)

// Config is the runtime-adjustable part of the hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit  = 1
	maxHistoryLimit  = 10_000
	defaultHistory   = 500
	subscriberBuffer = 16
)

func validateConfig(cfg Config, base Config) (Config, error) {
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// Sample is one angle-of-arrival estimate derived from a sweep.
type Sample struct {
	Timestamp         time.Time `json:"timestamp"`
	RunID             string    `json:"runId"`
	AngleDeg          float64   `json:"angleDeg"`
	SteeringPhaseDeg  float64   `json:"steeringPhaseDeg"`
	DeltaDB           float64   `json:"deltaDb"`
	MonopulsePhaseRad float64   `json:"monopulsePhaseRad"`
	Points            int       `json:"points"`
}

// SampleFromResponse reduces a sweep to its peak.
func SampleFromResponse(resp phaser.AngleResponse) (Sample, bool) {
	peak, ok := resp.Peak()
	if !ok {
		return Sample{}, false
	}
	ts := resp.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Sample{
		Timestamp:         ts,
		RunID:             resp.RunID,
		AngleDeg:          peak.AngleDeg,
		SteeringPhaseDeg:  peak.SteeringPhaseDeg,
		DeltaDB:           peak.DeltaDB,
		MonopulsePhaseRad: peak.MonopulsePhaseRad,
		Points:            len(resp.Points),
	}, true
}

// Detection is a range/velocity estimate from the FMCW path.
type Detection struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId"`
	RangeM    float64   `json:"rangeM"`
	Velocity  float64   `json:"velocity"`
	RangeSNR  float64   `json:"rangeSnr"`
}

// Event kinds published on the live stream.
const (
	KindSweep       = "sweep"
	KindDetection   = "detection"
	KindCalibration = "calibration"
)

// Event is one live update.
type Event struct {
	Kind        string                    `json:"kind"`
	Sample      *Sample                   `json:"sample,omitempty"`
	Detection   *Detection                `json:"detection,omitempty"`
	Calibration *phaser.CalibrationVector `json:"calibration,omitempty"`
}

// Hub keeps the latest results and fans updates out to subscribers. It
// implements Reporter.
type Hub struct {
	mu          sync.RWMutex
	logger      logging.Logger
	started     time.Time
	config      Config
	history     []Sample
	response    *phaser.AngleResponse
	detection   *Detection
	calibration *phaser.CalibrationVector
	sweeps      int
	subscribers map[chan Event]struct{}
}

// NewHub builds a hub keeping at most historyLimit samples (500 when zero).
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg, err := validateConfig(Config{HistoryLimit: historyLimit}, Config{HistoryLimit: defaultHistory})
	if err != nil {
		cfg = Config{HistoryLimit: defaultHistory}
	}
	return &Hub{
		logger:      logger.With(logging.Subsystem("telemetry")),
		started:     time.Now(),
		config:      cfg,
		subscribers: make(map[chan Event]struct{}),
	}
}

// ReportSweep stores the response and appends its peak to the history.
func (h *Hub) ReportSweep(resp phaser.AngleResponse) {
	sample, ok := SampleFromResponse(resp)
	if !ok {
		return
	}
	h.mu.Lock()
	h.response = &resp
	h.sweeps++
	h.history = append(h.history, sample)
	h.trim()
	h.publish(Event{Kind: KindSweep, Sample: &sample})
	h.mu.Unlock()
}

// ReportDetection stores the latest FMCW detection.
func (h *Hub) ReportDetection(d Detection) {
	h.mu.Lock()
	h.detection = &d
	h.publish(Event{Kind: KindDetection, Detection: &d})
	h.mu.Unlock()
}

// ReportCalibration stores the active calibration vector.
func (h *Hub) ReportCalibration(vec phaser.CalibrationVector) {
	h.mu.Lock()
	h.calibration = &vec
	h.publish(Event{Kind: KindCalibration, Calibration: &vec})
	h.mu.Unlock()
}

// publish must be called with the write lock held. Slow subscribers miss
// events rather than block reporters.
func (h *Hub) publish(ev Event) {
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) trim() {
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
}

// History returns a copy of the stored samples, oldest first.
func (h *Hub) History() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.history))
	copy(out, h.history)
	return out
}

// Response returns the latest sweep.
func (h *Hub) Response() (phaser.AngleResponse, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.response == nil {
		return phaser.AngleResponse{}, false
	}
	return *h.response, true
}

// Detection returns the latest range/velocity detection.
func (h *Hub) Detection() (Detection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.detection == nil {
		return Detection{}, false
	}
	return *h.detection, true
}

// Calibration returns the active calibration vector.
func (h *Hub) Calibration() (phaser.CalibrationVector, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.calibration == nil {
		return phaser.CalibrationVector{}, false
	}
	return *h.calibration, true
}

// ConfigSnapshot returns the current configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// AngleStats summarises the angle history.
type AngleStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"meanDeg"`
	StdDev float64 `json:"stdDevDeg"`
}

// Stats returns the mean and spread of the stored angle estimates.
func (h *Hub) Stats() AngleStats {
	history := h.History()
	if len(history) == 0 {
		return AngleStats{}
	}
	angles := make([]float64, len(history))
	for i, s := range history {
		angles[i] = s.AngleDeg
	}
	out := AngleStats{Count: len(angles), Mean: stat.Mean(angles, nil)}
	if len(angles) > 1 {
		out.StdDev = stat.StdDev(angles, nil)
	}
	return out
}

// ProcessInfo describes the serving process.
type ProcessInfo struct {
	Uptime       time.Duration `json:"uptime"`
	NumGoroutine int           `json:"numGoroutine"`
}

// HealthStatus is served on /api/health. Status is "idle" until the first
// sweep arrives.
type HealthStatus struct {
	Status      string      `json:"status"`
	Sweeps      int         `json:"sweeps"`
	Calibrated  bool        `json:"calibrated"`
	Subscribers int         `json:"subscribers"`
	Angles      AngleStats  `json:"angles"`
	Process     ProcessInfo `json:"process"`
}

// Health reports liveness and a summary of what the hub has seen.
func (h *Hub) Health() HealthStatus {
	stats := h.Stats()
	h.mu.RLock()
	defer h.mu.RUnlock()
	status := "idle"
	if h.sweeps > 0 {
		status = "ok"
	}
	return HealthStatus{
		Status:      status,
		Sweeps:      h.sweeps,
		Calibrated:  h.calibration != nil,
		Subscribers: len(h.subscribers),
		Angles:      stats,
		Process: ProcessInfo{
			Uptime:       time.Since(h.started),
			NumGoroutine: runtime.NumGoroutine(),
		},
	}
}

var errNoData = errors.New("no data yet")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if getOnly(w, r) {
		writeJSON(w, http.StatusOK, h.History())
	}
}

func (h *Hub) handleResponse(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	resp, ok := h.Response()
	if !ok {
		http.Error(w, errNoData.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Hub) handleDetection(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	d, ok := h.Detection()
	if !ok {
		http.Error(w, errNoData.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Hub) handleCalibration(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	vec, ok := h.Calibration()
	if !ok {
		http.Error(w, errNoData.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, vec)
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if getOnly(w, r) {
		writeJSON(w, http.StatusOK, h.Health())
	}
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if getOnly(w, r) {
		writeJSON(w, http.StatusOK, h.ConfigSnapshot())
	}
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	cfg, err := validateConfig(incoming, h.config)
	if err == nil {
		h.config = cfg
		h.trim()
	}
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Info("telemetry config updated", logging.F("history_limit", cfg.HistoryLimit))
	writeJSON(w, http.StatusOK, cfg)
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	return err
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// replay history and current state for immediate display
	for _, sample := range h.History() {
		s := sample
		if err := writeEvent(w, Event{Kind: KindSweep, Sample: &s}); err != nil {
			return
		}
	}
	if vec, ok := h.Calibration(); ok {
		if err := writeEvent(w, Event{Kind: KindCalibration, Calibration: &vec}); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("live client dropped", logging.Err(err))
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
