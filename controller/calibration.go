package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrDriftUnbounded means a stored correction factor is outside the sane
// band. It signals a disconnection or clock reset rather than genuine
// drift; callers fall back to the uncorrected interval and warn.
var ErrDriftUnbounded = errors.New("calibration correction outside sane bound")

// CalibrationRecord is the per-channel clock-skew correction. Factor is
// multiplicative: effective_period = nominal_period * Factor. Samples
// counts contributing runs so smoothing weight is visible in the file.
type CalibrationRecord struct {
	Factor    float64   `json:"factor"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalibrationStore persists correction factors keyed by channel identity
// (the serial port path). It is read once at run start and written once at
// run stop; nothing mutates the file during an active run.
type CalibrationStore struct {
	cfg     CalibrationConfig
	records map[string]CalibrationRecord
}

// LoadCalibration reads the store from cfg.Path. A missing file yields an
// empty store.
func LoadCalibration(cfg CalibrationConfig) (*CalibrationStore, error) {
	s := &CalibrationStore{cfg: cfg, records: map[string]CalibrationRecord{}}

	data, err := os.ReadFile(cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading calibration file: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("error parsing calibration file: %w", err)
	}
	return s, nil
}

// Save writes the store to cfg.Path, creating the directory if needed.
func (s *CalibrationStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("error creating calibration dir: %w", err)
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding calibration: %w", err)
	}
	return os.WriteFile(s.cfg.Path, data, 0o644)
}

// normalizedKey strips the trailing enumeration digits from a port path so
// /dev/ttyUSB0 and /dev/ttyUSB1 share a record when the adapter re-numbers
// across reconnects.
func normalizedKey(port string) string {
	base := strings.TrimRight(port, "0123456789")
	if base == "" {
		return port
	}
	return base
}

// Lookup returns the correction factor to apply for the channel. Unknown
// channels get 1.0. A factor outside the sane band returns 1.0 with
// ErrDriftUnbounded so the caller can surface the warning.
func (s *CalibrationStore) Lookup(port string) (float64, error) {
	rec, ok := s.records[port]
	if !ok {
		rec, ok = s.records[normalizedKey(port)]
	}
	if !ok || rec.Samples == 0 {
		return 1.0, nil
	}

	maxC := s.cfg.MaxCorrection
	if rec.Factor > maxC || rec.Factor < 1/maxC {
		return 1.0, fmt.Errorf("%w: %s has factor %.6f", ErrDriftUnbounded, port, rec.Factor)
	}
	return rec.Factor, nil
}

// Update folds one run's observed correction ratio into the channel's
// record using exponential smoothing, so a single noisy run cannot swing
// the factor. Ratio is observed_interval / nominal_interval.
func (s *CalibrationStore) Update(port string, ratio float64) CalibrationRecord {
	key := normalizedKey(port)
	rec, ok := s.records[key]

	alpha := s.cfg.SmoothingAlpha
	if !ok || rec.Samples == 0 {
		rec.Factor = ratio
	} else {
		rec.Factor = alpha*ratio + (1-alpha)*rec.Factor
	}
	rec.Samples++
	rec.UpdatedAt = time.Now()

	s.records[key] = rec
	if port != key {
		s.records[port] = rec
	}
	return rec
}

// Record returns the stored record for a channel, if any.
func (s *CalibrationStore) Record(port string) (CalibrationRecord, bool) {
	rec, ok := s.records[port]
	if !ok {
		rec, ok = s.records[normalizedKey(port)]
	}
	return rec, ok
}
