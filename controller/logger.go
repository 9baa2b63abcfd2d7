package controller

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stentorlab/taprig"
	"github.com/stentorlab/taprig/schedule"
)

var tapsHeader = []string{
	"run_id",
	"tap_id",
	"tap_uuid",
	"t_host_ms",
	"t_host_iso",
	"t_fw_ms",
	"mode",
	"stepsize",
	"mark",
	"notes",
	"frame_preview_idx",
	"frame_recorded_idx",
	"recording_path",
}

// RunMeta is the run.json payload written when a run directory is created.
type RunMeta struct {
	RunID         string              `json:"run_id"`
	StartedAt     string              `json:"started_at"`
	AppVersion    string              `json:"app_version"`
	SerialPort    string              `json:"serial_port"`
	Mode          string              `json:"mode"`
	PeriodSec     float64             `json:"period_sec,omitempty"`
	RatePerMin    float64             `json:"rate_per_min,omitempty"`
	Stepsize      int                 `json:"stepsize"`
	Seed          uint32              `json:"seed"`
	Calibration   float64             `json:"period_calibration"`
	RecordingPath string              `json:"recording_path,omitempty"`
	Scheduler     schedule.Descriptor `json:"scheduler"`
}

// RunLogger writes the per-run directory: run.json once, then one taps.csv
// row per delivered tap. Rows are flushed immediately so a crash mid-run
// loses at most the in-flight tap.
type RunLogger struct {
	RunID string
	Dir   string

	file   *os.File
	writer *csv.Writer
	nextID int
}

// NewRunLogger creates run_<timestamp>_<token> under outDir and writes the
// metadata file.
func NewRunLogger(outDir string, meta RunMeta) (*RunLogger, error) {
	ts := time.Now().Format("20060102_150405")
	token := strings.ToUpper(uuid.NewString()[:6])
	dir := filepath.Join(outDir, fmt.Sprintf("run_%s_%s", ts, token))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating run dir: %w", err)
	}

	if meta.RunID == "" {
		meta.RunID = "run_" + ts + "_" + token
	}
	if meta.StartedAt == "" {
		meta.StartedAt = ts
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error encoding run.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), metaBytes, 0o644); err != nil {
		return nil, fmt.Errorf("error writing run.json: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "taps.csv"))
	if err != nil {
		return nil, fmt.Errorf("error creating taps.csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(tapsHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("error writing taps.csv header: %w", err)
	}
	w.Flush()

	return &RunLogger{RunID: meta.RunID, Dir: dir, file: f, writer: w}, nil
}

// LogTap appends one anchored tap record. Missing optional fields (no
// controller ack, no active recording) stay empty, never guessed.
func (l *RunLogger) LogTap(ev taprig.TapEvent, notes string) error {
	l.nextID++

	fwMS := ""
	if ev.ControllerMS > 0 {
		fwMS = strconv.FormatFloat(ev.ControllerMS, 'f', 3, 64)
	}

	row := []string{
		l.RunID,
		strconv.Itoa(l.nextID),
		ev.ID,
		strconv.FormatInt(ev.HostMS, 10),
		ev.HostWall.Format(time.RFC3339Nano),
		fwMS,
		ev.Mode.String(),
		strconv.Itoa(ev.Stepsize),
		ev.Origin.String(),
		notes,
		strconv.Itoa(ev.PreviewFrame),
		strconv.Itoa(ev.RecordedFrame),
		ev.RecordingPath,
	}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("error writing tap row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Taps reports how many rows have been written.
func (l *RunLogger) Taps() int { return l.nextID }

func (l *RunLogger) Close() error {
	l.writer.Flush()
	return l.file.Close()
}
