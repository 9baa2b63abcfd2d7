package controller

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const runPrefix = "run_"

// RunInfo summarizes one saved run directory for browsing and export.
type RunInfo struct {
	RunID      string
	Path       string
	StartedAt  string
	SerialPort string
	Mode       string
	PeriodSec  float64
	RatePerMin float64
	Stepsize   int
	TapCount   int
	DurationS  float64
}

// RunLibrary discovers saved runs under a base directory.
type RunLibrary struct {
	Base string
}

// ListRuns returns summaries for every run directory, newest first.
// Directories with unreadable metadata are skipped rather than failing the
// whole listing.
func (rl RunLibrary) ListRuns() ([]RunInfo, error) {
	entries, err := os.ReadDir(rl.Base)
	if err != nil {
		return nil, fmt.Errorf("error reading run library: %w", err)
	}

	var runs []RunInfo
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runPrefix) {
			continue
		}
		info, err := loadRunInfo(filepath.Join(rl.Base, e.Name()))
		if err != nil {
			continue
		}
		runs = append(runs, info)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Path > runs[j].Path })
	return runs, nil
}

// DeleteRun removes a run directory by its id.
func (rl RunLibrary) DeleteRun(runID string) error {
	runs, err := rl.ListRuns()
	if err != nil {
		return err
	}
	for _, r := range runs {
		if r.RunID == runID || strings.HasSuffix(filepath.Base(r.Path), runID) {
			return os.RemoveAll(r.Path)
		}
	}
	return fmt.Errorf("run %q not found", runID)
}

func loadRunInfo(dir string) (RunInfo, error) {
	info := RunInfo{RunID: filepath.Base(dir), Path: dir}

	data, err := os.ReadFile(filepath.Join(dir, "run.json"))
	if err == nil {
		var meta RunMeta
		if err := json.Unmarshal(data, &meta); err == nil {
			if meta.RunID != "" {
				info.RunID = meta.RunID
			}
			info.StartedAt = meta.StartedAt
			info.SerialPort = meta.SerialPort
			info.Mode = meta.Mode
			info.PeriodSec = meta.PeriodSec
			info.RatePerMin = meta.RatePerMin
			info.Stepsize = meta.Stepsize
		}
	}

	info.TapCount, info.DurationS = tapStats(filepath.Join(dir, "taps.csv"))
	return info, nil
}

// tapStats derives count and duration from the host monotonic column.
func tapStats(path string) (int, float64) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil || len(rows) < 2 {
		return 0, 0
	}

	hostCol := -1
	for i, name := range rows[0] {
		if name == "t_host_ms" {
			hostCol = i
			break
		}
	}
	taps := rows[1:]
	if hostCol < 0 {
		return len(taps), 0
	}

	first, err1 := strconv.ParseFloat(taps[0][hostCol], 64)
	last, err2 := strconv.ParseFloat(taps[len(taps)-1][hostCol], 64)
	if err1 != nil || err2 != nil || last < first {
		return len(taps), 0
	}
	return len(taps), (last - first) / 1000.0
}
