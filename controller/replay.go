package controller

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/stentorlab/taprig"
	"github.com/stentorlab/taprig/protocol"
)

// LoadTapOffsets reads a replay script: either a previous run's taps.csv
// (offsets derived from the t_host_ms column, rebased to zero) or a bare
// one-column CSV of millisecond offsets.
func LoadTapOffsets(path string) ([]time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening replay script: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading replay script: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("replay script %s is empty", path)
	}

	col := 0
	start := 0
	for i, name := range rows[0] {
		if name == "t_host_ms" {
			col = i
			start = 1
			break
		}
	}

	var offsets []time.Duration
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		ms, err := strconv.ParseFloat(row[col], 64)
		if err != nil {
			return nil, fmt.Errorf("bad replay offset %q: %w", row[col], err)
		}
		offsets = append(offsets, time.Duration(ms*float64(time.Millisecond)))
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("replay script %s has no offsets", path)
	}

	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	base := offsets[0]
	for i := range offsets {
		offsets[i] -= base
	}
	return offsets, nil
}

// Replay drives the firmware through a recorded tap sequence: the
// controller idles in host-replay mode while the host requests a manual
// tap at every offset. Blocks until the script completes or ctx ends.
func (c *Coordinator) Replay(ctx context.Context, offsets []time.Duration, stepsize int) error {
	if len(offsets) == 0 {
		return fmt.Errorf("empty replay schedule")
	}
	if c.runActive {
		return fmt.Errorf("a run is already active")
	}

	cfg := taprig.ScheduleConfig{Mode: taprig.ModeIdle, Stepsize: taprig.ClampStepsize(stepsize)}
	if err := c.link.Send(protocol.EncodeConfig(cfg)); err != nil {
		return err
	}
	if err := c.link.Send(string(protocol.CmdEnable) + "\n"); err != nil {
		return err
	}

	runLog, err := c.newRunLogger(cfg)
	if err != nil {
		return err
	}
	c.runLog = runLog
	c.activeCfg = cfg
	c.resetSession(time.Now())
	defer c.finishRun("replay complete")

	c.log.Info("replay started", zap.Int("taps", len(offsets)))

	start := time.Now()
	for i, offset := range offsets {
		due := start.Add(offset)
		for {
			wait := time.Until(due)
			if wait <= 0 {
				break
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case tl, ok := <-c.link.Lines():
				timer.Stop()
				if ok {
					c.HandleLine(tl)
				}
			case <-timer.C:
			}
		}
		if err := c.ManualTap(); err != nil {
			return fmt.Errorf("replay tap %d failed: %w", i+1, err)
		}
	}

	// drain trailing acknowledgments briefly so the log captures them
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case tl, ok := <-c.link.Lines():
			if !ok {
				return nil
			}
			c.HandleLine(tl)
		case <-deadline:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
