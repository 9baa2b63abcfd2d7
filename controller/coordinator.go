package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stentorlab/taprig"
	"github.com/stentorlab/taprig/protocol"
	"github.com/stentorlab/taprig/schedule"
)

const recentIntervalWindow = 10

// Observer receives anchored tap events and run lifecycle changes. The
// status line, raster chart, and the twchart client all hang off this.
type Observer interface {
	OnTap(ev taprig.TapEvent)
	OnRunStarted(cfg taprig.ScheduleConfig)
	OnRunStopped(summary taprig.Summary)
}

// FrameSource supplies the video collaborator's frame indices current at
// tap dispatch time. The zero implementation reports no frames.
type FrameSource interface {
	PreviewFrame() int
	RecordedFrame() int
	RecordingPath() string
}

type noFrames struct{}

func (noFrames) PreviewFrame() int     { return 0 }
func (noFrames) RecordedFrame() int    { return 0 }
func (noFrames) RecordingPath() string { return "" }

// Coordinator owns the host side of a run: it arms the controller over the
// link, mirrors the schedule for prediction, reconciles tap acknowledgments
// into anchored TapEvents, and feeds the drift-calibration store.
//
// The controller's acknowledgment is ground truth for execution time; the
// host mirror is advisory. Coordinator methods are driven from a single
// goroutine (the CLI loop); the link delivers lines on a channel consumed
// by that same loop, so session state needs no locking.
type Coordinator struct {
	cfg    Config
	link   Link
	sched  *schedule.Scheduler
	calib  *CalibrationStore
	log    *zap.Logger
	frames FrameSource

	observers []Observer
	epoch     time.Time

	// session state, reset together on every activation
	runActive      bool
	awaitingSwitch bool
	configured     bool
	activeCfg      taprig.ScheduleConfig
	activePort     string
	calibFactor    float64
	runStart       time.Time
	taps           int
	pendingManual  int
	lastSeed       uint32

	firstFwMS   float64
	lastFwMS    float64
	firstHostAt time.Time
	lastHostAt  time.Time

	recentIntervals []time.Duration
	lastTapAt       time.Time

	runLog *RunLogger
}

// NewCoordinator wires the coordinator. A nil logger or frame source is
// replaced with a no-op implementation.
func NewCoordinator(cfg Config, link Link, calib *CalibrationStore, log *zap.Logger, frames FrameSource) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if frames == nil {
		frames = noFrames{}
	}
	return &Coordinator{
		cfg:         cfg,
		link:        link,
		sched:       schedule.New(),
		calib:       calib,
		log:         log,
		frames:      frames,
		epoch:       time.Now(),
		calibFactor: 1.0,
		activePort:  cfg.SerialPort,
	}
}

func (c *Coordinator) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Scheduler exposes the host mirror for prediction display.
func (c *Coordinator) Scheduler() *schedule.Scheduler { return c.sched }

func (c *Coordinator) hostMS(at time.Time) int64 {
	return at.Sub(c.epoch).Milliseconds()
}

// StartRun applies calibration, sends the configuration, arms logging, and
// enables the motor. The run itself begins when the controller reports
// MODE_ACTIVATED (switch flipped or already on).
func (c *Coordinator) StartRun(cfg taprig.ScheduleConfig) error {
	if c.runActive {
		return errors.New("a run is already active")
	}

	cfg.Stepsize = taprig.ClampStepsize(cfg.Stepsize)
	effective := cfg
	c.calibFactor = 1.0
	if cfg.Mode == taprig.ModePeriodic && c.calib != nil {
		factor, err := c.calib.Lookup(c.activePort)
		if errors.Is(err, ErrDriftUnbounded) {
			c.log.Warn("calibration distrusted, using nominal period",
				zap.String("port", c.activePort), zap.Error(err))
		} else if err != nil {
			return err
		}
		c.calibFactor = factor
		effective.Period = time.Duration(float64(cfg.Period) * factor)
	}

	if err := c.sched.Apply(cfg); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	if cfg.Seed != 0 {
		if err := c.link.Send(protocol.EncodeSeed(cfg.Stepsize, cfg.Seed)); err != nil {
			return err
		}
	}
	if err := c.link.Send(protocol.EncodeConfig(effective)); err != nil {
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
	c.configured = false
	c.awaitingSwitch = true
	c.resetSession(time.Time{})
	c.log.Info("configuration sent",
		zap.String("mode", cfg.Mode.String()),
		zap.Float64("calibration", c.calibFactor))
	return nil
}

// FlashConfig sends the configuration without arming a logger, for testing
// hardware movement before committing to a logged run.
func (c *Coordinator) FlashConfig(cfg taprig.ScheduleConfig) error {
	cfg.Stepsize = taprig.ClampStepsize(cfg.Stepsize)
	if err := c.sched.Apply(cfg); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if err := c.link.Send(protocol.EncodeConfig(cfg)); err != nil {
		return err
	}
	c.activeCfg = cfg
	c.configured = false
	c.awaitingSwitch = true
	c.resetSession(time.Time{})
	return c.link.Send(string(protocol.CmdEnable) + "\n")
}

func (c *Coordinator) newRunLogger(cfg taprig.ScheduleConfig) (*RunLogger, error) {
	meta := RunMeta{
		SerialPort:    c.activePort,
		Mode:          cfg.Mode.String(),
		Stepsize:      cfg.Stepsize,
		Seed:          cfg.Seed,
		Calibration:   c.calibFactor,
		RecordingPath: c.frames.RecordingPath(),
		Scheduler:     c.sched.Descriptor(),
	}
	switch cfg.Mode {
	case taprig.ModePeriodic:
		meta.PeriodSec = cfg.Period.Seconds()
	case taprig.ModeRandom:
		meta.RatePerMin = cfg.RatePerMin
	}
	return NewRunLogger(c.cfg.OutDir, meta)
}

// StopRun ends the active run from the host side: disables the motor,
// folds the run into the calibration store, and closes the log.
func (c *Coordinator) StopRun() error {
	if err := c.link.Send(string(protocol.CmdDisable) + "\n"); err != nil {
		c.log.Warn("disable on stop failed", zap.Error(err))
	}
	c.finishRun("host stop")
	return nil
}

// ManualTap requests one extra tap. Accepted in any mode; the next tap
// acknowledgment is matched to it by sequence and tagged origin=manual.
func (c *Coordinator) ManualTap() error {
	if err := c.link.Send(string(protocol.CmdTap) + "\n"); err != nil {
		return err
	}
	c.pendingManual++
	return nil
}

// Forward passes a raw single-character command through (enable, disable,
// jog, stepsize, help).
func (c *Coordinator) Forward(cmd byte) error {
	return c.link.Send(string(cmd) + "\n")
}

func (c *Coordinator) resetSession(startAt time.Time) {
	// counters and deadline state always reset together so a reactivation
	// can never inherit a stale schedule
	c.runStart = startAt
	c.taps = 0
	c.firstFwMS = -1
	c.lastFwMS = -1
	c.firstHostAt = time.Time{}
	c.lastHostAt = time.Time{}
	c.recentIntervals = c.recentIntervals[:0]
	c.lastTapAt = time.Time{}
}

// HandleLine reconciles one controller line into session state. Every
// decoded variant is handled; malformed lines are logged and excluded from
// the anchored event stream.
func (c *Coordinator) HandleLine(tl TimedLine) {
	decoded, err := protocol.Decode(tl.Text)
	if err != nil {
		c.log.Warn("malformed controller line", zap.String("line", tl.Text), zap.Error(err))
		return
	}

	switch line := decoded.(type) {
	case protocol.TapAck:
		c.onTapAck(line, tl.At)
	case protocol.ModeActivated:
		c.onActivated(tl.At)
	case protocol.ModeDeactivated:
		c.onDeactivated()
	case protocol.SwitchChanged:
		c.log.Info("switch", zap.Bool("on", line.On))
	case protocol.RunSummary:
		c.log.Info("controller run summary",
			zap.String("mode", line.Mode.String()),
			zap.Float64("elapsed_ms", line.ElapsedMS),
			zap.Int("taps", line.TapCount),
			zap.Float64("rate_per_min", line.RatePerMin))
	case protocol.ConfigOK:
		c.configured = true
		c.log.Info("configuration acknowledged",
			zap.String("mode", line.Mode.String()),
			zap.Float64("period_ms", line.PeriodMS),
			zap.Int("stepsize", line.Stepsize))
	case protocol.ConfigErr:
		c.log.Error("configuration rejected", zap.String("reason", line.Reason))
		c.finishRun("configuration rejected: " + line.Reason)
	case protocol.StepsizeChanged:
		c.activeCfg.Stepsize = line.Stepsize
		c.log.Info("stepsize changed", zap.Int("stepsize", line.Stepsize))
	case protocol.SeedReport:
		c.lastSeed = line.Seed
		c.log.Info("rng seed", zap.Bool("auto", line.Auto), zap.Uint32("seed", line.Seed))
	case protocol.Hello:
		c.log.Info("controller hello", zap.String("firmware", line.Firmware))
	case protocol.Fault:
		// a hardware fault halts the run; it is not an operator stop
		c.log.Error("hardware fault", zap.String("reason", line.Reason))
		c.finishRun("hardware fault: " + line.Reason)
	case protocol.Info:
		c.log.Info("controller", zap.String("text", line.Text))
	}
}

func (c *Coordinator) onTapAck(ack protocol.TapAck, at time.Time) {
	origin := taprig.OriginScheduled
	if c.pendingManual > 0 {
		c.pendingManual--
		origin = taprig.OriginManual
	}

	c.taps++
	ev := taprig.TapEvent{
		RunID:         c.runID(),
		Seq:           c.taps,
		ID:            uuid.NewString(),
		HostMS:        c.hostMS(at),
		HostWall:      time.Now(),
		ControllerMS:  ack.ControllerMS,
		Mode:          c.activeCfg.Mode,
		Stepsize:      c.activeCfg.Stepsize,
		Origin:        origin,
		PreviewFrame:  c.frames.PreviewFrame(),
		RecordedFrame: c.frames.RecordedFrame(),
		RecordingPath: c.frames.RecordingPath(),
	}
	if origin == taprig.OriginManual && !c.runActive {
		ev.Mode = taprig.ModeIdle
	}

	if c.runActive && origin == taprig.OriginScheduled {
		if c.firstFwMS < 0 {
			c.firstFwMS = ack.ControllerMS
			c.firstHostAt = at
		}
		c.lastFwMS = ack.ControllerMS
		c.lastHostAt = at
	}
	if !c.lastTapAt.IsZero() {
		interval := at.Sub(c.lastTapAt)
		if interval > 0 {
			c.recentIntervals = append(c.recentIntervals, interval)
			if len(c.recentIntervals) > recentIntervalWindow {
				c.recentIntervals = c.recentIntervals[1:]
			}
		}
	}
	c.lastTapAt = at

	if c.runLog != nil {
		if err := c.runLog.LogTap(ev, ""); err != nil {
			c.log.Error("tap log write failed", zap.Error(err))
		}
	}
	for _, o := range c.observers {
		o.OnTap(ev)
	}
	c.log.Debug("tap",
		zap.Int("seq", ev.Seq),
		zap.Float64("controller_ms", ev.ControllerMS),
		zap.String("origin", ev.Origin.String()))
}

func (c *Coordinator) onActivated(at time.Time) {
	c.runActive = true
	c.awaitingSwitch = false
	c.resetSession(at)
	for _, o := range c.observers {
		o.OnRunStarted(c.activeCfg)
	}
	c.log.Info("run activated", zap.String("mode", c.activeCfg.Mode.String()))
}

func (c *Coordinator) onDeactivated() {
	if !c.runActive && !c.awaitingSwitch {
		return
	}
	c.finishRun("controller deactivated")
}

func (c *Coordinator) finishRun(reason string) {
	summary := c.sessionSummary()

	c.finalizeCalibration()
	if c.runLog != nil {
		if err := c.runLog.Close(); err != nil {
			c.log.Warn("run log close failed", zap.Error(err))
		}
		c.runLog = nil
	}

	wasActive := c.runActive || c.awaitingSwitch
	c.runActive = false
	c.awaitingSwitch = false
	c.configured = false
	c.resetSession(time.Time{})

	if wasActive {
		for _, o := range c.observers {
			o.OnRunStopped(summary)
		}
		c.log.Info("run stopped",
			zap.String("reason", reason),
			zap.Duration("elapsed", summary.Elapsed),
			zap.Int("taps", summary.TapCount),
			zap.Float64("rate_per_min", summary.ObservedRatePerMin))
	}
}

func (c *Coordinator) sessionSummary() taprig.Summary {
	s := taprig.Summary{Mode: c.activeCfg.Mode, TapCount: c.taps}
	if !c.runStart.IsZero() && !c.lastHostAt.IsZero() {
		s.Elapsed = c.lastHostAt.Sub(c.runStart)
	}
	if s.Mode == taprig.ModeRandom && s.Elapsed > 0 {
		s.ObservedRatePerMin = float64(s.TapCount) / s.Elapsed.Minutes()
	}
	return s
}

// finalizeCalibration folds the finished run's observed clock ratio into
// the store. Periodic runs only: drift has no defined meaning against a
// random schedule.
func (c *Coordinator) finalizeCalibration() {
	if c.calib == nil || c.activeCfg.Mode != taprig.ModePeriodic {
		return
	}
	if c.firstFwMS < 0 || c.lastFwMS <= c.firstFwMS {
		return
	}
	hostElapsed := c.lastHostAt.Sub(c.firstHostAt)
	if hostElapsed.Seconds() < c.cfg.Calibration.MinRunSeconds {
		return
	}

	boardElapsedMS := c.lastFwMS - c.firstFwMS
	ratio := boardElapsedMS / float64(hostElapsed.Milliseconds())
	if ratio <= 0 {
		return
	}

	rec := c.calib.Update(c.activePort, ratio)
	if err := c.calib.Save(); err != nil {
		c.log.Warn("calibration save failed", zap.Error(err))
		return
	}
	c.log.Info("calibration updated",
		zap.String("port", c.activePort),
		zap.Float64("ratio", ratio),
		zap.Float64("factor", rec.Factor),
		zap.Int("samples", rec.Samples))
}

// RunActive reports whether a controller run is in progress.
func (c *Coordinator) RunActive() bool { return c.runActive }

// Taps reports the current run's tap count.
func (c *Coordinator) Taps() int { return c.taps }

// RecentRatePerMin derives taps/min from the last few inter-tap intervals,
// or 0 when there is not enough history.
func (c *Coordinator) RecentRatePerMin() float64 {
	if len(c.recentIntervals) == 0 {
		return 0
	}
	var total time.Duration
	for _, iv := range c.recentIntervals {
		total += iv
	}
	avg := total / time.Duration(len(c.recentIntervals))
	if avg <= 0 {
		return 0
	}
	return time.Minute.Seconds() / avg.Seconds()
}

func (c *Coordinator) runID() string {
	if c.runLog != nil {
		return c.runLog.RunID
	}
	return ""
}
