// Package schedule is the controller's run state machine: Idle, Periodic, or
// Random, with deadlines computed on the free-running millisecond clock. It
// touches no hardware so it can be tested on the host.
package schedule

import (
	"errors"
	"math"
)

type Mode uint8

const (
	ModeIdle Mode = iota
	ModePeriodic
	ModeRandom
)

func (m Mode) String() string {
	switch m {
	case ModePeriodic:
		return "P"
	case ModeRandom:
		return "R"
	default:
		return "I"
	}
}

const (
	// MinIntervalMS floors every computed interval so a near-zero period or
	// an extreme Poisson draw cannot busy-loop the actuator.
	MinIntervalMS = 1
	// MaxIntervalMS caps Poisson draws; the exponential tail is unbounded
	// but an hour-long gap means the draw, not the specimen, is the outlier.
	MaxIntervalMS = 60 * 60 * 1000
)

var ErrNotPositive = errors.New("parameter must be positive")

// Summary is the end-of-run report emitted on deactivation.
type Summary struct {
	Mode       Mode
	ElapsedMS  uint32
	TapCount   uint32
	RatePerMin float64 // random mode only
}

// Engine owns one channel's schedule. All times are controller millis
// (uint32, wraps after ~49 days; comparisons are wrap-safe).
type Engine struct {
	mode        Mode
	periodMS    float64
	ratePerMin  float64
	lambdaPerMS float64

	rng        uint32
	pinnedSeed uint32
	pinned     bool

	active    bool
	startMS   uint32
	nextDueMS uint32
	carry     float64
	tapCount  uint32
}

func New() *Engine {
	return &Engine{rng: 1}
}

// ConfigurePeriodic arms a fixed-interval schedule. The period keeps its
// fractional milliseconds; the carry accumulator drains them during the run.
func (e *Engine) ConfigurePeriodic(periodMS float64) error {
	if periodMS <= 0 {
		return ErrNotPositive
	}
	e.mode = ModePeriodic
	e.periodMS = periodMS
	e.ratePerMin = 0
	e.lambdaPerMS = 0
	e.reset(0)
	e.active = false
	return nil
}

// ConfigureRandom arms a Poisson schedule with the given mean rate.
func (e *Engine) ConfigureRandom(ratePerMin float64) error {
	if ratePerMin <= 0 {
		return ErrNotPositive
	}
	e.mode = ModeRandom
	e.ratePerMin = ratePerMin
	e.lambdaPerMS = ratePerMin / 60000.0
	e.periodMS = 0
	e.reset(0)
	e.active = false
	return nil
}

// Clear returns to Idle, dropping any armed schedule.
func (e *Engine) Clear() {
	e.mode = ModeIdle
	e.active = false
	e.reset(0)
}

// PinSeed locks the RNG seed for reproducible runs. Zero returns to
// automatic entropy seeding.
func (e *Engine) PinSeed(v uint32) {
	e.pinnedSeed = v
	e.pinned = v != 0
}

// PinnedSeed reports the locked seed, if any.
func (e *Engine) PinnedSeed() (uint32, bool) {
	return e.pinnedSeed, e.pinned
}

// Seed sets the RNG state directly. A zero state would wedge the generator,
// so it is replaced with a fixed non-zero constant.
func (e *Engine) Seed(v uint32) {
	if v == 0 {
		v = 0xA5A5A5A5
	}
	e.rng = v
}

// Activate starts a run at now. The first tap is due immediately: the next
// Tick call fires it. autoSeed is used only when no seed is pinned.
func (e *Engine) Activate(nowMS uint32, autoSeed uint32) {
	if e.mode == ModeIdle {
		return
	}
	if e.pinned {
		e.Seed(e.pinnedSeed)
	} else {
		e.Seed(autoSeed)
	}
	e.reset(nowMS)
	e.active = true
}

// reset clears counters and the deadline together so a reactivation can
// never inherit a stale deadline or tap count.
func (e *Engine) reset(nowMS uint32) {
	e.startMS = nowMS
	e.nextDueMS = nowMS
	e.carry = 0
	e.tapCount = 0
}

// Deactivate stops the run and returns its summary.
func (e *Engine) Deactivate(nowMS uint32) Summary {
	s := Summary{
		Mode:      e.mode,
		ElapsedMS: nowMS - e.startMS,
		TapCount:  e.tapCount,
	}
	if e.mode == ModeRandom && s.ElapsedMS > 0 {
		s.RatePerMin = float64(s.TapCount) / float64(s.ElapsedMS) * 60000.0
	}
	e.active = false
	e.reset(nowMS)
	return s
}

// Tick polls the schedule. It returns true when a tap is due now, having
// already advanced the deadline and counter; it never blocks.
func (e *Engine) Tick(nowMS uint32) bool {
	if !e.active || e.mode == ModeIdle {
		return false
	}
	// wrap-safe: due when (now - nextDue) is a small positive delta
	if int32(nowMS-e.nextDueMS) < 0 {
		return false
	}

	e.tapCount++
	e.nextDueMS += e.nextInterval()
	return true
}

func (e *Engine) nextInterval() uint32 {
	var raw float64
	switch e.mode {
	case ModePeriodic:
		raw = e.periodMS + e.carry
		whole := math.Floor(raw)
		e.carry = raw - whole
		raw = whole
	case ModeRandom:
		raw = math.Floor(-math.Log(e.uniform()) / e.lambdaPerMS)
		if raw > MaxIntervalMS {
			raw = MaxIntervalMS
		}
	}

	if raw < MinIntervalMS {
		raw = MinIntervalMS
	}
	return uint32(raw)
}

// uniform draws from (0, 1] via a xorshift step, so the logarithm in the
// exponential sampler is always defined.
func (e *Engine) uniform() float64 {
	e.rng ^= e.rng << 13
	e.rng ^= e.rng >> 17
	e.rng ^= e.rng << 5
	return (float64(e.rng>>8) + 1) / float64(1<<24)
}

func (e *Engine) Active() bool     { return e.active }
func (e *Engine) Mode() Mode       { return e.mode }
func (e *Engine) TapCount() uint32 { return e.tapCount }

// PeriodMS reports the configured period for acknowledgments.
func (e *Engine) PeriodMS() float64 { return e.periodMS }

// RatePerMin reports the configured mean rate for acknowledgments.
func (e *Engine) RatePerMin() float64 { return e.ratePerMin }
