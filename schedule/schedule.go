// Package schedule mirrors the controller's tap timing algorithms on the
// host. The controller's own scheduler is authoritative during a run; this
// mirror exists for predictive display, host-replay mode, and run metadata.
package schedule

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/stentorlab/taprig"
)

const (
	// MinDelay floors every computed interval so a misconfigured rate can
	// never busy-loop the dispatcher.
	MinDelay = time.Millisecond
	// MaxDelay caps a single Poisson draw. With sane rates this is never
	// reached; it bounds the wait after an extreme tail sample.
	MaxDelay = time.Hour

	minUniform = 1e-12
)

var (
	ErrNotPositive = errors.New("schedule: parameter must be > 0")
	ErrIdle        = errors.New("schedule: no timing algorithm configured")
)

// Scheduler produces inter-arrival delays for tap stimuli.
//
// Periodic mode returns the configured period exactly. Random mode samples
// an exponential distribution with the configured mean rate by inverse-CDF:
// delay = -ln(U)/lambda, U in (0,1]. A fixed seed makes the sequence
// reproducible; seed 0 selects a fresh time-derived stream per run.
type Scheduler struct {
	mode       taprig.Mode
	period     time.Duration
	ratePerMin float64
	seed       uint32
	rng        *rand.Rand
}

func New() *Scheduler {
	s := &Scheduler{mode: taprig.ModeIdle}
	s.SetSeed(0)
	return s
}

// SetSeed pins the random stream. Seed 0 returns to automatic entropy:
// each subsequent run gets a stream derived from the wall clock.
func (s *Scheduler) SetSeed(seed uint32) {
	s.seed = seed
	if seed == 0 {
		now := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(now, now>>32))
		return
	}
	s.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

func (s *Scheduler) Seed() uint32 { return s.seed }

func (s *Scheduler) Mode() taprig.Mode { return s.mode }

// ConfigurePeriodic arms fixed-interval mode.
func (s *Scheduler) ConfigurePeriodic(period time.Duration) error {
	if period <= 0 {
		return ErrNotPositive
	}
	s.mode = taprig.ModePeriodic
	s.period = period
	return nil
}

// ConfigureRandom arms Poisson mode with the given mean taps per minute.
func (s *Scheduler) ConfigureRandom(ratePerMin float64) error {
	if ratePerMin <= 0 {
		return ErrNotPositive
	}
	s.mode = taprig.ModeRandom
	s.ratePerMin = ratePerMin
	return nil
}

// Apply arms the scheduler from a full config snapshot.
func (s *Scheduler) Apply(cfg taprig.ScheduleConfig) error {
	s.SetSeed(cfg.Seed)
	switch cfg.Mode {
	case taprig.ModePeriodic:
		return s.ConfigurePeriodic(cfg.Period)
	case taprig.ModeRandom:
		return s.ConfigureRandom(cfg.RatePerMin)
	default:
		s.mode = taprig.ModeIdle
		return nil
	}
}

// NextDelay returns the delay until the next scheduled tap.
func (s *Scheduler) NextDelay() (time.Duration, error) {
	switch s.mode {
	case taprig.ModePeriodic:
		if s.period < MinDelay {
			return MinDelay, nil
		}
		return s.period, nil
	case taprig.ModeRandom:
		lambdaPerMS := s.ratePerMin / 60000.0
		u := s.rng.Float64()
		if u < minUniform {
			u = minUniform
		}
		ms := -math.Log(u) / lambdaPerMS
		return clampDelay(time.Duration(ms * float64(time.Millisecond))), nil
	default:
		return 0, ErrIdle
	}
}

// clampDelay bounds a random draw; the exponential tail is unbounded.
func clampDelay(d time.Duration) time.Duration {
	if d < MinDelay {
		return MinDelay
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

// Descriptor reports the armed algorithm for run metadata.
type Descriptor struct {
	Mode       string   `json:"mode"`
	PeriodSec  *float64 `json:"period_sec,omitempty"`
	RatePerMin *float64 `json:"rate_per_min,omitempty"`
	Seed       uint32   `json:"seed"`
}

func (s *Scheduler) Descriptor() Descriptor {
	d := Descriptor{Mode: s.mode.String(), Seed: s.seed}
	switch s.mode {
	case taprig.ModePeriodic:
		sec := s.period.Seconds()
		d.PeriodSec = &sec
	case taprig.ModeRandom:
		rate := s.ratePerMin
		d.RatePerMin = &rate
	}
	return d
}
