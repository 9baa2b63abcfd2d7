package taprig

import "time"

// Mode selects which timing algorithm the scheduler runs. Idle performs no
// scheduled taps.
type Mode int

const (
	ModeIdle Mode = iota
	ModePeriodic
	ModeRandom
)

func (m Mode) String() string {
	switch m {
	case ModePeriodic:
		return "Periodic"
	case ModeRandom:
		return "Random"
	default:
		fallthrough
	case ModeIdle:
		return "Idle"
	}
}

// Origin tags how a tap was requested.
type Origin int

const (
	OriginScheduled Origin = iota
	OriginManual
)

func (o Origin) String() string {
	if o == OriginManual {
		return "manual"
	}
	return "scheduled"
}

// Stepsize bounds for the microstep profile selector (1=full .. 5=1/16).
const (
	MinStepsize = 1
	MaxStepsize = 5
)

// ClampStepsize forces s into the valid microstep range.
func ClampStepsize(s int) int {
	if s < MinStepsize {
		return MinStepsize
	}
	if s > MaxStepsize {
		return MaxStepsize
	}
	return s
}

// ScheduleConfig is the immutable snapshot applied at run start. Exactly one
// of Period or RatePerMin is meaningful depending on Mode.
type ScheduleConfig struct {
	Mode       Mode
	Stepsize   int
	Period     time.Duration // periodic mode
	RatePerMin float64       // random mode, mean taps per minute
	Seed       uint32        // 0 means automatic entropy
}

// LambdaPerMS converts the configured mean rate to an arrival intensity in
// taps per millisecond, the unit the schedulers work in.
func (c ScheduleConfig) LambdaPerMS() float64 {
	return c.RatePerMin / 60000.0
}

// TapEvent is one anchored tap record: both clock domains plus the frame
// indices current at dispatch time. ControllerMS is always the controller's
// own reading, never inferred on the host.
type TapEvent struct {
	RunID         string
	Seq           int
	ID            string
	HostMS        int64
	HostWall      time.Time
	ControllerMS  float64
	Mode          Mode
	Stepsize      int
	Origin        Origin
	PreviewFrame  int
	RecordedFrame int
	RecordingPath string
}

// Summary is emitted when a run stops.
type Summary struct {
	Mode     Mode
	Elapsed  time.Duration
	TapCount int
	// ObservedRatePerMin is only meaningful for random-mode runs.
	ObservedRatePerMin float64
}
