package device

import (
	"machine"
	"time"
)

// StepDirConfig wires a step/dir driver board (A4988-style). Mode holds the
// MS1..MS3 microstep-select pins. Enable is active-low on these drivers.
type StepDirConfig struct {
	Step   machine.Pin
	Dir    machine.Pin
	Enable machine.Pin
	Mode   [3]machine.Pin

	StepDelay time.Duration
}

// FourWireConfig wires a directly-driven coil stepper as an alternative
// actuator backend.
type FourWireConfig struct {
	Pins      [4]machine.Pin
	StepCount uint
	RPM       uint
}

// TapConfig has the values that shape one tap: the pulse-train length per
// phase, the dwell between the down and up phases, and the jog distance.
type TapConfig struct {
	TapSteps   int32
	JogSteps   int32
	PhaseDwell time.Duration
}
