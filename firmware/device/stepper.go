package device

import (
	"errors"
	"machine"
	"time"
)

const defaultStepDelay = 400 * time.Microsecond

// Motor is the actuator backend. StepDirMotor drives an A4988-style driver
// board; FourWireMotor drives coils directly through easystepper.
type Motor interface {
	Move(steps int32)
	SetEnabled(on bool)
	SetMicrostep(profile uint8)
}

// microstepTable maps stepsize 1..5 to the MS1..MS3 levels for full, half,
// quarter, eighth, and sixteenth stepping.
var microstepTable = [5][3]bool{
	{false, false, false},
	{true, false, false},
	{false, true, false},
	{true, true, false},
	{true, true, true},
}

type StepDirMotor struct {
	cfg StepDirConfig
}

func NewStepDir(cfg StepDirConfig) (*StepDirMotor, error) {
	if cfg.Step == cfg.Dir {
		return nil, errors.New("step and dir share a pin")
	}
	if cfg.StepDelay == 0 {
		cfg.StepDelay = defaultStepDelay
	}

	cfg.Step.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cfg.Dir.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cfg.Enable.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for _, p := range cfg.Mode {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}

	m := &StepDirMotor{cfg: cfg}
	m.SetEnabled(false)
	m.SetMicrostep(4)
	return m, nil
}

// Move pulses the step pin. Each step is one high/low edge pair with the
// configured delay, so a move of n steps busy-waits for 2n delays.
func (m *StepDirMotor) Move(steps int32) {
	m.cfg.Dir.Set(steps >= 0)
	if steps < 0 {
		steps = -steps
	}
	for ; steps > 0; steps-- {
		m.cfg.Step.High()
		time.Sleep(m.cfg.StepDelay)
		m.cfg.Step.Low()
		time.Sleep(m.cfg.StepDelay)
	}
}

// SetEnabled drives the active-low enable pin.
func (m *StepDirMotor) SetEnabled(on bool) {
	m.cfg.Enable.Set(!on)
}

// SetMicrostep applies the mode-pin profile for stepsize 1..5. Out-of-range
// values are clamped.
func (m *StepDirMotor) SetMicrostep(profile uint8) {
	if profile < 1 {
		profile = 1
	}
	if profile > 5 {
		profile = 5
	}
	levels := microstepTable[profile-1]
	for i, p := range m.cfg.Mode {
		p.Set(levels[i])
	}
}
