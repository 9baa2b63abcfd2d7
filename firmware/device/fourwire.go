package device

import (
	"tinygo.org/x/drivers/easystepper"
)

// FourWireMotor drives a coil stepper through easystepper. It has no
// microstep-select pins, so the stepsize profile only scales tap force at
// the device layer.
type FourWireMotor struct {
	dev *easystepper.Device
}

func NewFourWire(cfg FourWireConfig) (*FourWireMotor, error) {
	dev, err := easystepper.New(easystepper.DeviceConfig{
		Pin1:      cfg.Pins[0],
		Pin2:      cfg.Pins[1],
		Pin3:      cfg.Pins[2],
		Pin4:      cfg.Pins[3],
		StepCount: cfg.StepCount,
		RPM:       cfg.RPM,
	})
	if err != nil {
		return nil, err
	}
	dev.Configure()
	return &FourWireMotor{dev: dev}, nil
}

func (m *FourWireMotor) Move(steps int32) {
	m.dev.Move(steps)
}

// SetEnabled de-energizes the coils when turned off; energizing happens on
// the next move.
func (m *FourWireMotor) SetEnabled(on bool) {
	if !on {
		m.dev.Off()
	}
}

func (m *FourWireMotor) SetMicrostep(uint8) {}
