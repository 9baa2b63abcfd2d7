// Package device is the hardware layer of the tap rig: the actuator, the
// activation switch, the serial port, and the free-running clock.
package device

import (
	"machine"
	"time"
)

// Device owns the rig hardware. The enabled field tracks operator intent:
// firing a tap may power the driver temporarily but always restores the
// last explicit enable/disable state.
type Device struct {
	motor     Motor
	switchPin machine.Pin
	cfg       TapConfig

	stepsize uint8
	enabled  bool
	boot     time.Time
}

func New(motor Motor, switchPin machine.Pin, cfg TapConfig) *Device {
	switchPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	return &Device{
		motor:     motor,
		switchPin: switchPin,
		cfg:       cfg,
		stepsize:  4,
		boot:      time.Now(),
	}
}

// Tap executes one two-phase pulse train: TapSteps down, dwell, TapSteps
// up. Worst-case duration is 2*TapSteps step delays plus the dwell; this is
// the loop's only near-blocking operation and bounds scheduling jitter.
func (d *Device) Tap() {
	if !d.enabled {
		d.motor.SetEnabled(true)
	}

	d.motor.Move(d.cfg.TapSteps)
	time.Sleep(d.cfg.PhaseDwell)
	d.motor.Move(-d.cfg.TapSteps)

	if !d.enabled {
		d.motor.SetEnabled(false)
	}
}

// Jog nudges the arm for positioning. Honors the enable intent like Tap.
func (d *Device) Jog(up bool) {
	steps := d.cfg.JogSteps
	if !up {
		steps = -steps
	}

	if !d.enabled {
		d.motor.SetEnabled(true)
	}
	d.motor.Move(steps)
	if !d.enabled {
		d.motor.SetEnabled(false)
	}
}

// SetStepsize selects the microstep profile, clamped to 1..5.
func (d *Device) SetStepsize(n uint8) {
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	d.stepsize = n
	d.motor.SetMicrostep(n)
}

func (d *Device) Stepsize() uint8 { return d.stepsize }

func (d *Device) Enable() {
	d.enabled = true
	d.motor.SetEnabled(true)
}

func (d *Device) Disable() {
	d.enabled = false
	d.motor.SetEnabled(false)
}

func (d *Device) Enabled() bool { return d.enabled }

// SwitchOn reads the activation toggle. The input is pulled up, so a closed
// switch reads low.
func (d *Device) SwitchOn() bool {
	return !d.switchPin.Get()
}

// Millis is the free-running controller clock used for every timestamp the
// host sees. Wraps after ~49 days.
func (d *Device) Millis() uint32 {
	return uint32(time.Since(d.boot).Milliseconds())
}

// Micros feeds timing jitter into entropy seeding.
func (d *Device) Micros() uint32 {
	return uint32(time.Since(d.boot).Microseconds())
}

func (d *Device) ReadByte() (byte, error) {
	return machine.Serial.ReadByte()
}

func (d *Device) Write(s string) {
	for i := 0; i < len(s); i++ {
		machine.Serial.WriteByte(s[i])
	}
}
