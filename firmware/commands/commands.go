// Package commands runs the controller's cooperative loop: serial polling,
// switch polling, and schedule ticking interleaved every iteration with
// nothing allowed to block except the attended configuration flow.
package commands

import (
	"strconv"
	"strings"

	"taprig-firmware/schedule"
)

// Controller is the hardware surface the loop drives.
type Controller interface {
	Tap()
	Jog(up bool)
	SetStepsize(n uint8)
	Stepsize() uint8
	Enable()
	Disable()
	SwitchOn() bool
	Millis() uint32
	ReadByte() (byte, error)
	Write(s string)
}

const (
	maxLineLen = 64

	// debounceMS is how long the switch must hold a new level before the
	// change is believed.
	debounceMS = 30

	// attendedTimeoutMS bounds each prompt in the attended config flow, the
	// only place the loop is allowed to wait on serial input.
	attendedTimeoutMS = 10000
)

const helpText = "t tap | e/d enable/disable | r/l jog | 1-5 stepsize | " +
	"c <P|R|H|S>,<step>,<value> config | i attended config | h help\n"

// switchState debounces the physical activation toggle.
type switchState struct {
	stable    bool
	candidate bool
	sinceMS   uint32
}

func (s *switchState) poll(raw bool, nowMS uint32) (on bool, changed bool) {
	if raw != s.candidate {
		s.candidate = raw
		s.sinceMS = nowMS
		return s.stable, false
	}
	if raw != s.stable && nowMS-s.sinceMS >= debounceMS {
		s.stable = raw
		return s.stable, true
	}
	return s.stable, false
}

// Run is the firmware main loop. It never returns and never blocks outside
// the attended configuration flow.
func Run(c Controller, eng *schedule.Engine, seed func() uint32) {
	c.Write("HELLO,taprig-fw 1.0\n")

	var line [maxLineLen]byte
	n := 0
	sw := &switchState{stable: c.SwitchOn(), candidate: c.SwitchOn()}

	for {
		if b, err := c.ReadByte(); err == nil {
			if b == '\n' || b == '\r' {
				if n > 0 {
					dispatch(c, eng, string(line[:n]))
					n = 0
				}
			} else if n < maxLineLen {
				line[n] = b
				n++
			} else {
				n = 0
				c.Write("CONFIG:ERR,line too long\n")
			}
		}

		if on, changed := sw.poll(c.SwitchOn(), c.Millis()); changed {
			if on {
				c.Write("EVENT:SWITCH,ON\n")
				activate(c, eng, seed)
			} else {
				c.Write("EVENT:SWITCH,OFF\n")
				deactivate(c, eng)
			}
		}

		if eng.Tick(c.Millis()) {
			fireTap(c)
		}
	}
}

func dispatch(c Controller, eng *schedule.Engine, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if len(line) == 1 {
		switch ch := line[0]; ch {
		case 't':
			fireTap(c)
		case 'e':
			c.Enable()
			c.Write("motor enabled\n")
		case 'd':
			deactivate(c, eng)
			c.Disable()
			c.Write("motor disabled\n")
		case 'r':
			c.Jog(true)
		case 'l':
			c.Jog(false)
		case '1', '2', '3', '4', '5':
			c.SetStepsize(ch - '0')
			c.Write("CONFIG:STEPSIZE," + utoa(uint32(c.Stepsize())) + "\n")
		case 'h':
			c.Write(helpText)
		case 'i':
			attendedConfig(c, eng)
		default:
			c.Write("CONFIG:ERR,unknown command " + line + "\n")
		}
		return
	}

	if line[0] == 'c' || line[0] == 'C' {
		applyConfig(c, eng, line[1:])
		return
	}
	c.Write("CONFIG:ERR,unknown command " + line + "\n")
}

// fireTap executes the pulse train and acknowledges with the controller's
// own clock, stamped after execution.
func fireTap(c Controller) {
	c.Tap()
	c.Write("EVENT:TAP," + utoa(c.Millis()) + "\n")
}

func activate(c Controller, eng *schedule.Engine, seed func() uint32) {
	if eng.Mode() == schedule.ModeIdle || eng.Active() {
		return
	}

	if pinned, ok := eng.PinnedSeed(); ok {
		c.Write("RNG:SEED,FIXED," + utoa(pinned) + "\n")
		eng.Activate(c.Millis(), 0)
	} else {
		s := seed()
		c.Write("RNG:SEED,AUTO," + utoa(s) + "\n")
		eng.Activate(c.Millis(), s)
	}
	c.Write("EVENT:MODE_ACTIVATED\n")
}

func deactivate(c Controller, eng *schedule.Engine) {
	if !eng.Active() {
		return
	}

	s := eng.Deactivate(c.Millis())
	c.Write("EVENT:MODE_DEACTIVATED\n")

	out := "EVENT:SUMMARY,MODE=" + s.Mode.String() +
		",ELAPSED_MS=" + utoa(s.ElapsedMS) +
		",TAPS=" + utoa(s.TapCount)
	if s.Mode == schedule.ModeRandom {
		out += ",RATE_PER_MIN=" + ftoa(s.RatePerMin)
	}
	c.Write(out + "\n")
}

// applyConfig handles `c <MODE>,<step>,<value>`. Separators may be spaces,
// commas, colons, or tabs; the mode letter is case-insensitive. A valid
// config stops any active run and resets the session.
func applyConfig(c Controller, eng *schedule.Engine, payload string) {
	fields := splitFields(payload)
	if len(fields) == 0 {
		c.Write("CONFIG:ERR,empty config\n")
		return
	}
	if len(fields) < 3 {
		c.Write("CONFIG:ERR,want MODE,step,value\n")
		return
	}

	mode := fields[0][0] &^ 0x20 // uppercase
	step, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		c.Write("CONFIG:ERR,bad stepsize " + fields[1] + "\n")
		return
	}
	value, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		c.Write("CONFIG:ERR,bad value " + fields[2] + "\n")
		return
	}

	switch mode {
	case 'P':
		if value <= 0 {
			c.Write("CONFIG:ERR,period must be positive\n")
			return
		}
		deactivate(c, eng)
		if err := eng.ConfigurePeriodic(value * 1000); err != nil {
			c.Write("CONFIG:ERR," + err.Error() + "\n")
			return
		}
		c.SetStepsize(uint8(step))
		c.Write("CONFIG:OK,MODE=P,PERIOD_MS=" + ftoa(eng.PeriodMS()) +
			",STEPSIZE=" + utoa(uint32(c.Stepsize())) + "\n")

	case 'R':
		if value <= 0 {
			c.Write("CONFIG:ERR,rate must be positive\n")
			return
		}
		deactivate(c, eng)
		if err := eng.ConfigureRandom(value); err != nil {
			c.Write("CONFIG:ERR," + err.Error() + "\n")
			return
		}
		c.SetStepsize(uint8(step))
		c.Write("CONFIG:OK,MODE=R,RATE_PER_MIN=" + ftoa(eng.RatePerMin()) +
			",STEPSIZE=" + utoa(uint32(c.Stepsize())) + "\n")

	case 'H':
		// host-replay: the host drives every tap; the schedule stays off
		deactivate(c, eng)
		eng.Clear()
		c.SetStepsize(uint8(step))
		c.Write("CONFIG:OK,MODE=H,STEPSIZE=" + utoa(uint32(c.Stepsize())) + "\n")

	case 'S':
		if value < 0 || value != float64(uint32(value)) {
			c.Write("CONFIG:ERR,bad seed " + fields[2] + "\n")
			return
		}
		c.SetStepsize(uint8(step))
		eng.PinSeed(uint32(value))
		if v, ok := eng.PinnedSeed(); ok {
			c.Write("RNG:SEED,FIXED," + utoa(v) + "\n")
		} else {
			c.Write("RNG:SEED,AUTO,0\n")
		}

	default:
		c.Write("CONFIG:ERR,unknown mode " + fields[0] + "\n")
	}
}

// attendedConfig is the legacy prompt-driven flow, kept as an explicit
// state entered on demand. Each prompt waits for serial input up to a fixed
// timeout; the structured command path never does this.
func attendedConfig(c Controller, eng *schedule.Engine) {
	c.Write("mode (P periodic seconds / R random taps per min)? ")
	mode, ok := readLineTimeout(c)
	if !ok {
		c.Write("CONFIG:ERR,attended config timeout\n")
		return
	}

	c.Write("stepsize (1-5)? ")
	step, ok := readLineTimeout(c)
	if !ok {
		c.Write("CONFIG:ERR,attended config timeout\n")
		return
	}

	c.Write("value? ")
	value, ok := readLineTimeout(c)
	if !ok {
		c.Write("CONFIG:ERR,attended config timeout\n")
		return
	}

	applyConfig(c, eng, mode+","+step+","+value)
	c.Write("CONFIG:DONE\n")
}

func readLineTimeout(c Controller) (string, bool) {
	var buf [maxLineLen]byte
	n := 0
	start := c.Millis()
	for c.Millis()-start < attendedTimeoutMS {
		b, err := c.ReadByte()
		if err != nil {
			continue
		}
		if b == '\n' || b == '\r' {
			if n > 0 {
				return string(buf[:n]), true
			}
			continue
		}
		if n < maxLineLen {
			buf[n] = b
			n++
		}
	}
	return "", false
}

func splitFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':' || r == '\t'
	})
}

func utoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
