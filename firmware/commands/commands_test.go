package commands

import (
	"errors"
	"strings"
	"testing"

	"taprig-firmware/schedule"
)

var errNoData = errors.New("no data")

type fakeController struct {
	out      strings.Builder
	taps     int
	jogs     []bool
	stepsize uint8
	enabled  bool
	switchOn bool
	nowMS    uint32
	input    []byte
}

func newFakeController() *fakeController {
	return &fakeController{stepsize: 4}
}

func (f *fakeController) Tap()        { f.taps++ }
func (f *fakeController) Jog(up bool) { f.jogs = append(f.jogs, up) }

func (f *fakeController) SetStepsize(n uint8) {
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	f.stepsize = n
}

func (f *fakeController) Stepsize() uint8 { return f.stepsize }
func (f *fakeController) Enable()         { f.enabled = true }
func (f *fakeController) Disable()        { f.enabled = false }
func (f *fakeController) SwitchOn() bool  { return f.switchOn }
func (f *fakeController) Millis() uint32  { return f.nowMS }

func (f *fakeController) ReadByte() (byte, error) {
	if len(f.input) == 0 {
		f.nowMS += 100 // attended prompts must eventually time out
		return 0, errNoData
	}
	b := f.input[0]
	f.input = f.input[1:]
	return b, nil
}

func (f *fakeController) Write(s string) { f.out.WriteString(s) }

func TestApplyConfigPeriodic(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()

	applyConfig(c, eng, " P,3,1.5")

	if got := c.out.String(); !strings.Contains(got, "CONFIG:OK,MODE=P,PERIOD_MS=1500,STEPSIZE=3") {
		t.Errorf("output = %q", got)
	}
	if eng.Mode() != schedule.ModePeriodic {
		t.Errorf("mode = %v", eng.Mode())
	}
	if c.stepsize != 3 {
		t.Errorf("stepsize = %d", c.stepsize)
	}
}

func TestApplyConfigSeparatorAndCaseTolerance(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()

	applyConfig(c, eng, " r 2 : 30")

	if got := c.out.String(); !strings.Contains(got, "CONFIG:OK,MODE=R,RATE_PER_MIN=30,STEPSIZE=2") {
		t.Errorf("output = %q", got)
	}
}

func TestApplyConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"Empty", "", "CONFIG:ERR,empty config"},
		{"UnknownMode", " X,4,10", "CONFIG:ERR,unknown mode"},
		{"ZeroPeriod", " P,4,0", "CONFIG:ERR,period must be positive"},
		{"NegativeRate", " R,4,-2", "CONFIG:ERR,rate must be positive"},
		{"BadValue", " P,4,fast", "CONFIG:ERR,bad value"},
		{"MissingFields", " P,4", "CONFIG:ERR,want MODE,step,value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeController()
			applyConfig(c, schedule.New(), tt.payload)
			if got := c.out.String(); !strings.Contains(got, tt.want) {
				t.Errorf("output = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestConfigStopsActiveRun(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()
	if err := eng.ConfigurePeriodic(1000); err != nil {
		t.Fatal(err)
	}
	eng.Activate(0, 5)

	applyConfig(c, eng, " R,1,45")

	out := c.out.String()
	if !strings.Contains(out, "EVENT:MODE_DEACTIVATED") {
		t.Errorf("active run not stopped: %q", out)
	}
	if !strings.Contains(out, "EVENT:SUMMARY,MODE=P") {
		t.Errorf("no summary for stopped run: %q", out)
	}
	if eng.Active() {
		t.Error("engine still active after reconfiguration")
	}
}

func TestSeedPinAndRelease(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()

	applyConfig(c, eng, " S,2,12345")
	if got := c.out.String(); !strings.Contains(got, "RNG:SEED,FIXED,12345") {
		t.Errorf("output = %q", got)
	}
	if v, ok := eng.PinnedSeed(); !ok || v != 12345 {
		t.Errorf("pinned seed = %d, %v", v, ok)
	}
	if c.stepsize != 2 {
		t.Errorf("stepsize = %d, want 2", c.stepsize)
	}

	c.out.Reset()
	applyConfig(c, eng, " S,1,0")
	if got := c.out.String(); !strings.Contains(got, "RNG:SEED,AUTO,0") {
		t.Errorf("output = %q", got)
	}
	if _, ok := eng.PinnedSeed(); ok {
		t.Error("seed still pinned after S,_,0")
	}
}

func TestManualCommandsNeverChangeMode(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()
	if err := eng.ConfigureRandom(30); err != nil {
		t.Fatal(err)
	}

	dispatch(c, eng, "t")
	dispatch(c, eng, "e")
	dispatch(c, eng, "3")

	if c.taps != 1 {
		t.Errorf("taps = %d, want 1", c.taps)
	}
	if !c.enabled {
		t.Error("motor not enabled")
	}
	if eng.Mode() != schedule.ModeRandom {
		t.Errorf("mode changed to %v", eng.Mode())
	}
	if got := c.out.String(); !strings.Contains(got, "EVENT:TAP,") ||
		!strings.Contains(got, "CONFIG:STEPSIZE,3") {
		t.Errorf("output = %q", got)
	}
}

func TestDisableDeactivatesRun(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()
	if err := eng.ConfigurePeriodic(2000); err != nil {
		t.Fatal(err)
	}
	eng.Activate(0, 3)

	dispatch(c, eng, "d")

	if eng.Active() {
		t.Error("run survived disable")
	}
	if c.enabled {
		t.Error("motor still enabled")
	}
	if got := c.out.String(); !strings.Contains(got, "EVENT:MODE_DEACTIVATED") {
		t.Errorf("output = %q", got)
	}
}

func TestActivateSeedsAndAnnounces(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()
	if err := eng.ConfigureRandom(60); err != nil {
		t.Fatal(err)
	}

	activate(c, eng, func() uint32 { return 777 })

	out := c.out.String()
	if !strings.Contains(out, "RNG:SEED,AUTO,777") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "EVENT:MODE_ACTIVATED") {
		t.Errorf("output = %q", out)
	}
	if !eng.Active() {
		t.Error("engine not active")
	}
	// first tap fires on the very next tick
	if !eng.Tick(c.Millis()) {
		t.Error("first tap not immediately due")
	}
}

func TestSwitchDebounce(t *testing.T) {
	sw := &switchState{}

	// a blip shorter than the debounce window is ignored
	if _, changed := sw.poll(true, 0); changed {
		t.Error("change reported before debounce window")
	}
	if _, changed := sw.poll(true, debounceMS-1); changed {
		t.Error("change reported inside debounce window")
	}
	if _, changed := sw.poll(false, debounceMS); changed {
		t.Error("bounced level reported as a change")
	}

	// a held level is reported once
	sw.poll(true, 100)
	on, changed := sw.poll(true, 100+debounceMS)
	if !changed || !on {
		t.Errorf("held level not reported: on=%v changed=%v", on, changed)
	}
	if _, changed := sw.poll(true, 200+debounceMS); changed {
		t.Error("stable level reported twice")
	}
}

func TestAttendedConfigTimesOut(t *testing.T) {
	c := newFakeController()
	eng := schedule.New()

	attendedConfig(c, eng)

	if got := c.out.String(); !strings.Contains(got, "CONFIG:ERR,attended config timeout") {
		t.Errorf("output = %q", got)
	}
}

func TestAttendedConfigAppliesAnswers(t *testing.T) {
	c := newFakeController()
	c.input = []byte("P\n4\n10\n")
	eng := schedule.New()

	attendedConfig(c, eng)

	out := c.out.String()
	if !strings.Contains(out, "CONFIG:OK,MODE=P,PERIOD_MS=10000,STEPSIZE=4") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "CONFIG:DONE") {
		t.Errorf("output = %q", out)
	}
}
