package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stentorlab/taprig"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Config
	}{
		{
			"Periodic",
			"c P,4,10",
			Config{
				Stepsize: 4,
				Schedule: taprig.ScheduleConfig{Mode: taprig.ModePeriodic, Stepsize: 4, Period: 10 * time.Second},
			},
		},
		{
			"Random",
			"c R,2,30",
			Config{
				Stepsize: 2,
				Schedule: taprig.ScheduleConfig{Mode: taprig.ModeRandom, Stepsize: 2, RatePerMin: 30},
			},
		},
		{
			"SeparatorTolerance",
			"c P 4 : 2.5",
			Config{
				Stepsize: 4,
				Schedule: taprig.ScheduleConfig{Mode: taprig.ModePeriodic, Stepsize: 4, Period: 2500 * time.Millisecond},
			},
		},
		{
			"LowercaseMode",
			"c p,3,1",
			Config{
				Stepsize: 3,
				Schedule: taprig.ScheduleConfig{Mode: taprig.ModePeriodic, Stepsize: 3, Period: time.Second},
			},
		},
		{
			"StrippedPrefix",
			"R,2,30",
			Config{
				Stepsize: 2,
				Schedule: taprig.ScheduleConfig{Mode: taprig.ModeRandom, Stepsize: 2, RatePerMin: 30},
			},
		},
		{
			"ClampedStepsize",
			"c P,9,10",
			Config{
				Stepsize: 5,
				Schedule: taprig.ScheduleConfig{Mode: taprig.ModePeriodic, Stepsize: 5, Period: 10 * time.Second},
			},
		},
		{
			"SeedPin",
			"c S,4,1234",
			Config{
				Stepsize: 4,
				SeedOnly: true,
				Seed:     1234,
				Schedule: taprig.ScheduleConfig{Stepsize: 4, Seed: 1234},
			},
		},
		{
			"SeedAuto",
			"c S,4,0",
			Config{
				Stepsize: 4,
				SeedOnly: true,
				Schedule: taprig.ScheduleConfig{Stepsize: 4},
			},
		},
		{
			"HostReplay",
			"c H,3,0",
			Config{
				Stepsize:   3,
				HostReplay: true,
				Schedule:   taprig.ScheduleConfig{Stepsize: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected=%+v, got=%+v", tt.want, got)
			}
		})
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"UnknownMode", "c X,4,10"},
		{"Empty", ""},
		{"OnlyPrefix", "c"},
		{"ZeroPeriod", "c P,4,0"},
		{"NegativeRate", "c R,2,-1"},
		{"MissingValue", "c P,4"},
		{"NonNumericValue", "c P,4,fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.in)
			var perr *Error
			if !errors.As(err, &perr) {
				t.Errorf("expected protocol error, got %v", err)
			}
		})
	}
}

func TestEncodeConfigRoundTrip(t *testing.T) {
	in := taprig.ScheduleConfig{Mode: taprig.ModePeriodic, Stepsize: 4, Period: 10 * time.Second}
	line := EncodeConfig(in)
	got, err := ParseConfig(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Schedule.Mode != taprig.ModePeriodic || got.Schedule.Period != 10*time.Second {
		t.Errorf("round trip lost config: %+v", got)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Line
	}{
		{"Tap", "EVENT:TAP,1234.500", TapAck{ControllerMS: 1234.5}},
		{"Activated", "EVENT:MODE_ACTIVATED", ModeActivated{}},
		{"Deactivated", "EVENT:MODE_DEACTIVATED", ModeDeactivated{}},
		{"SwitchOn", "EVENT:SWITCH,ON", SwitchChanged{On: true}},
		{"SwitchOff", "EVENT:SWITCH,OFF", SwitchChanged{}},
		{
			"Summary",
			"EVENT:SUMMARY,MODE=R,ELAPSED_MS=60000,TAPS=30,RATE_PER_MIN=30.00",
			RunSummary{Mode: taprig.ModeRandom, ElapsedMS: 60000, TapCount: 30, RatePerMin: 30},
		},
		{
			"ConfigOK",
			"CONFIG:OK,MODE=P,PERIOD_MS=10000.000,STEPSIZE=4",
			ConfigOK{Mode: taprig.ModePeriodic, PeriodMS: 10000, Stepsize: 4},
		},
		{"ConfigErr", "CONFIG:ERR,period must be > 0", ConfigErr{Reason: "period must be > 0"}},
		{"Stepsize", "CONFIG:STEPSIZE,3", StepsizeChanged{Stepsize: 3}},
		{"SeedAuto", "RNG:SEED,AUTO,305419896", SeedReport{Auto: true, Seed: 305419896}},
		{"SeedFixed", "RNG:SEED,FIXED,42", SeedReport{Seed: 42}},
		{"Hello", "HELLO,taprig-fw 1.0", Hello{Firmware: "taprig-fw 1.0"}},
		{"Fault", "FAULT: stall detected", Fault{Reason: "stall detected"}},
		{"Freeform", "ready", Info{Text: "ready"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected=%#v, got=%#v", tt.want, got)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []string{
		"EVENT:TAP,not-a-number",
		"EVENT:NOVEL_EVENT",
		"CONFIG:STEPSIZE,big",
		"RNG:SEED,AUTO,xyz",
		"",
	}

	for _, in := range tests {
		if _, err := Decode(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}
