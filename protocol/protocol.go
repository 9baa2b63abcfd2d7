// Package protocol defines the line-oriented command set shared between the
// host and the tap controller. Commands stay human-typeable so an operator
// on a bare serial console can drive the firmware without the host app.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stentorlab/taprig"
)

// Single-character commands. Manual tap and enable/disable are accepted by
// the firmware in every mode and never alter it.
const (
	CmdTap      = 't'
	CmdEnable   = 'e'
	CmdDisable  = 'd'
	CmdJogUp    = 'r'
	CmdJogDown  = 'l'
	CmdHelp     = 'h'
	CmdConfig   = 'c'
	CmdAttended = 'i'
)

// Config mode tokens for the structured `c` command.
const (
	TokenPeriodic   = 'P' // value = seconds
	TokenRandom     = 'R' // value = taps per minute
	TokenHostReplay = 'H' // firmware idles; host drives taps
	TokenSeed       = 'S' // value = seed, 0 restores automatic entropy
)

// Error is a protocol-level failure: malformed or unknown command, or a
// non-positive numeric parameter. It is always reported to the sender,
// never silently dropped.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "protocol: " + e.Reason }

func errf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Config is a decoded structured configuration command.
type Config struct {
	// Schedule is meaningful for the P and R tokens.
	Schedule taprig.ScheduleConfig
	// HostReplay is set for the H token: the firmware stays idle and the
	// host delivers every tap manually.
	HostReplay bool
	// SeedOnly is set for the S token: only the RNG seed changes, the
	// active mode is untouched.
	SeedOnly bool
	Seed     uint32
	Stepsize int
}

// splitFields tokenizes a command payload, tolerating any mix of spaces,
// commas, colons, and tabs as separators.
func splitFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ' ', ',', ':', '\t':
			return true
		}
		return false
	})
}

// ParseConfig decodes a `c <MODE>,<step>,<value>` command. The leading `c`
// may be present or already stripped; the mode letter is case-insensitive.
func ParseConfig(line string) (Config, error) {
	fields := splitFields(strings.TrimSpace(line))
	if len(fields) > 0 && strings.EqualFold(fields[0], string(CmdConfig)) {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return Config{}, errf("empty config command")
	}
	if len(fields) < 3 {
		return Config{}, errf("config needs MODE,step,value; got %d fields", len(fields))
	}

	mode := fields[0]
	if len(mode) != 1 {
		return Config{}, errf("unknown mode %q", mode)
	}

	step, err := strconv.Atoi(fields[1])
	if err != nil {
		return Config{}, errf("bad stepsize %q", fields[1])
	}
	step = taprig.ClampStepsize(step)

	value, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Config{}, errf("bad value %q", fields[2])
	}

	cfg := Config{Stepsize: step}
	cfg.Schedule.Stepsize = step

	switch mode[0] &^ 0x20 { // fold to upper case
	case TokenPeriodic:
		if value <= 0 {
			return Config{}, errf("period must be > 0, got %v", value)
		}
		cfg.Schedule.Mode = taprig.ModePeriodic
		cfg.Schedule.Period = time.Duration(value * float64(time.Second))
	case TokenRandom:
		if value <= 0 {
			return Config{}, errf("rate must be > 0, got %v", value)
		}
		cfg.Schedule.Mode = taprig.ModeRandom
		cfg.Schedule.RatePerMin = value
	case TokenHostReplay:
		cfg.HostReplay = true
		cfg.Schedule.Mode = taprig.ModeIdle
	case TokenSeed:
		if value < 0 {
			return Config{}, errf("seed must be >= 0, got %v", value)
		}
		cfg.SeedOnly = true
		cfg.Seed = uint32(value)
		cfg.Schedule.Seed = cfg.Seed
	default:
		return Config{}, errf("unknown mode %q", mode)
	}

	return cfg, nil
}

// EncodeConfig renders a schedule snapshot as the wire command the firmware
// parses. Period is sent in seconds with microsecond precision retained.
func EncodeConfig(cfg taprig.ScheduleConfig) string {
	switch cfg.Mode {
	case taprig.ModePeriodic:
		return fmt.Sprintf("c P,%d,%.6f\n", taprig.ClampStepsize(cfg.Stepsize), cfg.Period.Seconds())
	case taprig.ModeRandom:
		return fmt.Sprintf("c R,%d,%.6f\n", taprig.ClampStepsize(cfg.Stepsize), cfg.RatePerMin)
	default:
		return fmt.Sprintf("c H,%d,0\n", taprig.ClampStepsize(cfg.Stepsize))
	}
}

// EncodeSeed renders the seed-pinning command. Seed 0 restores automatic
// entropy on the controller.
func EncodeSeed(stepsize int, seed uint32) string {
	return fmt.Sprintf("c S,%d,%d\n", taprig.ClampStepsize(stepsize), seed)
}
