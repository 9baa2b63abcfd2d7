package protocol

import (
	"strconv"
	"strings"

	"github.com/stentorlab/taprig"
)

// Line is a decoded controller-to-host message. The variant set is closed:
// the coordinator handles every kind exhaustively, so a new message kind
// cannot be silently ignored.
type Line interface {
	isLine()
}

// TapAck reports one executed tap with the controller's own clock reading.
type TapAck struct {
	ControllerMS float64
}

// ModeActivated reports that a run started on the controller.
type ModeActivated struct{}

// ModeDeactivated reports that the active run stopped.
type ModeDeactivated struct{}

// SwitchChanged reports the physical activation toggle.
type SwitchChanged struct {
	On bool
}

// RunSummary carries the controller's end-of-run report.
type RunSummary struct {
	Mode       taprig.Mode
	ElapsedMS  float64
	TapCount   int
	RatePerMin float64 // random mode only
}

// ConfigOK acknowledges an applied configuration with validated fields.
type ConfigOK struct {
	Mode       taprig.Mode
	PeriodMS   float64
	RatePerMin float64
	Stepsize   int
}

// ConfigErr reports a rejected configuration.
type ConfigErr struct {
	Reason string
}

// StepsizeChanged acknowledges a bare 1..5 stepsize command.
type StepsizeChanged struct {
	Stepsize int
}

// SeedReport announces the RNG seed in effect for the next run.
type SeedReport struct {
	Auto bool
	Seed uint32
}

// Hello is the firmware boot banner.
type Hello struct {
	Firmware string
}

// Fault is a hardware fault distinct from an operator stop.
type Fault struct {
	Reason string
}

// Info is any well-formed line the host has no structured handling for,
// surfaced to the operator verbatim (help text, debug output).
type Info struct {
	Text string
}

func (TapAck) isLine()          {}
func (ModeActivated) isLine()   {}
func (ModeDeactivated) isLine() {}
func (SwitchChanged) isLine()   {}
func (RunSummary) isLine()      {}
func (ConfigOK) isLine()        {}
func (ConfigErr) isLine()       {}
func (StepsizeChanged) isLine() {}
func (SeedReport) isLine()      {}
func (Hello) isLine()           {}
func (Fault) isLine()           {}
func (Info) isLine()            {}

// Decode parses one controller line. Unparseable EVENT/CONFIG/RNG payloads
// return a protocol Error so the coordinator can log them as malformed and
// keep them out of the anchored event stream.
func Decode(raw string) (Line, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil, errf("empty line")
	}

	switch {
	case strings.HasPrefix(line, "EVENT:"):
		return decodeEvent(line[len("EVENT:"):])
	case strings.HasPrefix(line, "CONFIG:"):
		return decodeConfig(line[len("CONFIG:"):])
	case strings.HasPrefix(line, "RNG:SEED,"):
		return decodeSeed(line[len("RNG:SEED,"):])
	case strings.HasPrefix(line, "FAULT:"):
		return Fault{Reason: strings.TrimSpace(line[len("FAULT:"):])}, nil
	case strings.HasPrefix(line, "HELLO"):
		_, rest, _ := strings.Cut(line, ",")
		return Hello{Firmware: strings.TrimSpace(rest)}, nil
	default:
		return Info{Text: line}, nil
	}
}

func decodeEvent(payload string) (Line, error) {
	event, data, _ := strings.Cut(payload, ",")
	switch strings.ToUpper(strings.TrimSpace(event)) {
	case "TAP":
		ms, err := strconv.ParseFloat(strings.TrimSpace(data), 64)
		if err != nil {
			return nil, errf("bad tap timestamp %q", data)
		}
		return TapAck{ControllerMS: ms}, nil
	case "MODE_ACTIVATED":
		return ModeActivated{}, nil
	case "MODE_DEACTIVATED":
		return ModeDeactivated{}, nil
	case "SWITCH":
		return SwitchChanged{On: strings.EqualFold(strings.TrimSpace(data), "ON")}, nil
	case "SUMMARY":
		return decodeSummary(data)
	default:
		return nil, errf("unknown event %q", event)
	}
}

func decodeSummary(data string) (Line, error) {
	s := RunSummary{}
	for k, v := range kvPairs(data) {
		switch k {
		case "MODE":
			s.Mode = modeFromToken(v)
		case "ELAPSED_MS":
			s.ElapsedMS, _ = strconv.ParseFloat(v, 64)
		case "TAPS":
			s.TapCount, _ = strconv.Atoi(v)
		case "RATE_PER_MIN":
			s.RatePerMin, _ = strconv.ParseFloat(v, 64)
		}
	}
	if s.TapCount < 0 || s.ElapsedMS < 0 {
		return nil, errf("bad summary %q", data)
	}
	return s, nil
}

func decodeConfig(payload string) (Line, error) {
	kind, data, _ := strings.Cut(payload, ",")
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "OK":
		ok := ConfigOK{}
		for k, v := range kvPairs(data) {
			switch k {
			case "MODE":
				ok.Mode = modeFromToken(v)
			case "PERIOD_MS":
				ok.PeriodMS, _ = strconv.ParseFloat(v, 64)
			case "RATE_PER_MIN":
				ok.RatePerMin, _ = strconv.ParseFloat(v, 64)
			case "STEPSIZE":
				ok.Stepsize, _ = strconv.Atoi(v)
			}
		}
		return ok, nil
	case "ERR":
		return ConfigErr{Reason: strings.TrimSpace(data)}, nil
	case "STEPSIZE":
		n, err := strconv.Atoi(strings.TrimSpace(data))
		if err != nil {
			return nil, errf("bad stepsize ack %q", data)
		}
		return StepsizeChanged{Stepsize: n}, nil
	case "DONE":
		return Info{Text: "CONFIG:DONE"}, nil
	default:
		return nil, errf("unknown config ack %q", kind)
	}
}

func decodeSeed(payload string) (Line, error) {
	kind, value, _ := strings.Cut(payload, ",")
	seed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return nil, errf("bad seed %q", value)
	}
	return SeedReport{
		Auto: strings.EqualFold(strings.TrimSpace(kind), "AUTO"),
		Seed: uint32(seed),
	}, nil
}

// kvPairs iterates KEY=VALUE fields of a comma-separated payload.
func kvPairs(data string) map[string]string {
	out := make(map[string]string)
	for _, field := range strings.Split(data, ",") {
		k, v, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func modeFromToken(v string) taprig.Mode {
	switch strings.ToUpper(v) {
	case "P", "PERIODIC":
		return taprig.ModePeriodic
	case "R", "RANDOM", "POISSON":
		return taprig.ModeRandom
	default:
		return taprig.ModeIdle
	}
}
