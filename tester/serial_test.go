// Hardware-in-loop smoke test: run against a flashed controller attached to
// the port named by TAPRIG_TESTER_PORT.
package main_test

import (
	"bufio"
	"os"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

func openPort(t *testing.T) serial.Port {
	t.Helper()
	name := os.Getenv("TAPRIG_TESTER_PORT")
	if name == "" {
		t.Skip("TAPRIG_TESTER_PORT not set")
	}

	mode := &serial.Mode{
		BaudRate: 115200,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		t.Fatalf("unexpected error opening serial connection: %v", err)
	}
	t.Cleanup(func() { port.Close() })
	port.SetReadTimeout(2 * time.Second)
	return port
}

func sendAndCollect(t *testing.T, port serial.Port, in string, wantLines int) []string {
	t.Helper()

	_, err := port.Write([]byte(in + "\n"))
	if err != nil {
		t.Fatalf("unexpected error writing serial: %v", err)
	}

	var lines []string
	scanner := bufio.NewScanner(port)
	deadline := time.Now().Add(3 * time.Second)
	for len(lines) < wantLines && time.Now().Before(deadline) && scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func TestSerial(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{
			"SetStepsize",
			"3",
			[]string{"CONFIG:STEPSIZE,3"},
		},
		{
			"MaxStepsize",
			"5",
			[]string{"CONFIG:STEPSIZE,5"},
		},
		{
			"FlashPeriodic",
			"c P,2,1.5",
			[]string{"CONFIG:OK,MODE=P,PERIOD_MS=1500"},
		},
		{
			"FlashRandom",
			"c R,1,30",
			[]string{"CONFIG:OK,MODE=R,RATE_PER_MIN=30"},
		},
		{
			"RejectBadMode",
			"c X,2,10",
			[]string{"CONFIG:ERR"},
		},
		{
			"PinSeed",
			"c S,1,12345",
			[]string{"RNG:SEED,FIXED,12345"},
		},
	}

	port := openPort(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := sendAndCollect(t, port, tt.in, len(tt.expected))
			if len(out) < len(tt.expected) {
				t.Fatalf("expected %d lines, got %d: %q", len(tt.expected), len(out), out)
			}
			for i, want := range tt.expected {
				if !strings.HasPrefix(out[i], want) {
					t.Errorf("line %d: expected prefix %q, got %q", i, want, out[i])
				}
			}
		})
	}
}
