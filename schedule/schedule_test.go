package schedule

import (
	"testing"
	"time"

	"github.com/stentorlab/taprig"
)

func TestPeriodicDelay(t *testing.T) {
	s := New()
	if err := s.ConfigurePeriodic(100 * time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for range 5 {
		d, err := s.NextDelay()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d != 100*time.Millisecond {
			t.Errorf("expected=100ms, got=%v", d)
		}
	}
}

func TestHourPlusPeriodDelay(t *testing.T) {
	s := New()
	if err := s.ConfigurePeriodic(2 * time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := s.NextDelay()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 2*time.Hour {
		t.Errorf("expected=2h, got=%v", d)
	}
}

func TestRejectsNonPositive(t *testing.T) {
	s := New()
	if err := s.ConfigurePeriodic(0); err != ErrNotPositive {
		t.Errorf("expected ErrNotPositive, got %v", err)
	}
	if err := s.ConfigureRandom(-3); err != ErrNotPositive {
		t.Errorf("expected ErrNotPositive, got %v", err)
	}
}

func TestIdleHasNoDelay(t *testing.T) {
	s := New()
	if _, err := s.NextDelay(); err != ErrIdle {
		t.Errorf("expected ErrIdle, got %v", err)
	}
}

func TestSeededSequenceIsReproducible(t *testing.T) {
	draw := func(seed uint32) []time.Duration {
		s := New()
		s.SetSeed(seed)
		if err := s.ConfigureRandom(30); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := make([]time.Duration, 50)
		for i := range out {
			d, err := s.NextDelay()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			out[i] = d
		}
		return out
	}

	a := draw(42)
	b := draw(42)
	c := draw(43)

	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seed 42 diverged at draw %d: %v != %v", i, a[i], b[i])
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("seeds 42 and 43 produced identical sequences")
	}
}

func TestRandomMeanNearConfiguredRate(t *testing.T) {
	s := New()
	s.SetSeed(7)
	// 60 taps/min => mean inter-arrival 1s
	if err := s.ConfigureRandom(60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var total time.Duration
	const n = 2000
	for range n {
		d, err := s.NextDelay()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		total += d
	}
	mean := total / n
	if mean < 900*time.Millisecond || mean > 1100*time.Millisecond {
		t.Errorf("mean inter-arrival %v too far from 1s", mean)
	}
}

func TestApplySnapshot(t *testing.T) {
	s := New()
	err := s.Apply(taprig.ScheduleConfig{
		Mode:       taprig.ModeRandom,
		Stepsize:   2,
		RatePerMin: 30,
		Seed:       9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Mode() != taprig.ModeRandom {
		t.Errorf("expected Random, got %v", s.Mode())
	}
	if s.Seed() != 9 {
		t.Errorf("expected seed 9, got %d", s.Seed())
	}

	d := s.Descriptor()
	if d.Mode != "Random" || d.RatePerMin == nil || *d.RatePerMin != 30 {
		t.Errorf("unexpected descriptor: %+v", d)
	}
}
