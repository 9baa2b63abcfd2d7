package schedule

const (
	lcgMul = 1664525
	lcgInc = 1013904223

	// seedFallback guards against an all-zero seed when the ADC pin reads
	// flat and the clocks happen to align.
	seedFallback = 0xB5297A4D

	entropyRounds = 16
)

// Seeder builds 32-bit seeds from physical noise. Sample reads a floating
// analog input; Micros reads the free-running microsecond clock. Both are
// injected so the mixer is testable off-hardware.
type Seeder struct {
	Sample func() uint16
	Micros func() uint32
}

// Seed mixes repeated ADC samples through a linear-congruential update
// together with elapsed-time jitter, folding in the clock at the end. The
// requirement is statistical, not cryptographic: two unseeded runs must not
// share a tap sequence.
func (s Seeder) Seed() uint32 {
	var state uint32
	for i := 0; i < entropyRounds; i++ {
		state = state*lcgMul + lcgInc
		state ^= uint32(s.Sample())
		state = state*lcgMul + lcgInc
		state ^= s.Micros()
	}
	state ^= s.Micros() << 16

	if state == 0 {
		state = seedFallback
	}
	return state
}
