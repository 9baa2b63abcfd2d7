package main

import (
	"machine"
	"time"

	"taprig-firmware/commands"
	"taprig-firmware/device"
	"taprig-firmware/schedule"
)

func main() {
	motorCfg := device.StepDirConfig{
		Step:      machine.GP16,
		Dir:       machine.GP17,
		Enable:    machine.GP18,
		Mode:      [3]machine.Pin{machine.GP19, machine.GP20, machine.GP21},
		StepDelay: 400 * time.Microsecond,
	}

	// 48 steps down + dwell + 48 up at 400us/edge bounds a tap at ~90ms,
	// the loop's worst-case scheduling jitter
	tapCfg := device.TapConfig{
		TapSteps:   48,
		JogSteps:   9,
		PhaseDwell: 10 * time.Millisecond,
	}

	motor, err := device.NewStepDir(motorCfg)
	if err != nil {
		panic(err)
	}

	d := device.New(motor, machine.GP22, tapCfg)

	machine.InitADC()
	noise := machine.ADC{Pin: machine.GP26} // left floating for entropy
	noise.Configure(machine.ADCConfig{})

	seeder := schedule.Seeder{
		Sample: noise.Get,
		Micros: d.Micros,
	}

	commands.Run(d, schedule.New(), seeder.Seed)
}
