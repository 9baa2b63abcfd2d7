package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/stentorlab/taprig"
	"github.com/stentorlab/taprig/protocol"
)

const helpText = `taprig commands:
  t                 manual tap
  e / d             enable / disable motor
  r / l             jog arm up / down
  1..5              set stepsize
  h                 controller help
  c <M>,<step>,<v>  flash config (P=periodic s, R=taps/min, H=replay, S=seed)
  start             start a logged run with the flashed config
  stop              stop the active run
  replay <csv>      host-replay a recorded tap schedule
  runs              list saved runs
  status            show session state
  quit              exit
`

// Run drives the coordinator interactively: operator commands arrive on in,
// controller lines on the link channel, and both are serviced from this
// single loop so session state stays single-writer.
func (c *Coordinator) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	input := make(chan string)
	go func() {
		defer close(input)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case input <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprint(out, helpText)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case tl, ok := <-c.link.Lines():
			if !ok {
				c.finishRun("serial link closed")
				return ErrLinkClosed
			}
			c.HandleLine(tl)

		case cmd, ok := <-input:
			if !ok {
				return nil
			}
			done, err := c.dispatch(ctx, strings.TrimSpace(cmd), out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				return nil
			}
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, cmd string, out io.Writer) (bool, error) {
	if cmd == "" {
		return false, nil
	}

	word, rest, _ := strings.Cut(cmd, " ")
	switch strings.ToLower(word) {
	case "quit", "exit", "q":
		if c.runActive {
			if err := c.StopRun(); err != nil {
				c.log.Warn("stop on exit failed", zap.Error(err))
			}
		}
		return true, nil

	case "t":
		return false, c.ManualTap()

	case "start":
		if c.activeCfg.Mode == taprig.ModeIdle {
			return false, fmt.Errorf("no schedule configured; flash one with `c P,...` or `c R,...` first")
		}
		if err := c.StartRun(c.activeCfg); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "configuration sent; flip the switch ON to begin")
		return false, nil

	case "stop":
		return false, c.StopRun()

	case "c":
		cfg, err := protocol.ParseConfig(cmd)
		if err != nil {
			return false, err
		}
		if cfg.SeedOnly {
			c.sched.SetSeed(cfg.Seed)
			return false, c.link.Send(protocol.EncodeSeed(cfg.Stepsize, cfg.Seed))
		}
		if cfg.HostReplay {
			return false, fmt.Errorf("use `replay <csv>` for host-driven taps")
		}
		if err := c.FlashConfig(cfg.Schedule); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "config flashed; `start` begins a logged run")
		return false, nil

	case "replay":
		path := strings.TrimSpace(rest)
		if path == "" {
			return false, fmt.Errorf("usage: replay <csv> [stepsize]")
		}
		stepsize := c.activeCfg.Stepsize
		if fields := strings.Fields(path); len(fields) == 2 {
			path = fields[0]
			if n, err := strconv.Atoi(fields[1]); err == nil {
				stepsize = n
			}
		}
		offsets, err := LoadTapOffsets(path)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "replaying %d taps\n", len(offsets))
		return false, c.Replay(ctx, offsets, stepsize)

	case "runs":
		lib := RunLibrary{Base: c.cfg.OutDir}
		runs, err := lib.ListRuns()
		if err != nil {
			return false, err
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  mode=%s taps=%d duration=%.1fs\n", r.RunID, r.Mode, r.TapCount, r.DurationS)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "no saved runs")
		}
		return false, nil

	case "status":
		fmt.Fprintf(out, "active=%v configured=%v mode=%s taps=%d rate=%.2f/min\n",
			c.runActive, c.configured, c.activeCfg.Mode, c.taps, c.RecentRatePerMin())
		return false, nil

	case "help", "?":
		fmt.Fprint(out, helpText)
		return false, nil
	}

	// single-character hardware commands pass straight through
	if len(cmd) == 1 {
		switch ch := cmd[0]; ch {
		case protocol.CmdEnable, protocol.CmdDisable, protocol.CmdJogUp,
			protocol.CmdJogDown, protocol.CmdHelp, protocol.CmdAttended,
			'1', '2', '3', '4', '5':
			return false, c.Forward(ch)
		}
	}

	return false, fmt.Errorf("unknown command %q", cmd)
}
