package chart

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stentorlab/taprig"
)

const requestTimeout = 5 * time.Second

// Observer bridges coordinator callbacks onto the chart client. Upload
// failures are logged and dropped; charting must never stall a run.
type Observer struct {
	client *Client
	log    *zap.Logger
	name   string
}

func NewObserver(client *Client, sessionName string, log *zap.Logger) *Observer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Observer{client: client, log: log, name: sessionName}
}

func (o *Observer) OnRunStarted(cfg taprig.ScheduleConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := o.client.CreateSession(ctx, o.name); err != nil {
		o.log.Warn("chart session create failed", zap.Error(err))
		return
	}
	if err := o.client.SetStartTime(ctx, time.Now()); err != nil {
		o.log.Warn("chart start time failed", zap.Error(err))
	}

	stage := cfg.Mode.String()
	switch cfg.Mode {
	case taprig.ModePeriodic:
		stage = fmt.Sprintf("periodic %.1fs", cfg.Period.Seconds())
	case taprig.ModeRandom:
		stage = fmt.Sprintf("random %.1f/min", cfg.RatePerMin)
	}
	if err := o.client.AddStage(ctx, stage, time.Now()); err != nil {
		o.log.Warn("chart stage failed", zap.Error(err))
	}
}

func (o *Observer) OnTap(ev taprig.TapEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	note := fmt.Sprintf("tap %d (%s)", ev.Seq, ev.Origin)
	if err := o.client.AddEvent(ctx, note, ev.HostWall); err != nil {
		o.log.Warn("chart event failed", zap.Error(err))
	}
}

func (o *Observer) OnRunStopped(summary taprig.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := o.client.Done(ctx); err != nil {
		o.log.Warn("chart done failed", zap.Error(err))
	}
}
