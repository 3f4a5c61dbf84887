package push

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule runs job on every tick of the cron expression until ctx is done.
// Ticks never overlap: a tick arriving while job still runs is skipped.
func Schedule(ctx context.Context, expr string, job func(ctx context.Context)) error {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", expr)
	}

	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() { job(ctx) }))
	c.Start()
	log.Info().Str("cron", expr).Time("next", sched.Next(time.Now())).Msg("Push schedule started")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
