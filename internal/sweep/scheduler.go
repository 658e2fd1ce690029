package sweep

import (
	"context"
	"fmt"
	"time"

	"newsdesk/internal/logging"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronParser accepts standard 5-field expressions and descriptors such as
// "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler runs a Sweeper on a cron schedule evaluated in a fixed location.
type Scheduler struct {
	sweeper *Sweeper
	cron    *cronlib.Cron
	logger  *zap.Logger
	spec    string
	ctx     context.Context
}

func NewScheduler(sw *Sweeper, spec string, loc *time.Location, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	c := cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLocation(loc),
		cronlib.WithLogger(logging.CronLogger(logger)),
		cronlib.WithChain(
			cronlib.Recover(logging.CronLogger(logger)),
			cronlib.SkipIfStillRunning(logging.CronLogger(logger)),
		),
	)

	s := &Scheduler{
		sweeper: sw,
		cron:    c,
		logger:  logger.Named("scheduler"),
		spec:    spec,
		ctx:     context.Background(),
	}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("sweep: schedule %q: %w", spec, err)
	}
	return s, nil
}

// tick runs one batch. The batch context is detached from shutdown so a
// batch in flight is finished rather than cut short.
func (s *Scheduler) tick() {
	s.sweeper.RunOnce(context.WithoutCancel(s.ctx))
}

// Start runs the schedule until ctx is done and then waits for an in-flight
// batch to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.logger.Info("Sweep scheduled",
		zap.String("spec", s.spec),
		zap.String("location", s.cron.Location().String()))

	s.cron.Start()
	<-ctx.Done()

	s.logger.Info("Sweep scheduler shutting down")
	<-s.cron.Stop().Done()
}
