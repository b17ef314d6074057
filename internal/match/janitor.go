package match

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Janitor periodically removes finished matches nobody is watching and
// matches that have been idle too long. Removal goes through the engine so
// remaining sessions are disconnected.
type Janitor struct {
	engine    *Engine
	interval  time.Duration
	idle      time.Duration
	now       func() time.Time
	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

// NewJanitor builds a janitor backed by a gocron scheduler.
func NewJanitor(engine *Engine, interval, idle time.Duration, logger zerolog.Logger) (*Janitor, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Janitor{
		engine:    engine,
		interval:  interval,
		idle:      idle,
		now:       time.Now,
		scheduler: sched,
		logger:    logger.With().Str("component", "match_janitor").Logger(),
	}, nil
}

// Start registers the sweep job and starts the scheduler.
func (j *Janitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			if n := j.Sweep(); n > 0 {
				j.logger.Info().Int("removed", n).Msg("swept matches")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	j.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

// Sweep removes eligible matches once and returns how many were removed.
func (j *Janitor) Sweep() int {
	now := j.now()
	removed := 0
	for _, m := range j.engine.registry.List() {
		var finished bool
		var last time.Time
		m.read(func(s *State) {
			finished = s.Finished
			last = s.LastActivity
		})

		abandoned := finished && j.engine.hub.GroupSize(m.ID) == 0
		idle := now.Sub(last) > j.idle
		if !abandoned && !idle {
			continue
		}
		if j.engine.Abandon(context.Background(), m.ID) {
			removed++
			j.logger.Debug().
				Str("match_id", m.ID.String()).
				Bool("finished", finished).
				Bool("idle", idle).
				Msg("match removed")
		}
	}
	return removed
}
