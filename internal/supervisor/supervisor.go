package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"go.uber.org/zap"
)

const DefaultCooldown = 5 * time.Second

// Runner is one scheduler run. Run blocks until the run ends; Close releases
// every session it opened.
type Runner interface {
	Run(ctx context.Context) error
	Close() error
}

type Options struct {
	// Build returns a fresh runner for every run.
	Build    func(runID string) Runner
	Cooldown time.Duration

	Heartbeat  instance.Heartbeat
	Prometheus instance.Prometheus

	Sleep func(ctx context.Context, d time.Duration) error
	NewID func() string
}

type Supervisor struct {
	o       Options
	restart chan struct{}
}

func New(o Options) *Supervisor {
	if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}

	if o.Sleep == nil {
		o.Sleep = sleep
	}

	if o.NewID == nil {
		o.NewID = uuid.NewString
	}

	return &Supervisor{
		o:       o,
		restart: make(chan struct{}, 1),
	}
}

// Restart ends the current run early. The usual cool-down still applies.
func (s *Supervisor) Restart() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

// Enabled is called when k is switched on at runtime. A kind without a session
// in the current run, or any kind while the run idles, needs a rebuild.
func (s *Supervisor) Enabled(k kind.Kind) {
	if s.o.Heartbeat == nil {
		s.Restart()
		return
	}

	run := s.o.Heartbeat.Run()
	if run.Idle {
		s.Restart()
		return
	}

	for _, name := range run.Sessions {
		if name == k.String() {
			return
		}
	}

	s.Restart()
}

// Run rebuilds and runs the scheduler forever. Every run exit, clean or not,
// is followed by the cool-down and a rebuild. Only ctx ends the loop.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		runID := s.o.NewID()
		err := s.runOnce(ctx, runID)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		result := "error"
		if err == nil {
			result = "exited"
			zap.S().Warnw("scheduler exited normally, restarting",
				"run_id", runID,
				"cooldown", s.o.Cooldown.String(),
			)
		} else {
			if errors.Is(err, context.Canceled) {
				result = "restart"
			}

			zap.S().Errorw("scheduler failed, restarting",
				"run_id", runID,
				"error", err,
				"cooldown", s.o.Cooldown.String(),
			)
		}

		if s.o.Prometheus != nil {
			s.o.Prometheus.RunEnded(result)
			s.o.Prometheus.SetSessions(0)
		}

		if s.o.Heartbeat != nil {
			run := s.o.Heartbeat.Run()
			run.Restarts++
			s.o.Heartbeat.SetRun(run)
		}

		if err := s.o.Sleep(ctx, s.o.Cooldown); err != nil {
			return err
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, runID string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// drop a restart request left over from the previous run
	select {
	case <-s.restart:
	default:
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-s.restart:
			zap.S().Infow("restart requested",
				"run_id", runID,
			)
			cancel()
		case <-done:
		}
	}()

	r := s.o.Build(runID)
	err := r.Run(runCtx)

	if cerr := r.Close(); cerr != nil {
		zap.S().Warnw("failed to close sessions",
			"run_id", runID,
			"error", cerr,
		)
	}

	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
