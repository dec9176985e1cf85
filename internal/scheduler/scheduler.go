package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stepcord/stepcord/internal/configure"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrPublish ends a run: the active channel rejected a status update.
	ErrPublish = errors.New("presence publish failed")
	// ErrFault marks a panic caught at a presence call boundary.
	ErrFault = errors.New("presence call panicked")
)

const (
	DefaultTickSingle = 30 * time.Second
	DefaultTickMulti  = 60 * time.Second
	DefaultGrace      = 2 * time.Second
)

type Options struct {
	RunID   string
	Configs map[kind.Kind]configure.MetricConfig
	Toggles instance.Toggles

	Presence   instance.Presence
	Source     instance.Source
	Overlay    instance.Overlay
	Heartbeat  instance.Heartbeat
	Prometheus instance.Prometheus

	// Tick forces one period regardless of how many kinds rotate.
	Tick       time.Duration
	TickSingle time.Duration
	TickMulti  time.Duration
	Grace      time.Duration
	// Idle is the sleep between checks while nothing is enabled; defaults to
	// the tick period.
	Idle time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler runs one rotation over the sessions it builds at startup. It is
// single use: the supervisor builds a new one for every run.
type Scheduler struct {
	o Options

	order    []kind.Kind
	sessions map[kind.Kind]instance.Session
	rotation *Rotation
	started  time.Time
}

func New(o Options) *Scheduler {
	if o.TickSingle == 0 {
		o.TickSingle = DefaultTickSingle
	}

	if o.TickMulti == 0 {
		o.TickMulti = DefaultTickMulti
	}

	if o.Grace == 0 {
		o.Grace = DefaultGrace
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	if o.Sleep == nil {
		o.Sleep = Sleep
	}

	if o.Toggles == nil {
		o.Toggles = staticToggles(o.Configs)
	}

	return &Scheduler{
		o:        o,
		sessions: make(map[kind.Kind]instance.Session),
	}
}

// Run connects every enabled kind and cycles through them until a publish
// fails or ctx ends. It returns nil only when an idle run sees one of its
// kinds enabled again, so the caller can rebuild it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.connect(ctx)

	if err := s.o.Sleep(ctx, s.o.Grace); err != nil {
		return err
	}

	s.rotation = NewRotation(s.order, s.enabled)

	if s.o.Prometheus != nil {
		s.o.Prometheus.SetSessions(len(s.order))
	}

	zap.S().Infow("scheduler started",
		"run_id", s.o.RunID,
		"kinds", kindNames(s.order),
		"tick", s.tickPeriod().String(),
	)

	for {
		if s.rotation.Idle() {
			return s.idle(ctx)
		}

		if err := s.tick(ctx); err != nil {
			return err
		}

		if s.rotation.Idle() {
			return s.idle(ctx)
		}

		if err := s.o.Sleep(ctx, s.tickPeriod()); err != nil {
			return err
		}
	}
}

// tick runs one fetch, publish and rotate step. Only a failed publish of a
// real summary is returned; everything else is absorbed.
func (s *Scheduler) tick(ctx context.Context) error {
	k, ok := s.rotation.Settle(s.enabled)
	if !ok {
		return nil
	}

	sess := s.sessions[k]
	s.reportActive(k)

	sum, err := s.o.Source.FetchSummary(ctx, k, time.Time{})
	if err != nil {
		zap.S().Warnw("failed to fetch summary",
			"run_id", s.o.RunID,
			"kind", k.String(),
			"error", err,
		)

		if s.o.Prometheus != nil {
			s.o.Prometheus.FetchFailure(k)
			s.o.Prometheus.Tick(k, "degraded")
		}

		if s.o.Heartbeat != nil {
			s.o.Heartbeat.RecordFailure(k, err.Error())
		}

		if perr := guard(func() error { return sess.Publish(ctx, status.Degraded(k)) }); perr != nil {
			zap.S().Debugw("degraded status not shown",
				"run_id", s.o.RunID,
				"kind", k.String(),
				"error", perr,
			)
		} else {
			s.clearOthers(ctx, k)
		}

		s.rotation.Advance(s.enabled)

		return nil
	}

	st := status.ForSummary(sum, s.o.Now(), status.Assets{
		ImageKey:  s.o.Configs[k].ImageKey,
		ImageText: s.o.Configs[k].ImageText,
	})

	if s.o.Overlay != nil {
		if err := s.o.Overlay.Write(k, sum, st); err != nil {
			zap.S().Warnw("failed to write overlay",
				"kind", k.String(),
				"error", err,
			)
		}
	}

	if err := guard(func() error { return sess.Publish(ctx, st) }); err != nil {
		zap.S().Errorw("failed to publish status",
			"run_id", s.o.RunID,
			"kind", k.String(),
			"error", err,
		)

		if s.o.Prometheus != nil {
			s.o.Prometheus.PublishFailure(k)
			s.o.Prometheus.Tick(k, "failed")
		}

		return fmt.Errorf("%w: %s: %w", ErrPublish, k, err)
	}

	zap.S().Debugw("status published",
		"run_id", s.o.RunID,
		"kind", k.String(),
		"title", st.Title,
		"subtitle", st.Subtitle,
	)

	s.clearOthers(ctx, k)

	if s.o.Heartbeat != nil {
		s.o.Heartbeat.RecordPublish(k, st)
	}

	if s.o.Prometheus != nil {
		s.o.Prometheus.Tick(k, "published")
	}

	s.rotation.Advance(s.enabled)

	return nil
}

// Active returns the kind the next tick will show.
func (s *Scheduler) Active() (kind.Kind, bool) {
	if s.rotation == nil {
		return 0, false
	}

	return s.rotation.Active()
}

// Kinds returns the kinds whose sessions connected for this run.
func (s *Scheduler) Kinds() []kind.Kind {
	return append([]kind.Kind(nil), s.order...)
}

// Close tears down every session of the run.
func (s *Scheduler) Close() error {
	var result *multierror.Error

	for _, k := range s.order {
		if err := s.sessions[k].Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", k, err))
		}
	}

	s.sessions = make(map[kind.Kind]instance.Session)
	s.order = nil

	return result.ErrorOrNil()
}

func (s *Scheduler) connect(ctx context.Context) {
	s.started = s.o.Now()

	for _, k := range kind.All() {
		if !s.enabled(k) {
			continue
		}

		sess, err := s.o.Presence.NewSession(k, s.o.Configs[k])
		if err != nil {
			zap.S().Warnw("failed to create presence session",
				"run_id", s.o.RunID,
				"kind", k.String(),
				"error", err,
			)

			continue
		}

		if err := sess.Connect(ctx); err != nil {
			zap.S().Warnw("failed to connect presence session",
				"run_id", s.o.RunID,
				"kind", k.String(),
				"error", err,
			)

			_ = sess.Close()

			continue
		}

		s.sessions[k] = sess
		s.order = append(s.order, k)
	}

	if s.o.Heartbeat != nil {
		s.o.Heartbeat.SetRun(instance.RunInfo{
			ID:       s.o.RunID,
			Started:  s.started,
			Sessions: kindNames(s.order),
			Restarts: s.o.Heartbeat.Run().Restarts,
		})
	}
}

// idle clears whatever is still shown and sleeps until ctx ends or one of the
// run's kinds is enabled again.
func (s *Scheduler) idle(ctx context.Context) error {
	zap.S().Infow("no enabled metrics, idling",
		"run_id", s.o.RunID,
	)

	for _, k := range s.order {
		s.clear(ctx, k)
	}

	if s.o.Prometheus != nil {
		s.o.Prometheus.SetActive(0, true)
	}

	if s.o.Heartbeat != nil {
		run := s.o.Heartbeat.Run()
		run.Idle = true
		run.Active = ""
		s.o.Heartbeat.SetRun(run)
	}

	period := s.o.Idle
	if period == 0 {
		period = s.tickPeriod()
	}

	for {
		if err := s.o.Sleep(ctx, period); err != nil {
			return err
		}

		for _, k := range s.order {
			if s.enabled(k) {
				zap.S().Infow("metric enabled while idle, ending run",
					"run_id", s.o.RunID,
					"kind", k.String(),
				)

				return nil
			}
		}
	}
}

// clearOthers runs after the active publish so no tick ever leaves a gap.
// Sessions of disabled kinds are cleared too.
func (s *Scheduler) clearOthers(ctx context.Context, active kind.Kind) {
	for _, k := range s.order {
		if k != active {
			s.clear(ctx, k)
		}
	}
}

func (s *Scheduler) clear(ctx context.Context, k kind.Kind) {
	if err := guard(func() error { return s.sessions[k].Clear(ctx) }); err != nil {
		zap.S().Debugw("failed to clear status",
			"run_id", s.o.RunID,
			"kind", k.String(),
			"error", err,
		)

		if s.o.Prometheus != nil {
			s.o.Prometheus.ClearFailure(k)
		}
	}
}

func (s *Scheduler) enabled(k kind.Kind) bool {
	return s.o.Toggles.Enabled(k)
}

// tickPeriod follows how many of the run's kinds are enabled right now. With
// none enabled it falls back to the number of sessions.
func (s *Scheduler) tickPeriod() time.Duration {
	n := 0
	for _, k := range s.order {
		if s.enabled(k) {
			n++
		}
	}

	if n == 0 {
		n = len(s.order)
	}

	switch {
	case s.o.Tick > 0:
		return s.o.Tick
	case n == 1:
		return s.o.TickSingle
	default:
		return s.o.TickMulti
	}
}

func (s *Scheduler) reportActive(k kind.Kind) {
	if s.o.Prometheus != nil {
		s.o.Prometheus.SetActive(k, false)
	}
}

// guard turns a panic inside a presence call into an ErrFault error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFault, r)
		}
	}()

	return fn()
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type staticToggles map[kind.Kind]configure.MetricConfig

func (t staticToggles) Enabled(k kind.Kind) bool {
	return t[k].Enabled
}

func kindNames(ks []kind.Kind) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.String()
	}

	return out
}
