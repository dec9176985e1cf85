package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stepcord/stepcord/internal/configure"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/svc/heartbeat"
	"github.com/stepcord/stepcord/internal/svc/presence"
	"github.com/stepcord/stepcord/internal/svc/source"
	"github.com/stepcord/stepcord/internal/testutil"
)

var errStop = errors.New("test stop")

type harness struct {
	presence *presence.MockInstance
	source   *source.MockInstance
	toggles  *configure.Toggles
	configs  map[kind.Kind]configure.MetricConfig

	sleeps []time.Duration
	// ticks is how many tick sleeps are allowed before the run is stopped.
	ticks   int
	onSleep func(n int)
}

func newHarness(enabled ...kind.Kind) *harness {
	configs := map[kind.Kind]configure.MetricConfig{}
	for _, k := range kind.All() {
		configs[k] = configure.MetricConfig{
			Transport:  configure.TransportIPC,
			Credential: "client-" + k.String(),
			ImageKey:   "img-" + k.String(),
		}
	}

	for _, k := range enabled {
		mc := configs[k]
		mc.Enabled = true
		configs[k] = mc
	}

	return &harness{
		presence: presence.NewMock(),
		source:   source.NewMock(),
		toggles:  configure.NewToggles(configs),
		configs:  configs,
		ticks:    100,
	}
}

func (h *harness) sleep(ctx context.Context, d time.Duration) error {
	h.sleeps = append(h.sleeps, d)

	if err := ctx.Err(); err != nil {
		return err
	}

	// the first sleep is the connect grace period
	n := len(h.sleeps) - 1
	if n > 0 && h.onSleep != nil {
		h.onSleep(n)
	}

	if n >= h.ticks {
		return errStop
	}

	return nil
}

func (h *harness) scheduler() *Scheduler {
	return New(Options{
		RunID:     "test-run",
		Configs:   h.configs,
		Toggles:   h.toggles,
		Presence:  h.presence,
		Source:    h.source,
		Heartbeat: heartbeat.New(heartbeat.Options{}),
		Now: func() time.Time {
			return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
		},
		Sleep: h.sleep,
	})
}

func TestFirstTickPublishesThenClearsOthers(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water, kind.Sleep)
	h.ticks = 1

	s := h.scheduler()
	err := s.Run(context.Background())
	testutil.ErrorIs(t, errStop, err, "stopped by harness")

	testutil.AssertSlice(t, []string{
		"build steps", "connect steps",
		"build water", "connect water",
		"build sleep", "connect sleep",
		"publish steps", "clear water", "clear sleep",
	}, h.presence.Calls(), "call order")

	visible := h.presence.Visible()
	testutil.Assert(t, 1, len(visible), "one visible status")
	testutil.Assert(t, "Today: 12.3K", visible[kind.Steps].Title, "steps title")
	testutil.Assert(t, "Monthly: 654.3K | Yearly: 7.9M", visible[kind.Steps].Subtitle, "steps subtitle")
	testutil.Assert(t, "img-steps", visible[kind.Steps].ImageKey, "image key from config")

	active, ok := s.Active()
	testutil.Assert(t, true, ok, "not idle")
	testutil.Assert(t, kind.Water, active, "advanced to water")

	testutil.AssertSlice(t, []time.Duration{DefaultGrace, DefaultTickMulti}, h.sleeps, "grace then multi tick")
}

func TestAtMostOneVisibleAfterEveryTick(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water, kind.Sleep)
	h.ticks = 7

	order := []kind.Kind{kind.Steps, kind.Water, kind.Sleep}
	h.onSleep = func(n int) {
		visible := h.presence.Visible()
		if len(visible) != 1 {
			t.Fatalf("tick %d: expected one visible status got %d", n, len(visible))
		}

		want := order[(n-1)%len(order)]
		if _, ok := visible[want]; !ok {
			t.Fatalf("tick %d: expected %s visible got %v", n, want, visible)
		}
	}

	s := h.scheduler()
	testutil.ErrorIs(t, errStop, s.Run(context.Background()), "stopped by harness")
	testutil.Assert(t, 7, len(h.source.Fetches()), "one fetch per tick")
}

func TestFetchFailureKeepsRotating(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water, kind.Sleep)
	h.ticks = 3
	h.source.Fail(kind.Water, errors.New("HTTP 503 Service Unavailable"))

	s := h.scheduler()
	testutil.ErrorIs(t, errStop, s.Run(context.Background()), "run not ended by fetch failure")

	testutil.AssertSlice(t, []kind.Kind{kind.Steps, kind.Water, kind.Sleep}, h.source.Fetches(), "rotation continued")

	for _, sess := range h.presence.Sessions() {
		testutil.Assert(t, false, sess.Closed(), sess.Kind().String()+" session kept")
	}

	visible := h.presence.Visible()
	testutil.Assert(t, 1, len(visible), "one visible status")
	testutil.Assert(t, "Today: 12.3K", visible[kind.Sleep].Title, "sleep shown last")
}

func TestFetchFailureShowsDegradedStatus(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water)
	h.ticks = 2
	h.source.Fail(kind.Water, errors.New("boom"))
	h.onSleep = func(n int) {
		if n != 2 {
			return
		}

		visible := h.presence.Visible()
		testutil.Assert(t, 1, len(visible), "degraded replaces previous")
		testutil.Assert(t, "Unable to fetch water intake", visible[kind.Water].Subtitle, "degraded subtitle")
	}

	testutil.ErrorIs(t, errStop, h.scheduler().Run(context.Background()), "stopped by harness")
}

func TestDegradedPublishFailureIsSwallowed(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water)
	h.ticks = 3
	h.source.Fail(kind.Steps, errors.New("boom"))
	h.presence.Behave(kind.Steps, &presence.MockBehavior{DegradedPanic: true})

	s := h.scheduler()
	testutil.ErrorIs(t, errStop, s.Run(context.Background()), "panic during degraded publish absorbed")
	testutil.AssertSlice(t, []kind.Kind{kind.Steps, kind.Water, kind.Steps}, h.source.Fetches(), "rotation continued")
}

func TestPublishFailureEndsRunForAnyKind(t *testing.T) {
	for i, k := range kind.All() {
		h := newHarness(kind.All()...)
		h.presence.Behave(k, &presence.MockBehavior{PublishFails: 1})

		err := h.scheduler().Run(context.Background())
		testutil.ErrorIs(t, ErrPublish, err, "publish failure ends the run for "+k.String())

		var ce *presence.ChannelError
		testutil.Assert(t, true, errors.As(err, &ce), "channel error kept in chain")
		testutil.Assert(t, i+1, len(h.source.Fetches()), "run ended on the failing kind")
	}
}

func TestPublishPanicIsFault(t *testing.T) {
	h := newHarness(kind.Steps)
	h.presence.Behave(kind.Steps, &presence.MockBehavior{PublishPanics: 1})

	err := h.scheduler().Run(context.Background())
	testutil.ErrorIs(t, ErrPublish, err, "fault escalates like a publish error")
	testutil.ErrorIs(t, ErrFault, err, "fault marker")
}

func TestConnectFailureExcludesKind(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water, kind.Sleep)
	h.ticks = 3
	h.presence.Behave(kind.Water, &presence.MockBehavior{ConnectErr: errors.New("no socket")})
	h.presence.Behave(kind.Sleep, &presence.MockBehavior{BuildErr: errors.New("bad credential")})

	s := h.scheduler()
	testutil.ErrorIs(t, errStop, s.Run(context.Background()), "soft failures do not end the run")

	testutil.AssertSlice(t, []kind.Kind{kind.Steps}, s.Kinds(), "only steps rotates")
	testutil.AssertSlice(t, []kind.Kind{kind.Steps, kind.Steps, kind.Steps}, h.source.Fetches(), "steps only")
	testutil.Assert(t, DefaultTickSingle, h.sleeps[1], "single metric cadence")

	for _, sess := range h.presence.Sessions() {
		if sess.Kind() == kind.Water {
			testutil.Assert(t, true, sess.Closed(), "failed session closed")
		}
	}
}

func TestSingleKindCadence(t *testing.T) {
	h := newHarness(kind.Sleep)
	h.ticks = 2

	testutil.ErrorIs(t, errStop, h.scheduler().Run(context.Background()), "stopped by harness")
	testutil.AssertSlice(t, []time.Duration{DefaultGrace, DefaultTickSingle, DefaultTickSingle}, h.sleeps, "30s ticks")
}

func TestNothingEnabledIdles(t *testing.T) {
	h := newHarness()
	h.ticks = 3

	s := h.scheduler()
	testutil.ErrorIs(t, errStop, s.Run(context.Background()), "stopped by harness")

	testutil.Assert(t, 0, len(h.source.Fetches()), "never fetches")
	testutil.Assert(t, 0, len(h.presence.Calls()), "no sessions")
	testutil.Assert(t, 4, len(h.sleeps), "grace then idle sleeps")
}

func TestDisablingOnlyKindIdles(t *testing.T) {
	h := newHarness(kind.Steps)
	h.ticks = 4
	h.onSleep = func(n int) {
		if n == 1 {
			h.toggles.Set(kind.Steps, false)
		}
	}

	s := h.scheduler()
	testutil.ErrorIs(t, errStop, s.Run(context.Background()), "stopped by harness")

	testutil.Assert(t, 1, len(h.source.Fetches()), "no fetch after disable")
	testutil.Assert(t, 0, len(h.presence.Visible()), "status cleared on idle")

	_, ok := s.Active()
	testutil.Assert(t, false, ok, "idle")
}

func TestReenablingWhileIdleEndsRun(t *testing.T) {
	h := newHarness(kind.Steps)
	h.onSleep = func(n int) {
		switch n {
		case 1:
			h.toggles.Set(kind.Steps, false)
		case 2:
			h.toggles.Set(kind.Steps, true)
		}
	}

	s := h.scheduler()
	testutil.IsNil(t, s.Run(context.Background()), "idle run hands back for a rebuild")

	testutil.AssertSlice(t, []kind.Kind{kind.Steps}, h.source.Fetches(), "nothing fetched while idle")
	testutil.AssertSlice(t, []time.Duration{DefaultGrace, DefaultTickSingle, DefaultTickSingle}, h.sleeps, "one idle sleep")
}

func TestCadenceFollowsEnabledCount(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water, kind.Sleep)
	h.ticks = 3
	h.onSleep = func(n int) {
		if n == 1 {
			h.toggles.Set(kind.Water, false)
			h.toggles.Set(kind.Sleep, false)
		}
	}

	testutil.ErrorIs(t, errStop, h.scheduler().Run(context.Background()), "stopped by harness")

	testutil.AssertSlice(t,
		[]time.Duration{DefaultGrace, DefaultTickMulti, DefaultTickSingle, DefaultTickSingle},
		h.sleeps,
		"drops to the single cadence once one kind is left",
	)
	testutil.AssertSlice(t, []kind.Kind{kind.Steps, kind.Steps, kind.Steps}, h.source.Fetches(), "steps only")
}

func TestDisabledKindIsSkipped(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water, kind.Sleep)
	h.ticks = 4
	h.onSleep = func(n int) {
		if n == 1 {
			h.toggles.Set(kind.Water, false)
		}
	}

	testutil.ErrorIs(t, errStop, h.scheduler().Run(context.Background()), "stopped by harness")
	testutil.AssertSlice(t, []kind.Kind{kind.Steps, kind.Sleep, kind.Steps, kind.Sleep}, h.source.Fetches(), "water skipped")
}

func TestClearFailureIsIgnored(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water)
	h.ticks = 2
	h.presence.Behave(kind.Water, &presence.MockBehavior{ClearErr: errors.New("clear failed")})

	testutil.ErrorIs(t, errStop, h.scheduler().Run(context.Background()), "clear errors absorbed")
	testutil.Assert(t, 2, len(h.source.Fetches()), "kept ticking")
}

func TestCloseTearsDownSessions(t *testing.T) {
	h := newHarness(kind.Steps, kind.Water)
	h.ticks = 1

	s := h.scheduler()
	_ = s.Run(context.Background())

	testutil.IsNil(t, s.Close(), "close")
	for _, sess := range h.presence.Sessions() {
		testutil.Assert(t, true, sess.Closed(), sess.Kind().String()+" closed")
	}
	testutil.Assert(t, 0, len(s.Kinds()), "no kinds after close")
}

func TestRunStopsOnContext(t *testing.T) {
	h := newHarness(kind.Steps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	testutil.ErrorIs(t, context.Canceled, h.scheduler().Run(ctx), "context error returned")
}

func TestGuard(t *testing.T) {
	err := guard(func() error { panic("Socket is not connected") })
	testutil.ErrorIs(t, ErrFault, err, "panic converted")
	testutil.Contains(t, err.Error(), "Socket is not connected", "panic value kept")

	testutil.IsNil(t, guard(func() error { return nil }), "no panic")
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	testutil.ErrorIs(t, context.Canceled, Sleep(ctx, time.Hour), "canceled sleep")
	testutil.IsNil(t, Sleep(context.Background(), time.Millisecond), "short sleep")
}
