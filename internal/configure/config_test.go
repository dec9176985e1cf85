package configure

import (
	"testing"

	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/testutil"
)

func validConfig() Config {
	c := Default()
	c.API.URL = "http://localhost:8080"
	c.API.Token = "secret"
	c.Metrics.Steps.Credential = "1428159322432471223"
	c.Metrics.Water.Credential = "2"
	c.Metrics.Sleep.Credential = "3"

	return c
}

func TestDefaults(t *testing.T) {
	c := Default()

	for _, k := range kind.All() {
		testutil.Assert(t, true, c.Metric(k).Enabled, k.String()+" enabled by default")
		testutil.Assert(t, TransportIPC, c.Metric(k).Transport, k.String()+" transport")
	}

	testutil.Assert(t, "man_walking_emoji_copy", c.Metrics.Steps.ImageKey, "steps image")
	testutil.Assert(t, "I'm walking here!", c.Metrics.Steps.ImageText, "steps hover")
	testutil.Assert(t, int64(30), int64(c.Timing.TickSingle.Seconds()), "single tick")
	testutil.Assert(t, int64(60), int64(c.Timing.TickMulti.Seconds()), "multi tick")
	testutil.Assert(t, int64(2), int64(c.Timing.Grace.Seconds()), "grace")
	testutil.Assert(t, int64(5), int64(c.Timing.Cooldown.Seconds()), "cooldown")
}

func TestValidate(t *testing.T) {
	c := validConfig()
	testutil.IsNil(t, c.Validate(), "valid config")

	c.Metrics.Water.Enabled = false
	c.Metrics.Water.Credential = ""
	testutil.IsNil(t, c.Validate(), "disabled kind needs no credential")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	c := Default()
	c.Metrics.Sleep.Transport = "carrier-pigeon"

	err := c.Validate()
	testutil.IsNotNil(t, err, "invalid config")

	msg := err.Error()
	for _, want := range []string{"api.url", "api.token", "metrics.steps.credential", "metrics.water.credential", "carrier-pigeon"} {
		testutil.Contains(t, msg, want, "validation message")
	}
}

func TestMetricConfigs(t *testing.T) {
	c := validConfig()
	mcs := c.MetricConfigs()

	testutil.Assert(t, 3, len(mcs), "one entry per kind")
	testutil.Assert(t, "2", mcs[kind.Water].Credential, "water credential")
	testutil.Assert(t, false, c.Metric(kind.Kind(9)).Enabled, "unknown kind disabled")
}

func TestToggles(t *testing.T) {
	c := validConfig()
	c.Metrics.Sleep.Enabled = false

	tg := NewToggles(c.MetricConfigs())
	testutil.Assert(t, true, tg.Enabled(kind.Steps), "steps on")
	testutil.Assert(t, false, tg.Enabled(kind.Sleep), "sleep off")

	testutil.Assert(t, true, tg.Set(kind.Sleep, true), "sleep flipped")
	testutil.Assert(t, false, tg.Set(kind.Sleep, true), "no change")
	testutil.Assert(t, true, tg.Enabled(kind.Sleep), "sleep on")
	testutil.Assert(t, false, tg.Set(kind.Kind(9), true), "unknown kind ignored")
}

func TestWatchWithoutFile(t *testing.T) {
	c := validConfig()
	testutil.Assert(t, false, c.Watch(NewToggles(c.MetricConfigs()), nil), "nothing to watch")
}

func TestLabels(t *testing.T) {
	l := Labels{{Key: "host", Value: "desk"}}
	testutil.Assert(t, "desk", l.ToPrometheus()["host"], "label")
}
