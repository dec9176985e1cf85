package configure

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/stepcord/stepcord/internal/kind"
	"go.uber.org/zap"
)

// Toggles holds the live enabled flag of every kind. It is the only part of
// the configuration that may change after startup.
type Toggles struct {
	flags map[kind.Kind]*atomic.Bool
}

func NewToggles(configs map[kind.Kind]MetricConfig) *Toggles {
	t := &Toggles{flags: make(map[kind.Kind]*atomic.Bool)}

	for _, k := range kind.All() {
		b := &atomic.Bool{}
		b.Store(configs[k].Enabled)
		t.flags[k] = b
	}

	return t
}

func (t *Toggles) Enabled(k kind.Kind) bool {
	b, ok := t.flags[k]
	return ok && b.Load()
}

// Set stores the flag and reports whether it changed.
func (t *Toggles) Set(k kind.Kind, enabled bool) bool {
	b, ok := t.flags[k]
	if !ok {
		return false
	}

	return b.Swap(enabled) != enabled
}

// Watch applies enabled flags from the config file whenever it changes.
// onEnable is called for each kind that flipped from disabled to enabled.
// Nothing is watched when no config file was loaded.
func (c *Config) Watch(t *Toggles, onEnable func(k kind.Kind)) bool {
	if c.viper == nil || !c.fileInUse {
		return false
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		zap.S().Infow("config file changed",
			"file", e.Name,
			"op", e.Op.String(),
		)

		for _, k := range kind.All() {
			enabled := c.viper.GetBool(fmt.Sprintf("metrics.%s.enabled", k))
			if !t.Set(k, enabled) {
				continue
			}

			zap.S().Infow("metric toggled",
				"kind", k.String(),
				"enabled", enabled,
			)

			if enabled && onEnable != nil {
				onEnable(k)
			}
		}
	})
	c.viper.WatchConfig()

	return true
}
