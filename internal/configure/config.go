package configure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/subosito/gotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const EnvPrefix = "STEPCORD"

func checkErr(err error) {
	if err != nil {
		zap.S().Fatalw("config",
			"error", err,
		)
	}
}

// legacyEnv maps config keys to the environment names used by earlier
// single-metric deployments.
var legacyEnv = map[string]string{
	"api.url":                  "API_URL",
	"api.token":                "API_TOKEN",
	"metrics.steps.credential": "DISCORD_CLIENT_ID",
	"metrics.steps.image_key":  "DISCORD_LARGE_IMAGE_KEY",
}

func New() *Config {
	initLogging("info", "json")

	// .env never overrides variables already present in the environment
	_ = gotenv.Load(".env")

	config := viper.New()

	b, _ := json.Marshal(Default())
	tmp := viper.New()
	defaultConfig := bytes.NewReader(b)

	tmp.SetConfigType("json")
	checkErr(tmp.ReadConfig(defaultConfig))
	checkErr(config.MergeConfigMap(tmp.AllSettings()))

	pflag.String("config", "config.yaml", "Config file location")
	pflag.Bool("noheader", false, "Disable the startup header")
	pflag.String("level", "info", "Log level")

	pflag.Parse()
	checkErr(config.BindPFlags(pflag.CommandLine))

	// File
	config.SetConfigFile(config.GetString("config"))
	config.AddConfigPath(".")

	fileInUse := false
	if err := config.ReadInConfig(); err == nil {
		checkErr(config.MergeInConfig())
		fileInUse = true
	}

	// Environment
	config.SetEnvPrefix(EnvPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AllowEmptyEnv(true)
	config.AutomaticEnv()

	bindEnvs(config, Config{})

	for key, legacy := range legacyEnv {
		_ = config.BindEnv(key, fmt.Sprintf("%s_%s", EnvPrefix, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))), legacy)
	}

	c := &Config{}
	checkErr(config.Unmarshal(&c))

	c.viper = config
	c.fileInUse = fileInUse

	initLogging(c.Level, c.LogFormat)

	return c
}

func bindEnvs(config *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)

	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)

		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			bindEnvs(config, v.Interface(), append(parts, tv)...)
		default:
			_ = config.BindEnv(strings.Join(append(parts, tv), "."))
		}
	}
}

const (
	TransportIPC     = "ipc"
	TransportGateway = "gateway"
)

type Config struct {
	Level      string `mapstructure:"level" json:"level"`
	LogFormat  string `mapstructure:"log_format" json:"log_format"`
	ConfigFile string `mapstructure:"config" json:"config"`
	NoHeader   bool   `mapstructure:"noheader" json:"noheader"`

	API struct {
		URL     string        `mapstructure:"url" json:"url"`
		Token   string        `mapstructure:"token" json:"token"`
		Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	} `mapstructure:"api" json:"api"`

	Timing struct {
		// Tick overrides both TickSingle and TickMulti when set.
		Tick       time.Duration `mapstructure:"tick" json:"tick"`
		TickSingle time.Duration `mapstructure:"tick_single" json:"tick_single"`
		TickMulti  time.Duration `mapstructure:"tick_multi" json:"tick_multi"`
		Grace      time.Duration `mapstructure:"grace" json:"grace"`
		Cooldown   time.Duration `mapstructure:"cooldown" json:"cooldown"`
		Idle       time.Duration `mapstructure:"idle" json:"idle"`
	} `mapstructure:"timing" json:"timing"`

	Metrics struct {
		Steps MetricConfig `mapstructure:"steps" json:"steps"`
		Water MetricConfig `mapstructure:"water" json:"water"`
		Sleep MetricConfig `mapstructure:"sleep" json:"sleep"`
	} `mapstructure:"metrics" json:"metrics"`

	Health struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Bind    string `mapstructure:"bind" json:"bind"`
	} `mapstructure:"health" json:"health"`

	PProf struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Bind    string `mapstructure:"bind" json:"bind"`
	} `mapstructure:"pprof" json:"pprof"`

	Monitoring struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Bind    string `mapstructure:"bind" json:"bind"`
		Labels  Labels `mapstructure:"labels" json:"labels"`
	} `mapstructure:"monitoring" json:"monitoring"`

	viper     *viper.Viper
	fileInUse bool
}

type MetricConfig struct {
	Enabled         bool   `mapstructure:"enabled" json:"enabled"`
	Transport       string `mapstructure:"transport" json:"transport"`
	Credential      string `mapstructure:"credential" json:"credential"`
	ImageKey        string `mapstructure:"image_key" json:"image_key"`
	ImageText       string `mapstructure:"image_text" json:"image_text"`
	OverlayPath     string `mapstructure:"overlay_path" json:"overlay_path"`
	OverlayTemplate string `mapstructure:"overlay_template" json:"overlay_template"`
}

// Default is the configuration before files, flags and environment apply.
func Default() Config {
	c := Config{
		Level:      "info",
		LogFormat:  "json",
		ConfigFile: "config.yaml",
	}

	c.API.Timeout = 10 * time.Second

	c.Timing.TickSingle = 30 * time.Second
	c.Timing.TickMulti = 60 * time.Second
	c.Timing.Grace = 2 * time.Second
	c.Timing.Cooldown = 5 * time.Second

	c.Metrics.Steps = MetricConfig{
		Enabled:   true,
		Transport: TransportIPC,
		ImageKey:  "man_walking_emoji_copy",
		ImageText: "I'm walking here!",
	}
	c.Metrics.Water = MetricConfig{
		Enabled:   true,
		Transport: TransportIPC,
		ImageText: "Staying hydrated!",
	}
	c.Metrics.Sleep = MetricConfig{
		Enabled:   true,
		Transport: TransportIPC,
		ImageText: "Catching some Z's",
	}

	c.Health.Bind = "127.0.0.1:9100"
	c.Monitoring.Bind = "127.0.0.1:9101"
	c.PProf.Bind = "127.0.0.1:9102"

	return c
}

// Metric returns the configuration of k. Unknown kinds come back disabled.
func (c *Config) Metric(k kind.Kind) MetricConfig {
	switch k {
	case kind.Steps:
		return c.Metrics.Steps
	case kind.Water:
		return c.Metrics.Water
	case kind.Sleep:
		return c.Metrics.Sleep
	}

	return MetricConfig{}
}

// MetricConfigs maps every known kind to its configuration.
func (c *Config) MetricConfigs() map[kind.Kind]MetricConfig {
	out := make(map[kind.Kind]MetricConfig)
	for _, k := range kind.All() {
		out[k] = c.Metric(k)
	}

	return out
}

// Validate reports every missing or invalid setting at once.
func (c *Config) Validate() error {
	var err error

	if c.API.URL == "" {
		err = multierr.Append(err, fmt.Errorf("api.url is required (%s_API_URL or API_URL)", EnvPrefix))
	}

	if c.API.Token == "" {
		err = multierr.Append(err, fmt.Errorf("api.token is required (%s_API_TOKEN or API_TOKEN)", EnvPrefix))
	}

	for _, k := range kind.All() {
		mc := c.Metric(k)
		if !mc.Enabled {
			continue
		}

		if mc.Credential == "" {
			err = multierr.Append(err, fmt.Errorf("metrics.%s.credential is required when %s is enabled", k, k))
		}

		switch mc.Transport {
		case TransportIPC, TransportGateway:
		default:
			err = multierr.Append(err, fmt.Errorf("metrics.%s.transport %q is not one of %s, %s", k, mc.Transport, TransportIPC, TransportGateway))
		}
	}

	return err
}

type Labels []struct {
	Key   string `mapstructure:"key" json:"key"`
	Value string `mapstructure:"value" json:"value"`
}

func (l Labels) ToPrometheus() prometheus.Labels {
	mp := prometheus.Labels{}

	for _, v := range l {
		mp[v.Key] = v.Value
	}

	return mp
}
