package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bugsnag/panicwrap"
	"github.com/stepcord/stepcord/internal/configure"
	"github.com/stepcord/stepcord/internal/global"
	"github.com/stepcord/stepcord/internal/health"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/monitoring"
	"github.com/stepcord/stepcord/internal/scheduler"
	"github.com/stepcord/stepcord/internal/supervisor"
	"github.com/stepcord/stepcord/internal/svc/heartbeat"
	"github.com/stepcord/stepcord/internal/svc/overlay"
	"github.com/stepcord/stepcord/internal/svc/pprof"
	"github.com/stepcord/stepcord/internal/svc/presence"
	"github.com/stepcord/stepcord/internal/svc/prometheus"
	"github.com/stepcord/stepcord/internal/svc/source"
	"go.uber.org/zap"
)

var (
	Version = "development"
	Unix    = ""
	Time    = "unknown"
	User    = "unknown"
)

func init() {
	if i, err := strconv.Atoi(Unix); err == nil {
		Time = time.Unix(int64(i), 0).Format(time.RFC3339)
	}
}

func main() {
	config := configure.New()

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	exitStatus, err := panicwrap.BasicWrap(func(s string) {
		zap.S().Errorw("panic detected",
			"panic", s,
		)
	})
	if err != nil {
		zap.S().Errorw("failed to setup panic handler",
			"error", err,
		)
		os.Exit(2)
	}

	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	if !config.NoHeader {
		zap.S().Info("stepcord presence agent")
		zap.S().Infof("Version: %s", Version)
		zap.S().Infof("build.Time: %s", Time)
		zap.S().Infof("build.User: %s", User)
	}

	zap.S().Debugf("MaxProcs: %d", runtime.GOMAXPROCS(0))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	gctx, cancel := global.WithCancel(global.New(context.Background(), config))

	{
		gctx.Inst().Source = source.New(source.Options{
			BaseURL: config.API.URL,
			Token:   config.API.Token,
			Timeout: config.API.Timeout,
		})
	}

	{
		gctx.Inst().Presence = presence.New(presence.Options{})
	}

	{
		targets := make(map[kind.Kind]overlay.Target)
		for k, mc := range config.MetricConfigs() {
			if mc.OverlayPath != "" {
				targets[k] = overlay.Target{
					Path:     mc.OverlayPath,
					Template: mc.OverlayTemplate,
				}
			}
		}

		gctx.Inst().Overlay, err = overlay.New(overlay.Options{
			Targets: targets,
		})
		if err != nil {
			zap.S().Fatalw("failed to setup overlay writer",
				"error", err,
			)
		}
	}

	{
		gctx.Inst().Heartbeat = heartbeat.New(heartbeat.Options{})
	}

	{
		gctx.Inst().Prometheus = prometheus.New(prometheus.Options{
			Labels: config.Monitoring.Labels.ToPrometheus(),
		})
	}

	toggles := configure.NewToggles(config.MetricConfigs())
	gctx.Inst().Toggles = toggles

	sup := supervisor.New(supervisor.Options{
		Build: func(runID string) supervisor.Runner {
			return scheduler.New(scheduler.Options{
				RunID:      runID,
				Configs:    config.MetricConfigs(),
				Toggles:    gctx.Inst().Toggles,
				Presence:   gctx.Inst().Presence,
				Source:     gctx.Inst().Source,
				Overlay:    gctx.Inst().Overlay,
				Heartbeat:  gctx.Inst().Heartbeat,
				Prometheus: gctx.Inst().Prometheus,
				Tick:       config.Timing.Tick,
				TickSingle: config.Timing.TickSingle,
				TickMulti:  config.Timing.TickMulti,
				Grace:      config.Timing.Grace,
				Idle:       config.Timing.Idle,
			})
		},
		Cooldown:   config.Timing.Cooldown,
		Heartbeat:  gctx.Inst().Heartbeat,
		Prometheus: gctx.Inst().Prometheus,
	})

	watching := config.Watch(toggles, sup.Enabled)
	if watching {
		zap.S().Infow("watching config for metric toggles",
			"file", config.ConfigFile,
		)
	}

	wg := sync.WaitGroup{}

	if gctx.Config().Health.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-health.New(gctx)
		}()
	}

	if gctx.Config().Monitoring.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-monitoring.New(gctx)
		}()
	}

	if gctx.Config().PProf.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-pprof.New(gctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		<-sig
		cancel()
		go func() {
			select {
			case <-time.After(time.Minute):
			case <-sig:
			}
			zap.S().Fatal("force shutdown")
		}()

		zap.S().Info("shutting down")

		wg.Wait()

		close(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sup.Run(gctx)
	}()

	zap.S().Info("running")

	<-done

	zap.S().Info("shutdown")
	os.Exit(0)
}
