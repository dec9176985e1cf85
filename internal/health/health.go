package health

import (
	"github.com/fasthttp/router"
	jsoniter "github.com/json-iterator/go"
	"github.com/stepcord/stepcord/internal/global"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// New serves the liveness probe on / and the heartbeat snapshot on /status.
func New(gctx global.Context) <-chan struct{} {
	done := make(chan struct{})

	srv := fasthttp.Server{
		Handler:          Handler(gctx),
		GetOnly:          true,
		DisableKeepalive: true,
	}

	go func() {
		defer close(done)
		zap.S().Infow("Health enabled",
			"bind", gctx.Config().Health.Bind,
		)
		if err := srv.ListenAndServe(gctx.Config().Health.Bind); err != nil {
			zap.S().Fatalw("failed to bind health",
				"error", err,
			)
		}
	}()

	go func() {
		<-gctx.Done()
		_ = srv.Shutdown()
	}()

	return done
}

func Handler(gctx global.Context) fasthttp.RequestHandler {
	r := router.New()

	r.GET("/", func(ctx *fasthttp.RequestCtx) {
		defer recoverPanic(ctx)

		hb := gctx.Inst().Heartbeat
		if hb == nil || !hb.Healthy() {
			if hb != nil {
				zap.S().Warnw("scheduler is not healthy",
					"run_id", hb.Run().ID,
				)
			}
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		}
	})

	r.GET("/status", func(ctx *fasthttp.RequestCtx) {
		defer recoverPanic(ctx)

		hb := gctx.Inst().Heartbeat
		if hb == nil {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}

		body, err := json.Marshal(hb.Snapshot())
		if err != nil {
			zap.S().Errorw("failed to encode heartbeat",
				"error", err,
			)
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}

		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	})

	return r.Handler
}

func recoverPanic(ctx *fasthttp.RequestCtx) {
	if err := recover(); err != nil {
		zap.S().Errorw("panic in health",
			"panic", err,
		)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}
