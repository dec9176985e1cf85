package pprof

import (
	"github.com/stepcord/stepcord/internal/global"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/pprofhandler"
	"go.uber.org/zap"
)

// New serves the runtime profiles under /debug/pprof/.
func New(gctx global.Context) <-chan struct{} {
	done := make(chan struct{})

	srv := fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if !ctx.IsGet() {
				ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
				return
			}

			pprofhandler.PprofHandler(ctx)
		},
	}

	go func() {
		defer close(done)
		zap.S().Infow("pprof enabled",
			"bind", gctx.Config().PProf.Bind,
		)

		if err := srv.ListenAndServe(gctx.Config().PProf.Bind); err != nil {
			zap.S().Fatalw("pprof failed to listen",
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
