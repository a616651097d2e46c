package app

import (
	"context"
	"net/http"
	"time"

	"scenefeed/internal/sweeper"
	"scenefeed/pkg/api"
	"scenefeed/pkg/logger"
)

// startSweeper starts the periodic full-resync runner when enabled.
func (a *App) startSweeper(ctx context.Context) (context.CancelFunc, error) {
	return sweeper.Start(ctx, a.cfg.Sweep, a.store, a.sched)
}

// startHTTP builds the facade handler, starts the HTTP server in a
// goroutine and returns a channel that will contain any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	srv := api.NewServer(a.store, a.feed, a.mutate)
	a.srv = &http.Server{Addr: a.addr, Handler: srv.Handler(a.cfg.Server.RateLimit)}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facade_listening", "addr", a.addr)
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}

func (a *App) shutdownHTTP() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(ctx)
}
