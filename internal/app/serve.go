package app

import (
	"context"
	"errors"
	"net/http"
)

// Serve runs the HTTP server and the background loops until ctx is done,
// then shuts both down and drains queued writes.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.Config.HTTPAddr,
		Handler: a.Handler,
	}

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	loops, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		_ = a.Run(loops)
		close(runDone)
	}()

	a.Logger.Infow("sunnie-bot is running", "addr", a.Config.HTTPAddr)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		a.Logger.Errorw("http server failed", "err", serveErr)
	}

	a.Logger.Info("shutting down")
	cancel()
	<-runDone

	doneCtx, stop := context.WithTimeout(context.Background(), DrainTimeout)
	defer stop()
	if err := srv.Shutdown(doneCtx); err != nil {
		a.Logger.Warnw("http server shutdown failed", "err", err)
	}
	if err := a.Close(doneCtx); err != nil {
		a.Logger.Warnw("draining writes failed", "err", err)
	}
	return serveErr
}
