package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/tik-regcrawler/internal/api"
	"github.com/JakeFAU/tik-regcrawler/internal/dispatcher"
	"github.com/JakeFAU/tik-regcrawler/internal/lockmap"
	queuemem "github.com/JakeFAU/tik-regcrawler/internal/queue/memory"
	"github.com/JakeFAU/tik-regcrawler/internal/worker"
)

// Handler builds the dispatcher and worker pool and returns the ops API
// handler alongside the dispatcher that must be Run for submitted work to
// execute.
func (a *App) Handler() (http.Handler, *dispatcher.Dispatcher, *queuemem.Queue) {
	cfg := a.Config.Server
	q := queuemem.NewQueue(cfg.QueueDepth)
	locks := lockmap.New()
	workers := make([]*worker.Worker, 0, cfg.Workers)
	for i := 1; i <= cfg.Workers; i++ {
		workers = append(workers, worker.New(i, q, a.Orchestrator, locks, a.Logger))
	}
	disp := dispatcher.New(q, workers, a.Sources, a.Runs, a.IDs, a.Clock)

	apiCfg := api.Config{RequestTimeout: cfg.RequestTimeout}
	if a.Config.Auth.Enabled {
		apiCfg.APIKey = a.Config.Auth.APIKey
	}
	srv := api.NewServer(apiCfg, disp, a.Sources, a.Runs, a.Health, a.Checks, a.Logger)
	return srv.Handler(), disp, q
}

// Serve runs the ops API and the worker pool until ctx is cancelled, then
// stops accepting requests and lets in-flight runs stop at their next URL.
func (a *App) Serve(ctx context.Context) error {
	handler, disp, q := a.Handler()
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		disp.Run(workerCtx)
		return nil
	})
	g.Go(func() error {
		a.Logger.Info("ops api listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down ops api")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownGrace)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		stopWorkers()
		q.Close()
		if err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})
	return g.Wait()
}
