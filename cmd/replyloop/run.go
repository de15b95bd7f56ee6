package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/replyloop/pkg/caller"
	"github.com/fluxorio/replyloop/pkg/config"
	"github.com/fluxorio/replyloop/pkg/core"
	"github.com/fluxorio/replyloop/pkg/core/concurrency"
	"github.com/fluxorio/replyloop/pkg/dispatch"
	prommetrics "github.com/fluxorio/replyloop/pkg/observability/prometheus"
	"github.com/fluxorio/replyloop/pkg/observability/tracing"
	"github.com/fluxorio/replyloop/pkg/reply"
	"github.com/fluxorio/replyloop/pkg/work"
)

// ErrVerification is returned when at least one caller got a wrong or early reply.
var ErrVerification = errors.New("reply verification failed")

func newRunCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher with simulated callers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			seed := f.seed
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			return runDispatcher(cmd.Context(), cfg, seed, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runDispatcher wires the loop, its pool and cfg.Callers simulated callers,
// prints one report line per caller to out and fails if any reply did not
// verify. Stdout spans go to traceOut.
func runDispatcher(ctx context.Context, cfg config.Dispatcher, seed uint64, out, traceOut io.Writer) error {
	zl, err := core.BuildZap(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := core.NewZapLogger(zl)

	metrics := prommetrics.GetMetrics()
	if cfg.Metrics.Addr != "" {
		srv := &fasthttp.Server{Handler: prommetrics.Router(prommetrics.DefaultRegistry), Name: "replyloop"}
		go func() {
			if err := srv.ListenAndServe(cfg.Metrics.Addr); err != nil {
				logger.Errorf("metrics server stopped: %v", err)
			}
		}()
		defer func() { _ = srv.Shutdown() }()
		logger.Infof("serving metrics on %s/metrics", cfg.Metrics.Addr)
	}

	tp, err := tracing.NewProvider(ctx, cfg.Tracing, traceOut)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("tracer shutdown: %v", err)
		}
	}()

	pool := concurrency.NewWorkerPool[work.Item](ctx, concurrency.WorkerPoolConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	if err := pool.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pool.Stop(stopCtx); err != nil {
			logger.Warnf("worker pool stop: %v", err)
		}
	}()

	inbound := concurrency.NewBoundedMailbox[work.Item](cfg.InboundCapacity)
	registry := reply.NewRegistry()
	callers := make([]*caller.Caller, 0, cfg.Callers)
	for id := 0; id < cfg.Callers; id++ {
		c := caller.New(id, inbound, cfg.PayloadUnit)
		if err := c.Register(registry); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		callers = append(callers, c)
	}

	loop, err := dispatch.New(inbound, registry, pool,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithTracer(tracing.Tracer(tp)),
		dispatch.WithPayloadUnit(cfg.PayloadUnit),
	)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	reports := make([]caller.Report, len(callers))
	errs := make([]error, len(callers))
	var wg sync.WaitGroup
	for i, c := range callers {
		wg.Add(1)
		go func(i int, c *caller.Caller) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, uint64(c.ID())))
			reports[i], errs[i] = c.Simulate(ctx, rng, cfg.MaxStartDelay, cfg.MaxPayload)
		}(i, c)
	}
	wg.Wait()
	inbound.Close()

	if err := <-runErr; err != nil {
		return err
	}
	if err := loop.Wait(ctx); err != nil {
		return err
	}

	failed := 0
	for i, r := range reports {
		err := errs[i]
		if err == nil {
			err = r.Verify()
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "caller %d: FAILED: %v\n", callers[i].ID(), err)
			continue
		}
		if r.Overdue() {
			logger.Warnf("caller %d: reply for payload %d arrived late: %v for %v of work",
				r.Request.CallerID, r.Request.Payload, r.Elapsed, r.Request.Duration(r.Unit))
			fmt.Fprintf(out, "%s (late)\n", r.String())
			continue
		}
		fmt.Fprintln(out, r.String())
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d callers", ErrVerification, failed, len(callers))
	}
	return nil
}
