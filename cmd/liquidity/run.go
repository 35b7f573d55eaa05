package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenLiquidity/internal/exchange"
	"tokenLiquidity/internal/memo"
	"tokenLiquidity/internal/metrics"
	"tokenLiquidity/internal/reconcile"
	"tokenLiquidity/internal/settle"
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	once, _ := cmd.Flags().GetBool("once")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if a.store != nil {
		if err := a.store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	token, err := a.bridge(ctx)
	if err != nil {
		return err
	}

	var bridge exchange.Bridge
	sources := []reconcile.Source{{
		Chain:           "bch",
		History:         a.bch.History(cfg.PoolAddress),
		Confirmations:   a.bch,
		RefreshWhenIdle: true,
	}}
	if token != nil {
		bridge = token
		sources = append(sources, reconcile.Source{
			Chain:         "evm",
			History:       token,
			Confirmations: token,
			Lookup:        token,
			Asset:         token,
			IsTokenTx:     true,
		})
	}

	exchanger, err := exchange.New(a.engine, a.bch, bridge, a.journal(), cfg.PoolAddress, logger.Named("exchange"))
	if err != nil {
		return err
	}

	m := metrics.New("")
	processor := settle.NewProcessor(exchanger, memo.NewCodec(cfg.PoolAddress), settle.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBackoff,
		MaxDelay:   cfg.RetryMaxDelay,
	}, m, logger.Named("settle"))

	if err := a.loadPool(ctx); err != nil {
		return err
	}

	runner, err := reconcile.NewRunner(reconcile.Config{
		Interval:         cfg.Interval,
		MinConfirmations: cfg.MinConfirmations,
		SeedOnStart:      cfg.SeedOnStart,
	}, reconcile.Deps{
		Pool:     a.pool,
		Settler:  processor,
		State:    a.ledger,
		Seen:     a.seenStore(),
		Outcomes: a.outcomeSink(),
		Metrics:  m,
	}, sources, logger.Named("reconcile"))
	if err != nil {
		return err
	}

	logger.Info("reconciler start",
		zap.String("pool_address", cfg.PoolAddress),
		zap.Bool("bridge", token != nil),
		zap.Duration("interval", cfg.Interval),
		zap.Int64("min_confirmations", cfg.MinConfirmations),
		zap.Bool("postgres", a.store != nil),
	)

	if once {
		results, err := runner.RunOnce(ctx)
		for _, result := range results {
			logger.Info("cycle complete",
				zap.String("chain", result.Chain),
				zap.Int("detected", result.Detected),
				zap.Int("pending", result.Pending),
				zap.Int("settled", len(result.Outcomes)),
			)
		}
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
	}

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	logger.Info("reconciler stopped")
	return nil
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
