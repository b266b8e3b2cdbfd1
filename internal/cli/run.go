package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relab/arbmon/chain"
	"github.com/relab/arbmon/checkpoint"
	"github.com/relab/arbmon/config"
	"github.com/relab/arbmon/detect"
	"github.com/relab/arbmon/hub"
	"github.com/relab/arbmon/logging"
	"github.com/relab/arbmon/monitor"
	"github.com/relab/arbmon/retention"
	"github.com/relab/arbmon/scanner"
	"github.com/relab/arbmon/stats"
	"github.com/relab/arbmon/store"
)

// shutdownGrace bounds how long the HTTP listener may take to drain on
// SIGINT/SIGTERM before the process exits anyway.
const shutdownGrace = 5 * time.Second

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the monitor on all configured chains",
		RunE: func(*cobra.Command, []string) error {
			return runMonitor()
		},
	})
}

func runMonitor() error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logging.SetLogLevel(cfg.LogLevel)
	logger := logging.New("arbmon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Bootstrap(ctx); err != nil {
		return err
	}

	checkpoints, err := checkpoint.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	h := hub.New(cfg.MaxSubscribers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()

	var connectors []*chain.Connector
	for _, ch := range cfg.Chains {
		if err := db.SyncChain(ctx, ch); err != nil {
			return err
		}

		conn, err := chain.NewConnector(ch)
		if err != nil {
			return fmt.Errorf("chain %s: %w", ch.Name, err)
		}
		connectors = append(connectors, conn)

		feed := chain.NewPriceFeed(ch.NativeTokenUSD)
		analyzer := detect.NewAnalyzer(ch.Name, ch.DexRouters, nil)
		calculator := detect.NewCalculator(ch.Name, feed)

		mon := monitor.New(ch, conn, analyzer, calculator, db, checkpoints, h)
		scan := scanner.New(ch, conn, db, h, *cfg)

		wg.Add(2)
		go func() {
			defer wg.Done()
			mon.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			scan.Run(ctx)
		}()
	}
	defer func() {
		for _, conn := range connectors {
			conn.Close()
		}
	}()

	aggregator := stats.New(db.DB(), *cfg)
	sweeper := retention.New(db.DB(), *cfg)
	wg.Add(2)
	go func() {
		defer wg.Done()
		aggregator.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	srv := newHTTPServer(viper.GetString("listen"), h, db)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("listener failed: %v", err)
			stop()
		}
	}()
	logger.Infow("arbmon started",
		"chains", len(cfg.Chains),
		"listen", viper.GetString("listen"))

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("listener shutdown: %v", err)
	}
	wg.Wait()
	return nil
}

// newHTTPServer exposes the live stream plus the operational adapters:
// prometheus metrics and a sync-status health check.
func newHTTPServer(addr string, h *hub.Hub, db *store.Store) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := db.ChainStatuses(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
