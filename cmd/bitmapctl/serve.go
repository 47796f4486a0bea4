package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/srediag/plugin-bitmap/pkg/bitmap"
	"github.com/srediag/plugin-bitmap/pkg/health"
)

var (
	serveAddr      string
	serveMinFree   uint64
	serveMaxMapped int64
	serveShare     []string
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints",
		Long: `The serve command keeps an allocator alive and exposes /live and /ready
health checks plus Prometheus metrics on /metrics. Images passed with --share
are loaded and copied into shared segments at startup.

Example:
  bitmapctl serve --addr :9090 --share logo.png --max-mapped 268435456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
	defaults := health.DefaultOptions()
	cmd.Flags().StringVar(&serveAddr, "addr", ":9090", "Listen address")
	cmd.Flags().Uint64Var(&serveMinFree, "min-shm-free", defaults.MinShmFree, "Free bytes /dev/shm must keep to stay live")
	cmd.Flags().Int64Var(&serveMaxMapped, "max-mapped", 0, "Mapped bytes above which the server is not ready (0 disables)")
	cmd.Flags().StringArrayVar(&serveShare, "share", nil, "Image to load into a shared segment at startup")
	return cmd
}

// newServeHandler routes the health and metrics endpoints.
func newServeHandler(alloc *bitmap.Allocator, reg *prometheus.Registry, opts health.Options) http.Handler {
	checks := health.NewHandler(alloc, opts)
	mux := http.NewServeMux()
	mux.HandleFunc("/live", checks.LiveEndpoint)
	mux.HandleFunc("/ready", checks.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func runServe(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	config := bitmap.DefaultConfig()
	config.Registerer = reg
	alloc, err := newAllocator(config)
	if err != nil {
		return err
	}
	defer alloc.Close()

	for _, path := range serveShare {
		b, err := alloc.LoadFromFile(ctx, path)
		if err != nil {
			return err
		}
		shared, err := b.ToShareable(ctx)
		_ = b.Close()
		if err != nil {
			return err
		}
		defer shared.Close()
		printInfo("Shared %s as segment %s (fd %d)\n", path, shared.Segment().ID(), shared.Segment().Fd())
	}

	opts := health.DefaultOptions()
	opts.ShmDir = config.Shm.Dir
	opts.MinShmFree = serveMinFree
	opts.MaxMappedBytes = serveMaxMapped

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           newServeHandler(alloc, reg, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	printInfo("Serving on %s\n", serveAddr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
