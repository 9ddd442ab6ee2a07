package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stonet-research/DPFS/internal/aio"
	"github.com/stonet-research/DPFS/internal/backingfs"
	"github.com/stonet-research/DPFS/internal/config"
	"github.com/stonet-research/DPFS/internal/fs"
	"github.com/stonet-research/DPFS/internal/hal/loopback"
	"github.com/stonet-research/DPFS/internal/logger"
	"github.com/stonet-research/DPFS/internal/metrics"
)

// metricsAddr is where the Prometheus registry is served. Fixed rather
// than configurable: §6 names exactly four config keys and none of them
// govern this.
const metricsAddr = "127.0.0.1:9100"

// serve loads cfgPath, wires the translation layer together, and blocks
// until ctx is cancelled (SIGINT/SIGTERM via cmd/root.go).
//
// The DPU Hardware Abstraction Layer that actually owns the SmartNIC
// queues and the virtio-fs/FUSE wire decoder is an external collaborator
// (§1(a)(b)) this module does not implement or vendor. What this command
// can and does build is everything on this side of that boundary: the
// Server (which satisfies hal.Dispatcher and is ready for a real HAL to
// register a device against and start calling Dispatch), plus the async
// I/O ring, logging, and metrics it needs. Lacking a real HAL to drive it,
// this command registers the Server against internal/hal/loopback's
// harness so the binary is a complete, runnable demonstration of the
// wiring end to end; production deployment swaps the loopback harness for
// the real DPU HAL binding.
func serve(ctx context.Context, cfgPath string) error {
	if cfgPath == "" {
		return fmt.Errorf("-c/--config is required")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, closeLog := logger.New("")
	defer closeLog()
	log.Info("starting dpfs-local-mirror", "config", cfgPath, "dir", cfg.LocalMirror.Dir)

	queueDepth, err := backingfs.ChooseAsyncQueueDepth(0)
	if err != nil {
		return fmt.Errorf("choosing async queue depth: %w", err)
	}

	ring, err := aio.NewURing(aio.Config{
		QueueDepth: queueDepth,
		CQPolling:  cfg.LocalMirror.URingCQPolling,
	})
	if err != nil {
		return fmt.Errorf("initialising io_uring (queue_depth=%d): %w", queueDepth, err)
	}

	harness := loopback.New()

	var srv *fs.Server
	m := metrics.New(func() int {
		if srv == nil {
			return 0
		}
		return srv.TableLen()
	})

	srv, err = fs.NewServer(fs.Config{
		Dir:             cfg.LocalMirror.Dir,
		MetadataTimeout: cfg.MetadataTimeout(),
		Ring:            ring,
		Completer:       harness,
		Logger:          log,
		Metrics:         m,
		CQPolling:       cfg.LocalMirror.URingCQPolling,
		ReaperThreads:   cfg.LocalMirror.URingCQPollingNThreads,
	})
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer srv.Shutdown()

	if err := srv.RegisterDevice(0); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}
	defer func() { _ = srv.UnregisterDevice(0) }()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}

	// The metrics listener and the shutdown-wait below run as the two
	// members of this process's goroutine pool (§5 "a small fixed pool of
	// OS threads... the design permits both" inline or dedicated reaping);
	// errgroup gives them one cooperative-shutdown join point instead of a
	// bare goroutine the caller has no way to wait on or fail alongside.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return metricsSrv.Close()
	})

	log.Info("ready", "metrics_addr", metricsAddr)
	return g.Wait()
}
