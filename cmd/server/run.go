package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"weakgate/api/grpcserver"
	"weakgate/config"
	"weakgate/infra/journal"
	"weakgate/infra/log"
	"weakgate/infra/memory"
	"weakgate/infra/metrics"
	"weakgate/infra/outbox"
	"weakgate/infra/sequence"
	"weakgate/infra/store"
	"weakgate/jobs/broadcaster"
	"weakgate/service"
)

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log.Setup(cfg.Log)
	logger := log.Component("server")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ob, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		return err
	}
	defer ob.Close()

	last, err := service.ReplayJournal(cfg.Journal.Dir)
	if err != nil {
		return errors.Wrap(err, "replay journal")
	}
	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()
	j.Resume(last)
	logger.WithField(log.KeySeq, last).Info("journal replayed")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return errors.Wrap(err, "register metrics")
	}

	svc := service.NewViewService(
		st,
		ob,
		j,
		sequence.New(last),
		memory.NewBufferPool(cfg.Reclaim.BufferSize),
		memory.NewRetireRing(cfg.Reclaim.RingSize),
	)
	defer svc.Shutdown()

	pub, err := broadcaster.NewPublisher(cfg.Events)
	if err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	jobs := 1
	go func() {
		defer func() { done <- struct{}{} }()
		svc.RunReclaimer(bgCtx, cfg.Reclaim.Interval)
	}()
	if pub != nil {
		bc := broadcaster.New(ob, pub, cfg.Events.Interval)
		defer bc.Close()
		jobs++
		go func() {
			defer func() { done <- struct{}{} }()
			bc.Run(bgCtx)
		}()
	}
	defer func() {
		cancel()
		for ; jobs > 0; jobs-- {
			<-done
		}
	}()

	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.GRPC.Addr)
	}
	gs, hs := grpcserver.NewGRPCServer(grpcserver.NewServer(svc))

	serveErr := make(chan error, 1)
	go func() { serveErr <- gs.Serve(lis) }()
	logger.WithField("addr", lis.Addr().String()).Info("grpc serving")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		gs.GracefulStop()
		return nil
	case err := <-serveErr:
		return errors.Wrap(err, "grpc serve")
	}
}
