// Package grpcserver runs the gRPC health endpoint. The overall service is
// always SERVING once started; the notification broker is reported as a
// separate service so probes can tell a degraded instance from a dead one.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NotifyService is the health service name that tracks the broker connection.
const NotifyService = "taskhub.notify"

// Availability reports whether a dependency can be used right now.
type Availability interface {
	Available() bool
}

// Health mirrors broker availability into a grpc health server.
type Health struct {
	hs       *health.Server
	src      Availability
	interval time.Duration
	log      *zap.Logger
}

// NewHealth creates a Health that polls src every interval.
func NewHealth(src Availability, interval time.Duration, log *zap.Logger) *Health {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h := &Health{hs: health.NewServer(), src: src, interval: interval, log: log.Named("health")}
	h.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.Sync()
	return h
}

// Server returns the underlying health service implementation.
func (h *Health) Server() healthpb.HealthServer { return h.hs }

// Sync sets the broker status once.
func (h *Health) Sync() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if h.src.Available() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus(NotifyService, st)
	return st
}

// Run polls until ctx is done, then marks every service NOT_SERVING.
func (h *Health) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	last := h.Sync()
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			if st := h.Sync(); st != last {
				h.log.Info("broker health changed", zap.Stringer("status", st))
				last = st
			}
		}
	}
}

// NewServer builds a gRPC server with logging and panic recovery and the
// health service registered. Reflection is enabled in dev mode.
func NewServer(log *zap.Logger, h *Health, dev bool, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(
			RecoverStream(log),
			LoggingStream(log),
		),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.Server())
	if dev {
		reflection.Register(s)
	}
	return s
}
