// Package grpcserver exposes the admin gRPC surface: standard health checks
// backed by the link store, plus optional reflection for grpcurl.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/daladal/discord-bot/internal/repository"
)

// ServiceName is the health service name reporting store reachability.
// The empty name reports the same status for the whole process.
const ServiceName = "riotlink.Store"

// DefaultInterval is how often the store is pinged when Options.Interval is unset.
const DefaultInterval = 15 * time.Second

// Options configure the admin server.
type Options struct {
	Interval   time.Duration
	Reflection bool
}

// Admin serves grpc.health.v1 with a status derived from store pings.
type Admin struct {
	srv      *grpc.Server
	hs       *health.Server
	store    repository.Pinger
	interval time.Duration
	log      *zap.Logger
}

// New builds the admin server. Status starts as NOT_SERVING until the
// first successful ping.
func New(store repository.Pinger, opts Options, log *zap.Logger) *Admin {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if opts.Reflection {
		reflection.Register(srv)
	}

	a := &Admin{srv: srv, hs: hs, store: store, interval: opts.Interval, log: log}
	a.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return a
}

func (a *Admin) set(st healthpb.HealthCheckResponse_ServingStatus) {
	a.hs.SetServingStatus("", st)
	a.hs.SetServingStatus(ServiceName, st)
}

// Check pings the store once and publishes the result.
func (a *Admin) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, a.interval)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := a.store.Ping(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		a.log.Warn("store ping failed", zap.Error(err))
	}
	a.set(st)
	return st
}

// Watch re-checks the store every interval until ctx is done.
func (a *Admin) Watch(ctx context.Context) {
	t := time.NewTicker(a.interval)
	defer t.Stop()

	last := a.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if st := a.Check(ctx); st != last {
				a.log.Info("health changed", zap.Stringer("status", st))
				last = st
			}
		}
	}
}

// Serve accepts connections on lis until Stop is called.
func (a *Admin) Serve(lis net.Listener) error {
	err := a.srv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop marks every service NOT_SERVING and drains in-flight calls, forcing
// the shutdown after timeout.
func (a *Admin) Stop(timeout time.Duration) {
	a.hs.Shutdown()

	done := make(chan struct{})
	go func() {
		a.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		a.srv.Stop()
	}
}
