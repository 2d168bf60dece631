// Package health exposes the standard gRPC health service for a running
// relay or writer process.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const stopGrace = 2 * time.Second

type Server struct {
	service string
	hs      *health.Server
	grpc    *grpc.Server
}

// New returns a server reporting NOT_SERVING for service until SetServing
// is called.
func New(service string) *Server {
	s := &Server{
		service: service,
		hs:      health.NewServer(),
		grpc:    grpc.NewServer(),
	}
	s.hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	s.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.hs)
	return s
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus(s.service, st)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis, logger)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("health server listening", "addr", lis.Addr().String())
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopGrace):
			s.grpc.Stop()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
