package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/xonx4l/orderbook/domain"
	"github.com/xonx4l/orderbook/usecase"
)

type SnapshotQuery interface {
	GetOrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.DepthView, error)
}

type service struct {
	orderbookSnapshotUseCase SnapshotQuery
	local                    usecase.DepthSource
	validationService        *ValidationService
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

func NewServer(
	query SnapshotQuery,
	local usecase.DepthSource,
	conf *ValidationServiceConfig,
	logger zerolog.Logger,
) *Server {
	logger = logger.With().Str("component", "grpc").Logger()

	s := &Server{
		grpc:   grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger))),
		health: health.NewServer(),
		logger: logger,
	}

	s.grpc.RegisterService(&OrderBookServiceDesc, &service{
		orderbookSnapshotUseCase: query,
		local:                    local,
		validationService:        NewValidationService(conf),
	})
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.setServing(false)
	return s
}

// HealthObserver reports SERVING only while the book is live.
func (s *Server) HealthObserver() domain.MaintainerObserver {
	return &healthObserver{server: s}
}

type healthObserver struct {
	domain.NopObserver
	server *Server
}

func (h *healthObserver) OnStateChange(state domain.SyncState) {
	h.server.setServing(state.IsLive())
}

func (s *Server) setServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve blocks until ctx is done or the listener fails. On cancellation it
// drains in-flight calls and returns nil.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("grpc server: %w", err)
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		s.logger.Info().Msg("grpc server stopped")
		return nil
	}
}

func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		started := time.Now()
		resp, err := handler(ctx, req)

		logger.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("took", time.Since(started)).
			Msg("handled")
		return resp, err
	}
}
