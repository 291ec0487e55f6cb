package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"shooterd/config"
)

const shutdownTimeout = 5 * time.Second

// Server 组装监听、多路复用、Tick 循环与管理接口
type Server struct {
	cfg     config.Config
	log     *zap.SugaredLogger
	metrics *Metrics

	registry   *Registry
	arena      *Arena
	ticks      *TickCoordinator
	mux        *Multiplexer
	spectators *SpectatorHub

	admin   *http.Server
	adminLn net.Listener

	grpc   *grpc.Server
	health *health.Server
	grpcLn net.Listener
}

// New 绑定所有监听端口；任一端口绑定失败即返回错误（启动失败）
func New(cfg config.Config, log *zap.SugaredLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		metrics:  &Metrics{},
		registry: NewRegistry(),
		arena: NewArena(ArenaConfig{
			Width:            cfg.WorldWidth,
			Height:           cfg.WorldHeight,
			Speed:            cfg.PlayerSpeed,
			RayLifetimeTicks: cfg.RayLifetimeTicks,
		}),
		spectators: NewSpectatorHub(log.Named("spectator")),
	}

	s.ticks = NewTickCoordinator(s.arena, TickConfig{
		Interval:         cfg.TickInterval(),
		BroadcastEvery:   cfg.BroadcastEvery,
		InputQueueSize:   cfg.InputQueueSize,
		MaxInputsPerTick: cfg.MaxInputsPerTick,
		Personalize:      cfg.PersonalizeSnapshots,
	}, log.Named("tick"), s.metrics)

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr(), err)
	}
	s.mux = NewMultiplexer(ln, s.registry, s.ticks, MultiplexerOptions{
		ReadBufferSize: cfg.ReadBufferSize,
		MaxMessageSize: cfg.MaxMessageSize,
		SendQueueSize:  cfg.SendQueueSize,
		WriteTimeout:   cfg.WriteTimeout,
	}, log.Named("mux"), s.metrics)
	s.ticks.Attach(s.mux)
	s.ticks.AddPublisher(s.spectators)

	if cfg.AdminAddr != "" {
		if s.adminLn, err = net.Listen("tcp", cfg.AdminAddr); err != nil {
			return nil, multierr.Append(fmt.Errorf("listen admin %s: %w", cfg.AdminAddr, err), ln.Close())
		}
		s.admin = &http.Server{Handler: s.NewAdminRouter(), ReadHeaderTimeout: 5 * time.Second}
	}

	if cfg.GRPCAddr != "" {
		if s.grpcLn, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			err = fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
			if s.adminLn != nil {
				err = multierr.Append(err, s.adminLn.Close())
			}
			return nil, multierr.Append(err, ln.Close())
		}
		s.grpc = grpc.NewServer()
		s.health = health.NewServer()
		healthpb.RegisterHealthServer(s.grpc, s.health)
	}
	return s, nil
}

// Addr 游戏监听地址
func (s *Server) Addr() net.Addr { return s.mux.Addr() }

// AdminAddr 管理接口地址；未启用时为 nil
func (s *Server) AdminAddr() net.Addr {
	if s.adminLn == nil {
		return nil
	}
	return s.adminLn.Addr()
}

// GRPCAddr gRPC 健康检查地址；未启用时为 nil
func (s *Server) GRPCAddr() net.Addr {
	if s.grpcLn == nil {
		return nil
	}
	return s.grpcLn.Addr()
}

// Run 运行直到 ctx 取消或任一组件失败
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.mux.Serve(gctx) })
	g.Go(func() error { return s.ticks.Run(gctx) })

	if s.admin != nil {
		g.Go(func() error {
			if err := s.admin.Serve(s.adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin: %w", err)
			}
			return nil
		})
	}
	if s.grpc != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			if err := s.grpc.Serve(s.grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}

	s.log.Infow("server listening", "game", s.Addr().String(), "admin", s.cfg.AdminAddr, "grpc", s.cfg.GRPCAddr,
		"tickRate", s.cfg.TickRate, "broadcastEvery", s.cfg.BroadcastEvery)

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		return s.shutdown()
	})
	return g.Wait()
}

func (s *Server) shutdown() error {
	var err error
	s.spectators.Close()
	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Append(err, s.admin.Shutdown(ctx))
	}
	if s.grpc != nil {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}
	return err
}
