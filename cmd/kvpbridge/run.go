package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/kvpbridge/internal/api"
	"github.com/banshee-data/kvpbridge/internal/config"
	"github.com/banshee-data/kvpbridge/internal/controlloop"
	"github.com/banshee-data/kvpbridge/internal/diagnostics"
	"github.com/banshee-data/kvpbridge/internal/endpoint"
	"github.com/banshee-data/kvpbridge/internal/hwinterface"
	"github.com/banshee-data/kvpbridge/internal/joints"
	"github.com/banshee-data/kvpbridge/internal/krl"
	"github.com/banshee-data/kvpbridge/internal/metrics"
	"github.com/banshee-data/kvpbridge/internal/monitoring"
)

const healthService = "kvpbridge"

// NewRunCommand connects to the controller and runs the loop until
// interrupted.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var listen, grpcListen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and run the control loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = &listen
			}
			if cmd.Flags().Changed("grpc-listen") {
				cfg.GRPC.Listen = &grpcListen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", config.DefaultHTTPListen, "HTTP listen address")
	cmd.Flags().StringVar(&grpcListen, "grpc-listen", "", "gRPC health listen address (empty disables)")
	return cmd
}

// bridge is every long-lived component of one run.
type bridge struct {
	cfg        *config.Config
	sim        *endpoint.Simulator
	hw         *hwinterface.HardwareInterface
	loop       *controlloop.Runner
	pub        *diagnostics.Publisher
	monitor    *diagnostics.Monitor
	metrics    *metrics.Metrics
	health     *health.Server
	healthSink *diagnostics.HealthSink
}

func newBridge(cfg *config.Config) (*bridge, error) {
	m := metrics.New()
	pub := diagnostics.NewPublisher(cfg.GetDiagnosticsBuffer())
	pub.OnDrop(m.DiagnosticDropped)

	codec, err := krl.NewCodec(cfg.GetAggregateType(), krl.Units(cfg.GetUnits()))
	if err != nil {
		return nil, err
	}

	// The simulator starts at the zero pose and reflects every command
	// back as the measured position.
	sim := endpoint.NewSimulator()
	zero, err := joints.New(cfg.Joints)
	if err != nil {
		return nil, err
	}
	home, err := codec.EncodeCommand(zero)
	if err != nil {
		return nil, err
	}
	sim.Set(cfg.GetReadVariable(), home)
	sim.Mirror(cfg.GetWriteVariable(), cfg.GetReadVariable())

	registry := endpoint.NewRegistry()
	registry.Register(endpoint.SimScheme, sim)

	hw, err := hwinterface.New(cfg.Joints, hwinterface.Options{
		Endpoint:    cfg.EndpointOptions(),
		Dialer:      registry,
		Codec:       codec,
		Diagnostics: pub,
		Metrics:     m,
		SeedCommand: cfg.GetSeedCommand(),
	})
	if err != nil {
		return nil, err
	}
	loop, err := controlloop.New(hw, controlloop.Options{Period: cfg.GetPeriod()})
	if err != nil {
		return nil, err
	}

	hs := health.NewServer()
	return &bridge{
		cfg:        cfg,
		sim:        sim,
		hw:         hw,
		loop:       loop,
		pub:        pub,
		monitor:    diagnostics.NewMonitor(cfg.GetDiagnosticsWindow()),
		metrics:    m,
		health:     hs,
		healthSink: diagnostics.NewHealthSink(hs, healthService, cfg.GetFailureThreshold()),
	}, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	if closer := monitoring.OpenLogFile(monitoring.LogFileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.GetLogMaxSizeMB(),
		MaxBackups: cfg.GetLogMaxBackups(),
	}); closer != nil {
		defer closer.Close()
	}

	b, err := newBridge(cfg)
	if err != nil {
		return err
	}

	httpLis, err := net.Listen("tcp", cfg.GetHTTPListen())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GetHTTPListen(), err)
	}
	var grpcLis net.Listener
	if addr := cfg.GetGRPCListen(); addr != "" {
		grpcLis, err = net.Listen("tcp", addr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}

	if err := b.hw.Connect(ctx); err != nil {
		httpLis.Close()
		if grpcLis != nil {
			grpcLis.Close()
		}
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	// diagnostics consumers
	wg.Add(1)
	go func() {
		defer wg.Done()
		logSink := diagnostics.LogSink{Every: uint64(cfg.GetLogEvery())}
		if err := b.pub.Run(ctx, b.monitor, logSink, b.healthSink); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("[diag] publisher stopped: %v", err)
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := api.NewServer(b.loop, b.hw, b.monitor, b.metrics.Handler()).ServeMux()
		server := &http.Server{Handler: api.LoggingMiddleware(mux)}

		go func() {
			if err := server.Serve(httpLis); err != nil && err != http.ErrServerClosed {
				monitoring.Logf("[http] server error: %v", err)
			}
		}()
		monitoring.Logf("[http] listening on %s", httpLis.Addr())

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("[http] shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("[http] force close error: %v", err)
			}
		}
	}()

	if grpcLis != nil {
		srv := grpc.NewServer()
		healthpb.RegisterHealthServer(srv, b.health)
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitoring.Logf("[grpc] health service listening on %s", grpcLis.Addr())
			if err := srv.Serve(grpcLis); err != nil {
				monitoring.Logf("[grpc] server error: %v", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			b.health.Shutdown()
			srv.GracefulStop()
		}()
	}

	loopErr := b.loop.Run(ctx)
	if loopErr != nil {
		monitoring.Logf("[loop] stopped: %v", loopErr)
	}
	b.healthSink.MarkDown()
	cancel()

	disconnectErr := b.hw.Disconnect()
	wg.Wait()
	monitoring.Logf("shutdown complete")
	return errors.Join(loopErr, disconnectErr)
}
