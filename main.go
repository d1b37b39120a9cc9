package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	configpkg "driftpursuit/rewind/internal/config"
	"driftpursuit/rewind/internal/coordinator"
	"driftpursuit/rewind/internal/dump"
	rewindgrpc "driftpursuit/rewind/internal/grpc"
	httpapi "driftpursuit/rewind/internal/http"
	"driftpursuit/rewind/internal/input"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/rewind"
	"driftpursuit/rewind/internal/simulation"
)

const (
	shutdownTimeout    = 5 * time.Second
	dumpSweepInterval  = time.Minute
	dumpRequestTimeout = 2 * time.Second
)

// commanderFunc adapts a function to Commander.
type commanderFunc func(cmd input.Command) error

// Enqueue implements Commander.
func (f commanderFunc) Enqueue(cmd input.Command) error { return f(cmd) }

func main() {
	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", logging.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// sessionConfig maps the environment configuration onto the session tunables.
func sessionConfig(cfg *configpkg.Config) (simulation.SessionConfig, error) {
	out := simulation.DefaultSessionConfig()
	out.Engine = rewind.Config{
		CaptureInterval:           cfg.Capture.Interval.Seconds(),
		RetentionWindow:           cfg.Capture.Retention.Seconds(),
		RecordVelocityAndMode:     cfg.Capture.RecordKinematics,
		PauseAnimationDuringScrub: cfg.Capture.PauseAnimation,
	}
	speeds, err := coordinator.NewSpeedTable(cfg.SpeedMultipliers)
	if err != nil {
		return out, err
	}
	preset, err := coordinator.ParsePreset(cfg.DefaultSpeed)
	if err != nil {
		return out, err
	}
	out.Speeds = speeds
	out.Preset = preset
	out.DemoBodies = cfg.DemoBodies
	out.Seed = cfg.DemoSeed
	return out, nil
}

func run(ctx context.Context, cfg *configpkg.Config, logger *logging.Logger) error {
	sessCfg, err := sessionConfig(cfg)
	if err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	//1.- Control frames pass the gate before reaching the session queue.
	gate := input.NewGate(input.GateConfig{MaxAge: cfg.InputMaxAge, MinInterval: cfg.InputMinInterval}, logger)
	hubOpts := []HubOption{
		WithHubLogger(logger),
		WithAllowedOrigins(cfg.AllowedOrigins),
		WithMaxClients(cfg.MaxClients),
		WithPayloadLimit(cfg.MaxPayloadBytes),
		WithPingInterval(cfg.PingInterval),
		WithGate(gate),
	}
	if cfg.AuthSecret != "" {
		authenticator, err := newTokenWebsocketAuthenticator(cfg.AuthSecret)
		if err != nil {
			return fmt.Errorf("websocket auth: %w", err)
		}
		hubOpts = append(hubOpts, WithWebsocketAuthenticator(authenticator))
	}

	var session *simulation.Session
	hub := NewHub(commanderFunc(func(cmd input.Command) error { return session.Enqueue(cmd) }), hubOpts...)
	defer hub.Close()

	monitor := simulation.NewTickMonitor()
	session = simulation.NewSession(sessCfg,
		simulation.WithSessionLogger(logger),
		simulation.WithTimelineSink(hub),
		simulation.WithSessionMonitor(monitor),
	)
	logger.Info("session created", logging.String("session_id", session.ID()))

	//2.- History bundles are written on demand and swept in the background.
	store, err := dump.NewStore(cfg.DumpDir, time.Now)
	if err != nil {
		return fmt.Errorf("dump store: %w", err)
	}
	cleaner := dump.NewCleaner(store.Dir(), dump.RetentionPolicy{MaxBundles: cfg.DumpMaxBundles, MaxAge: cfg.DumpMaxAge}, logger)
	go cleaner.Run(ctx, dumpSweepInterval)

	dumper := httpapi.HistoryDumperFunc(func(reqCtx context.Context) (string, error) {
		reqCtx, cancel := context.WithTimeout(reqCtx, dumpRequestTimeout)
		defer cancel()
		capture, err := session.ExportHistory(reqCtx)
		if err != nil {
			return "", err
		}
		location, err := store.Save(capture)
		if err != nil {
			return "", err
		}
		cleaner.RunOnce()
		return location, nil
	})

	loop := simulation.NewLoop(cfg.TickInterval(), session.Step, simulation.WithMonitor(monitor))
	loop.Start(ctx)
	defer loop.Stop()
	go publishStatus(ctx, hub, session.Status, cfg.StatusRate)

	//3.- Operational HTTP surface.
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.serveWS)
	registerControlDocEndpoints(mux)
	httpapi.NewHandlerSet(httpapi.Options{
		Logger:       logger,
		Readiness:    hub,
		Status:       session.Status,
		Inputs:       gate.Totals,
		Dumper:       dumper,
		AdminToken:   cfg.AdminToken,
		RateLimiter:  httpapi.NewSlidingWindowLimiter(cfg.DumpWindow, cfg.DumpBurst, nil),
		DumpStats:    store.Stats,
		StorageStats: cleaner.Stats,
	}).Register(mux)

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tlsEnabled := cfg.TLSCertPath != ""
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening",
			logging.String("url", listenerURL(cfg.Address, tlsEnabled)),
			logging.String("websocket", websocketURL(cfg.Address, tlsEnabled)))
		var serveErr error
		if tlsEnabled {
			serveErr = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			hub.SetStartupError(serveErr)
			errCh <- fmt.Errorf("http server: %w", serveErr)
		}
	}()

	//4.- Optional gRPC control service.
	var grpcServer *grpc.Server
	if cfg.GRPCAddress != "" {
		grpcServer, err = startGRPC(cfg, logger, session, errCh)
		if err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		shutdown(server, grpcServer, logger)
		return err
	}
	shutdown(server, grpcServer, logger)
	return nil
}

func startGRPC(cfg *configpkg.Config, logger *logging.Logger, session *simulation.Session, errCh chan<- error) (*grpc.Server, error) {
	opts, err := configureGRPCSecurity(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("grpc security: %w", err)
	}
	listener, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}
	server := grpc.NewServer(opts...)
	rewindgrpc.Register(server, rewindgrpc.NewService(session, grpcServiceOptions(cfg, logger)...))
	go func() {
		logger.Info("grpc listening", logging.String("address", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	return server, nil
}

// grpcServiceOptions applies the configured export codec and watch cadence.
func grpcServiceOptions(cfg *configpkg.Config, logger *logging.Logger) []rewindgrpc.Option {
	return []rewindgrpc.Option{
		rewindgrpc.WithLogger(logger),
		rewindgrpc.WithWatchRate(cfg.StatusRate),
		rewindgrpc.WithCompressor(rewindgrpc.CompressorByName(cfg.GRPCExportCodec)),
	}
}

// publishStatus pushes the session status to viewers whenever the tick advanced.
func publishStatus(ctx context.Context, hub *Hub, status func() simulation.Status, rate int) {
	if rate <= 0 {
		rate = configpkg.DefaultStatusRate
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	//1.- No tick has been sent yet, so the sentinel lets tick zero through.
	last := uint64(math.MaxUint64)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := status()
			if current.Tick == last {
				continue
			}
			last = current.Tick
			hub.PublishStatus(current)
		}
	}
}

func shutdown(server *http.Server, grpcServer *grpc.Server, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	if grpcServer == nil {
		return
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		grpcServer.Stop()
	}
}
