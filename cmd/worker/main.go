// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/batch-worker/internal/cache"
	"github.com/SyedDaiam9101/batch-worker/internal/config"
	"github.com/SyedDaiam9101/batch-worker/internal/handler"
	"github.com/SyedDaiam9101/batch-worker/internal/metrics"
	"github.com/SyedDaiam9101/batch-worker/internal/middleware"
	"github.com/SyedDaiam9101/batch-worker/internal/observability"
	"github.com/SyedDaiam9101/batch-worker/internal/serializer"
	"github.com/SyedDaiam9101/batch-worker/internal/worker"
)

const (
	serviceName    = "batch-worker"
	serviceVersion = "1.0.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to config file (optional)")
	socket := flag.String("socket", "", "Front-end socket path or host:port")
	transport := flag.String("transport", "", "Socket kind: unix or tcp (default: unix)")
	useMsgpack := flag.Bool("msgpack", false, "Use msgpack payloads instead of JSON")
	modelName := flag.String("model", "", "\"spam\" or path to the sentence ONNX model (default: spam)")
	redisAddr := flag.String("redis", "", "Redis address for the result cache (default: disabled)")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (default: 9100)")
	grpcPort := flag.Int("grpc", 0, "gRPC health port (default: 50051)")
	logLevel := flag.String("log-level", "", "Log level (default: info)")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return 2
	}

	// Override with flags if provided
	if *socket != "" {
		cfg.Socket = *socket
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *useMsgpack {
		cfg.UseMsgpack = true
	}
	if *modelName != "" {
		cfg.Model = *modelName
	}
	if *redisAddr != "" {
		cfg.Redis = *redisAddr
	}
	if *metricsPort > 0 {
		cfg.MetricsPort = *metricsPort
	}
	if *grpcPort > 0 {
		cfg.GRPCPort = *grpcPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid config")
		return 2
	}

	logger, err := observability.InitLogger(serviceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error().Err(err).Msg("failed to init logger")
		return 2
	}
	ser := serializer.New(cfg.UseMsgpack)
	logger.Info().
		Str("socket", cfg.Socket).
		Str("transport", cfg.Transport).
		Str("payload", ser.Mode().String()).
		Str("model", cfg.Model).
		Bool("cache", cfg.Redis != "").
		Msgf("starting %s", serviceName)

	// Initialize OpenTelemetry tracer
	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = observability.InitTracer(serviceName, serviceVersion, cfg.OTELEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize tracer")
		}
	}

	spec, err := loadModel(cfg.Model, cfg.ONNXLibrary, cfg.ONNXInput, cfg.ONNXOutput, time.Now().UnixNano())
	if err != nil {
		logger.Error().Err(err).Str("model", cfg.Model).Msg("failed to load model")
		return 1
	}
	defer spec.close()
	logger.Info().Str("model", spec.name).Msg("model loaded")

	// Initialize Redis cache (optional)
	var resultCache handler.ResultCache
	if cfg.Redis != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c, err := cache.New(ctx, cfg.Redis, cfg.CacheTTL)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("continuing without cache")
		} else {
			defer c.Close()
			resultCache = c
			logger.Info().Str("addr", cfg.Redis).Msg("redis connected")
		}
	}

	h, err := handler.New(handler.Config{
		Serializer: ser,
		Request:    spec.request,
		Response:   spec.response,
		Model:      spec.model,
		Cache:      resultCache,
		Logger:     logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to build handler")
		return 1
	}
	proc := middleware.Chain(h,
		middleware.WithBatchID(),
		middleware.WithLogging(logger),
		middleware.WithMetrics(),
		middleware.WithTracing(),
	)

	healthServer := health.NewServer()
	setServing(healthServer, false)

	var httpServer *http.Server
	if cfg.MetricsPort > 0 {
		httpServer = startHTTPServer(cfg.MetricsPort, healthServer, logger)
	}
	var grpcServer *grpc.Server
	if cfg.GRPCPort > 0 {
		grpcServer, err = startGRPCServer(cfg.GRPCPort, healthServer, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to start gRPC server")
			return 1
		}
	}

	wc := cfg.WorkerConfig()
	wc.Logger = logger
	wc.OnStateChange = func(s worker.State) {
		setServing(healthServer, s == worker.StateServing)
	}
	w, err := worker.New(proc, wc)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create worker")
		return 1
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		w.Stop()
	}()

	tr, _ := worker.ParseTransport(cfg.Transport)
	runErr := w.Run(context.Background(), tr, cfg.Socket)

	setServing(healthServer, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(ctx)
	}
	if tracerShutdown != nil {
		_ = tracerShutdown(ctx)
	}

	var fatal *worker.FatalError
	switch {
	case errors.As(runErr, &fatal):
		logger.Error().Err(fatal.Err).Msg("batch processing failed, exiting")
		return 1
	case runErr != nil:
		logger.Error().Err(runErr).Msg("worker stopped with error")
		return 1
	}
	logger.Info().Msg("worker shutdown complete")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadWithConfigFile(path)
	}
	return config.Load()
}

// setServing mirrors the worker state onto gRPC health and the health gauge.
func setServing(hs *health.Server, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
		metrics.SetHealthy()
	} else {
		metrics.SetUnhealthy()
	}
	hs.SetServingStatus(serviceName, status)
	hs.SetServingStatus("", status)
}

func startHTTPServer(port int, healthServer *health.Server, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(healthServer, "OK", "Service Unavailable"))
	// Ready means connected and serving, same check as healthz
	mux.HandleFunc("/readyz", healthHandler(healthServer, "Ready", "Not Ready"))

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening (metrics, health)")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return server
}

func healthHandler(hs *health.Server, ok, unavailable string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := hs.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(unavailable))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ok))
	}
}

func startGRPCServer(port int, healthServer *health.Server, logger zerolog.Logger) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	go func() {
		logger.Info().Str("addr", addr).Msg("gRPC health server listening")
		if err := server.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server error")
		}
	}()
	return server, nil
}
