package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"session-gateway/config"
	"session-gateway/gateway"
	"session-gateway/logging"
	"session-gateway/message"
	"session-gateway/metrics"
	"session-gateway/middleware"
	"session-gateway/registry"
	"session-gateway/server"
	"session-gateway/transport"
)

type serveFlags struct {
	configPath  string
	destination string
	httpAddr    string
	rpcAddr     string
	logLevel    string
	strict      bool
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "TOML config file")
	fl.StringVar(&f.destination, "destination", "", "UDP peer host:port (overrides config)")
	fl.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address, empty string disables")
	fl.StringVar(&f.rpcAddr, "rpc-addr", "", "RPC listen address, empty string disables")
	fl.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")
	fl.BoolVar(&f.strict, "strict", false, "reject requests that would be truncated on the wire")
	return cmd
}

// apply overrides cfg with every flag set on the command line.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("destination") {
		cfg.Destination = f.destination
	}
	if changed("http-addr") {
		cfg.HTTPAddr = f.httpAddr
	}
	if changed("rpc-addr") {
		cfg.RPCAddr = f.rpcAddr
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("strict") {
		cfg.StrictEncoding = f.strict
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}
	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout, logger.Named("registry"))
		if err != nil {
			d.closeListeners()
			return err
		}
		d.registry = reg
	}

	if err := d.start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, d.shutdown(shutdownCtx))
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-d.errCh:
		logger.Error("listener failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, d.shutdown(shutdownCtx))
}

// daemon owns the listeners of one serve run. Listeners are bound in
// newDaemon so address errors surface before anything is registered.
type daemon struct {
	cfg    config.Config
	logger *zap.Logger

	gatherer prometheus.Gatherer
	handler  middleware.HandlerFunc // gateway behind the shared middleware chain

	httpLn  net.Listener
	httpSrv *http.Server
	rpcLn   net.Listener
	rpcSrv  *server.RPCServer

	registry   registry.Registry // nil disables self-registration
	registered string            // advertised addr, set once registered

	errCh chan error
}

func newDaemon(cfg config.Config, logger *zap.Logger) (*daemon, error) {
	dest, err := cfg.DestinationAddr()
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	g, err := gateway.New(gateway.Options{
		Destination: dest,
		Listen:      transport.EphemeralListener(cfg.LocalAddr),
		Strict:      cfg.StrictEncoding,
		Logger:      logger.Named("gateway"),
		Metrics:     m,
	})
	if err != nil {
		return nil, err
	}

	mws := buildMiddlewares(cfg, logger, m)
	d := &daemon{
		cfg:      cfg,
		logger:   logger,
		gatherer: promReg,
		handler:  middleware.Chain(mws...)(g.CreateSession),
		errCh:    make(chan error, 2),
	}

	if cfg.HTTPAddr != "" {
		if d.httpLn, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
			return nil, fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
		}
		gin.SetMode(gin.ReleaseMode)
		d.httpSrv = &http.Server{
			Handler: server.NewHTTPHandler(d.handler, server.HTTPOptions{
				Name:        cfg.Name,
				Destination: dest.String(),
				Logger:      logger.Named("http"),
				Gatherer:    promReg,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if cfg.RPCAddr != "" {
		if d.rpcLn, err = net.Listen("tcp", cfg.RPCAddr); err != nil {
			d.closeListeners()
			return nil, fmt.Errorf("listen rpc %s: %w", cfg.RPCAddr, err)
		}
		d.rpcSrv = server.NewRPCServer(logger.Named("rpc"))
		for _, mw := range mws {
			d.rpcSrv.Use(mw)
		}
		d.rpcSrv.Handle(message.MethodCreateSession, g.CreateSession)
	}

	logger.Info("gateway configured",
		zap.String("name", cfg.Name),
		zap.Stringer("destination", dest),
		zap.Bool("strict_encoding", cfg.StrictEncoding),
	)
	return d, nil
}

// buildMiddlewares returns the chain shared by HTTP and RPC. The instances are
// shared too, so both transports draw from one rate limiter.
func buildMiddlewares(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) []middleware.Middleware {
	mws := []middleware.Middleware{
		middleware.Recover(logger),
		middleware.Metrics(m),
		middleware.Logging(logger),
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.RequestTimeout))
	}
	return mws
}

func (d *daemon) start(ctx context.Context) error {
	if d.httpSrv != nil {
		d.logger.Info("http server listening", zap.Stringer("addr", d.httpLn.Addr()))
		go func() {
			if err := d.httpSrv.Serve(d.httpLn); !errors.Is(err, http.ErrServerClosed) {
				d.errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
	if d.rpcSrv != nil {
		go func() {
			if err := d.rpcSrv.Serve(d.rpcLn); !errors.Is(err, server.ErrServerClosed) {
				d.errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
	}

	if d.registry == nil || d.rpcLn == nil {
		return nil
	}
	addr := d.cfg.Advertise(d.rpcLn.Addr())
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
			d.logger.Warn("advertising an unspecified host, set advertise_addr", zap.String("addr", addr))
		}
	}

	regCtx, cancel := context.WithTimeout(ctx, d.cfg.Registry.DialTimeout)
	defer cancel()
	instance := registry.ServiceInstance{Addr: addr, Name: d.cfg.Name}
	if err := d.registry.Register(regCtx, d.cfg.Registry.Service, instance, d.cfg.Registry.TTLSeconds); err != nil {
		return fmt.Errorf("register %s: %w", addr, err)
	}
	d.registered = addr
	d.logger.Info("registered",
		zap.String("service", d.cfg.Registry.Service),
		zap.String("addr", addr),
		zap.Int64("ttl_seconds", d.cfg.Registry.TTLSeconds),
	)
	return nil
}

// shutdown deregisters first so callers stop picking this gateway, then
// drains HTTP and RPC within ctx.
func (d *daemon) shutdown(ctx context.Context) error {
	var errs []error
	if d.registry != nil {
		if d.registered != "" {
			if err := d.registry.Deregister(ctx, d.cfg.Registry.Service, d.registered); err != nil {
				errs = append(errs, err)
			}
		}
		if err := d.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.httpSrv != nil {
		if err := d.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if d.rpcSrv != nil {
		if err := d.rpcSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (d *daemon) closeListeners() {
	if d.httpLn != nil {
		d.httpLn.Close()
	}
	if d.rpcLn != nil {
		d.rpcLn.Close()
	}
}
