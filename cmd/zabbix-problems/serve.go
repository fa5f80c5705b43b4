package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zabbix-problems/zabbix-problems/internal/metrics"
	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/ws"
)

var (
	serveSource sourceFlags
	servePort   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll continuously and serve sensors over HTTP and WebSocket",
	RunE:  runServe,
}

func init() {
	serveSource.register(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := monitor.NewCoordinator(serveSource.build(cfg, log), monitor.Options{
		PollInterval:     cfg.Monitor.PollInterval,
		FailureThreshold: cfg.Monitor.FailureThreshold,
		Logger:           log,
	})
	for _, sc := range cfg.Sensors {
		coord.Register(sc.Name, sc.TagList())
	}

	broadcaster := ws.NewBroadcaster(coord, cfg.Monitor.BroadcastThrottle, cfg.Monitor.SnapshotInterval, 0, log)
	coord.AddListener(broadcaster)

	opts := ws.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	}
	if cfg.Metrics.Enabled {
		exporter := metrics.NewExporter()
		coord.AddListener(exporter)
		opts.Metrics = exporter.Handler()
	}
	server := ws.NewServer(coord, broadcaster, opts)

	if err := coord.Start(ctx); err != nil {
		// The loop keeps retrying; sensors stay unavailable until it succeeds.
		log.Warn("initial poll failed", zap.String("error_kind", monitor.ErrorKind(err)), zap.Error(err))
	}

	httpServer := ws.NewHTTPServer(cfg.Server.Addr(), server.Handler())
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr), zap.Int("sensors", len(cfg.Sensors)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
	}

	coord.Stop()
	broadcaster.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", zap.Error(serr))
	}
	return err
}
