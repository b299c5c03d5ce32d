package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ov-collective/ovgo/pkg/ovconfig"
	"github.com/ov-collective/ovgo/pkg/ovdomain"
	"github.com/ov-collective/ovgo/pkg/ovio"
	"github.com/ov-collective/ovgo/pkg/ovlog"
	"github.com/ov-collective/ovgo/pkg/ovmetrics"
	"github.com/ov-collective/ovgo/pkg/ovweb"
)

var (
	webListenNetwork string
	webListenAddress string
	webMetricsAddr   string
)

func newWebserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webserver",
		Short: "Run the TLS/websocket reactor",
		RunE:  runWebserver,
	}

	cmd.Flags().StringVar(&webListenNetwork, "network", "tcp", "listener network (tcp, unix)")
	cmd.Flags().StringVar(&webListenAddress, "address", ":8443", "listener address")
	cmd.Flags().StringVar(&webMetricsAddr, "metrics-address", ":9090", "debug/metrics listener address")

	return cmd
}

func runWebserver(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("webserver requires --config")
	}

	cfg, err := ovconfig.LoadWeb(configPath)
	if err != nil {
		return err
	}

	metrics := ovmetrics.New()

	logger, closeLog, err := ovlog.Setup(ovlog.Config{
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSizeMB * 1024 * 1024,
		MaxBackups: cfg.Log.MaxBackups,
		JSON:       true,
		OnRotate:   func(ovlog.RotationEvent) { metrics.IncLogRotations() },
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeLog()

	registry, err := ovdomain.Load(cfg.IO.Domain.Path)
	if err != nil {
		return fmt.Errorf("load domain registry: %w", err)
	}

	reactor := ovio.New(ovio.Config{
		ReconnectInterval: cfg.ReconnectInterval(3 * time.Second),
		AcceptToIOTimeout: cfg.Timeout(3 * time.Second),
		Logger:            logger,
	})
	defer reactor.Close()

	router := ovweb.NewRouter(ovweb.DefaultLimits())
	server := ovweb.NewServer(reactor, router, logger)

	network, address := webListenNetwork, webListenAddress
	if cfg.IO.Listen.Address != "" {
		network, address = cfg.IO.Listen.Network, cfg.IO.Listen.Address
	}

	if _, err := server.Listen(network, address, registry.ServerTLSConfig()); err != nil {
		return fmt.Errorf("listen on %s %s: %w", network, address, err)
	}
	logger.Info("webserver listening", "network", network, "address", address)

	go observeReactorMetrics(metrics, reactor)
	go serveDebug(metrics, webMetricsAddr, logger)

	waitForSignal()
	logger.Info("webserver shutting down")
	return nil
}

func observeReactorMetrics(m *ovmetrics.Metrics, reactor *ovio.Reactor) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.ObserveTable(reactor.Table())
	}
}

func waitForSignal() {
	<-signalChan()
}

func signalChan() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}
