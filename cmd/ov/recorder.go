package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ov-collective/ovgo/pkg/ovconfig"
	"github.com/ov-collective/ovgo/pkg/ovio"
	"github.com/ov-collective/ovgo/pkg/ovlog"
	"github.com/ov-collective/ovgo/pkg/ovmetrics"
	"github.com/ov-collective/ovgo/pkg/ovrecorder"
)

var recorderMetricsAddr string

func newRecorderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recorder",
		Short: "Run the multicast RTP recorder",
		RunE:  runRecorder,
	}
	cmd.Flags().StringVar(&recorderMetricsAddr, "metrics-address", ":9091", "debug/metrics listener address")
	return cmd
}

func runRecorder(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("recorder requires --config")
	}

	cfg, err := ovconfig.LoadRecorder(configPath)
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

	recovered, err := ovrecorder.Scan(cfg.Recorder.Root)
	if err != nil {
		return fmt.Errorf("scan recordings root: %w", err)
	}
	for _, r := range recovered {
		logger.Warn("found recording file on disk at startup", "path", r.Path, "id", r.ID)
	}

	table := ovrecorder.NewTable()
	pipeline := ovrecorder.NewPipeline(table)

	pool := ovrecorder.NewWorkerPool(pipeline, cfg.Recorder.NumWorkers, 0, logger)
	pool.OnDrop(metrics.IncFramesDropped)
	defer pool.Close()

	reactor := ovio.New(ovio.Config{Logger: logger})
	defer reactor.Close()

	shutdownCh := make(chan struct{})
	adapter := ovrecorder.NewAdapter(reactor, table, pool, ovrecorder.Config{
		Root:                cfg.Recorder.Root,
		Ext:                 cfg.Recorder.Ext,
		FramesToBuffer:      cfg.Recorder.FramesToBuffer,
		SilenceCutoffFrames: cfg.Recorder.SilenceCutoff,
		VAD: ovrecorder.VADParams{
			ZeroCrossingThreshold: cfg.Recorder.ZeroCrossingRate,
			PowerThresholdDBFS:    cfg.Recorder.PowerThresholdDBFS,
		},
	}, logger, func() { close(shutdownCh) })
	adapter.OnRecordingClosed(metrics.IncRecordingsClosed)

	if err := adapter.Connect(cfg.Resmgr.Network, cfg.Resmgr.Address); err != nil {
		return fmt.Errorf("connect to resource manager: %w", err)
	}

	go serveDebug(metrics, recorderMetricsAddr, logger)
	go reportRecordingsOpen(metrics, table)

	select {
	case <-shutdownCh:
		logger.Info("recorder shutting down on signal from resource manager")
	case <-signalChan():
		logger.Info("recorder shutting down")
	}
	table.Shutdown()
	return nil
}

func reportRecordingsOpen(m *ovmetrics.Metrics, table *ovrecorder.Table) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.SetRecordingsOpen(len(table.List()))
	}
}

