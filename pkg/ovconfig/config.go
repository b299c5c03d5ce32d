// Package ovconfig loads the JSON configuration file selected by the
// CLI's --config flag into the runtime structures the webserver and
// recorder subcommands need.
package ovconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LogConfig is the on-disk shape of a subcommand's rotating-log policy.
// Each subcommand loads its own, since a recorder process and a
// webserver process reasonably want different retention.
type LogConfig struct {
	FilePath   string `json:"file_path"`
	MaxSizeMB  int64  `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// WebConfig is the on-disk shape of the reactor/webserver config file.
type WebConfig struct {
	IO struct {
		Domain struct {
			Path string `json:"path"`
		} `json:"domain"`
		Limits struct {
			ReconnectIntervalUsec int64 `json:"reconnect_interval_usec"`
			TimeoutUsec           int64 `json:"timeout_usec"`
		} `json:"limits"`
		Listen struct {
			Network string `json:"network"`
			Address string `json:"address"`
		} `json:"listen"`
	} `json:"io"`
	Log LogConfig `json:"log"`
}

// ReconnectInterval returns the configured reconnect interval, or def
// if unset.
func (c WebConfig) ReconnectInterval(def time.Duration) time.Duration {
	if c.IO.Limits.ReconnectIntervalUsec <= 0 {
		return def
	}
	return time.Duration(c.IO.Limits.ReconnectIntervalUsec) * time.Microsecond
}

// Timeout returns the configured accept/io timeout, or def if unset.
func (c WebConfig) Timeout(def time.Duration) time.Duration {
	if c.IO.Limits.TimeoutUsec <= 0 {
		return def
	}
	return time.Duration(c.IO.Limits.TimeoutUsec) * time.Microsecond
}

// RecorderConfig is the on-disk shape of the recorder subcommand's
// config file.
type RecorderConfig struct {
	Recorder struct {
		Root              string `json:"root"`
		Ext               string `json:"ext"`
		NumWorkers        int    `json:"num_workers"`
		FramesToBuffer    int    `json:"frames_to_buffer"`
		SilenceCutoff     int    `json:"silence_cutoff_frames"`
		ZeroCrossingRate  float64 `json:"zero_crossing_rate"`
		PowerThresholdDBFS float64 `json:"power_threshold_dbfs"`
	} `json:"recorder"`
	Resmgr struct {
		Network string `json:"network"`
		Address string `json:"address"`
	} `json:"resmgr"`
	Log LogConfig `json:"log"`
}

// LoadWeb reads and parses path as a WebConfig.
func LoadWeb(path string) (WebConfig, error) {
	var cfg WebConfig
	if err := loadJSON(path, &cfg); err != nil {
		return WebConfig{}, err
	}
	return cfg, nil
}

// LoadRecorder reads and parses path as a RecorderConfig.
func LoadRecorder(path string) (RecorderConfig, error) {
	var cfg RecorderConfig
	if err := loadJSON(path, &cfg); err != nil {
		return RecorderConfig{}, err
	}
	if cfg.Recorder.Ext == "" {
		cfg.Recorder.Ext = "wav"
	}
	if cfg.Recorder.NumWorkers == 0 {
		cfg.Recorder.NumWorkers = 4
	}
	return cfg, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
