// File: cmd/gripcore-proxy/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/gripcore/api"
	"github.com/momentics/gripcore/control"
	"github.com/momentics/gripcore/domainmap"
	"github.com/momentics/gripcore/supervisor"
)

// version is set at build time via -ldflags; it has no effect on behavior.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var settings *control.Settings

	root := &cobra.Command{
		Use:     "gripcore-proxy",
		Short:   "A single-threaded-reactor-per-worker WebSocket relay proxy",
		Version: version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			settings, err = control.Load(cmd)
			return err
		},
	}
	control.BindFlags(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if settings == nil {
		// --help or --version were handled by cobra/pflag and the RunE
		// above never ran.
		return 0
	}

	log, rotator, err := buildLogger(settings)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gripcore-proxy: logger init failed:", err)
		return 1
	}
	defer log.Sync()
	if rotator != nil {
		defer rotator.Close()
	}

	dm, err := buildDomainMap(settings, log)
	if err != nil {
		log.Error("gripcore-proxy: domain map init failed", zap.Error(err))
		return 1
	}
	defer dm.Close()

	info := api.ServiceInfo{
		Name:      "gripcore-proxy",
		Version:   version,
		StartedAt: time.Now(),
	}

	sup := supervisor.New(supervisor.Config{
		Settings:   settings,
		DomainMap:  dm,
		Info:       info,
		Logger:     log,
		LogRotator: rotator,
	})
	return sup.Run()
}

func buildDomainMap(s *control.Settings, log *zap.Logger) (*domainmap.DomainMap, error) {
	if len(s.Routes) > 0 {
		return domainmap.NewFromLines(s.Routes, log)
	}
	if s.RoutesFile != "" {
		return domainmap.NewFromFile(s.RoutesFile, log)
	}
	return domainmap.NewFromLines(nil, log)
}

// buildLogger constructs the process logger. When LogFile is set, logging
// goes through a control.RotatingFile so handleHup can rotate it in place;
// the returned rotator is nil when logging to stderr, since there is
// nothing there for SIGHUP to reopen.
func buildLogger(s *control.Settings) (*zap.Logger, *control.RotatingFile, error) {
	level := levelFromSettings(s.LogLevel)

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if s.LogFile == "" {
		cfg.Level = zap.NewAtomicLevelAt(level)
		log, err := cfg.Build()
		return log, nil, err
	}

	rotator, err := control.NewRotatingFile(s.LogFile)
	if err != nil {
		return nil, nil, err
	}
	encoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	core := zapcore.NewCore(encoder, zapcore.AddSync(rotator), level)
	log := zap.New(core, zap.ErrorOutput(zapcore.AddSync(rotator)))
	return log, rotator, nil
}

// levelFromSettings maps the distilled 0-4 verbosity scale onto zap's
// level enum: 0-1 are error/warn, 2 is the documented default (info), 3-4
// step down into debug.
func levelFromSettings(v int) zapcore.Level {
	switch {
	case v <= 0:
		return zapcore.ErrorLevel
	case v == 1:
		return zapcore.WarnLevel
	case v == 2:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
