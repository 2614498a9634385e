// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging builds the structured logger every credramp command
// shares: a zap.SugaredLogger writing to stderr and, when a log path is
// configured, to a lumberjack-rotated file alongside it.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation parameters for the file sink. These mirror the fixed
// constants a long-running reduction process needs: it runs
// unattended for days against a continuous frame stream, so the log
// file must cap itself rather than grow without bound.
const (
	logMaxSizeMB  = 100
	logMaxBackups = 5
	logMaxAgeDays = 28
)

// Config controls logger construction.
type Config struct {
	// Path is the rotated log file's location. Empty disables the file
	// sink; stderr is always active.
	Path string
	// Debug enables debug-level output; otherwise the floor is info.
	Debug bool
}

// New builds a SugaredLogger per Config. Callers that want the
// zero-overhead no-op logger (tests, library use) should pass a nil
// *zap.SugaredLogger to engine.New directly rather than calling this.
func New(cfg Config) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if cfg.Path != "" {
		fileSink := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(fileSink), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger.Sugar()
}
