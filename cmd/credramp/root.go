// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"go.uber.org/zap"

	"github.com/milk-org/credramp/internal/logging"

	"github.com/spf13/cobra"
)

var (
	logPath string
	debug   bool
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "credramp",
	Short: "Per-pixel ramp reduction for infrared sensor streams",
	Long: `credramp reduces a stream of raw up-the-ramp infrared sensor reads
into calibrated frames, using correlated double sampling for short ramps
and a least-squares slope fit for long ones.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(logging.Config{Path: logPath, Debug: debug})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logPath, "log-file", "", "Rotated log file path (stderr only if unset)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug-level logging")
}
