// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/milk-org/credramp/engine"
	"github.com/milk-org/credramp/ramp"
	"github.com/milk-org/credramp/stream"
	"github.com/milk-org/credramp/stream/mem"
)

var (
	simulate  bool
	simRamps  int
	simWidth  int
	simHeight int
	simDType  string
	simNDR    int
)

var credQLUTRCmd = &cobra.Command{
	Use:   "cred_ql_utr <input_name> <output_name> <sat_value>",
	Short: "Run the SDS/UTR ramp reduction engine against a named stream pair",
	Args:  cobra.ExactArgs(3),
	RunE:  runCredQLUTR,
}

func init() {
	credQLUTRCmd.Flags().BoolVar(&simulate, "simulate", false,
		"Drive the engine from a synthetic in-process ramp generator instead of a real substrate")
	credQLUTRCmd.Flags().IntVar(&simRamps, "sim-ramps", 5, "Number of ramps to generate in --simulate mode")
	credQLUTRCmd.Flags().IntVar(&simWidth, "sim-width", 64, "Frame width in --simulate mode")
	credQLUTRCmd.Flags().IntVar(&simHeight, "sim-height", 64, "Frame height in --simulate mode")
	credQLUTRCmd.Flags().StringVar(&simDType, "sim-dtype", "u16", "Raw datatype in --simulate mode: u16 or s16")
	credQLUTRCmd.Flags().IntVar(&simNDR, "sim-ndr", 8, "Reported NDR in --simulate mode")
	rootCmd.AddCommand(credQLUTRCmd)
}

func runCredQLUTR(cmd *cobra.Command, args []string) error {
	inputName, outputName := args[0], args[1]
	satVal, err := strconv.ParseFloat(args[2], 32)
	if err != nil {
		return fmt.Errorf("invalid sat_value %q: %w", args[2], err)
	}

	if !simulate {
		return fmt.Errorf("credramp: no production shared-memory resolver is wired into this build; " +
			"rerun with --simulate, or call engine.New with your own stream.Resolver")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dt := stream.U16
	if simDType == "s16" {
		dt = stream.S16
	}

	in := mem.New(simWidth, simHeight, dt)
	resolver := mem.NewResolver(map[string]stream.Image{inputName: in})

	dev, err := engine.New(resolver, inputName, outputName, float32(satVal), logger)
	if err != nil {
		return fmt.Errorf("credramp: %w", err)
	}

	go simulateRamps(in, dt, simRamps, simNDR)

	logger.Infow("engine started",
		"input", inputName, "output", outputName, "sat_value", satVal, "ndr", simNDR)
	return dev.Run(ctx)
}

// simulateRamps feeds a fixed number of synthetic linear ramps, each
// simNDR reads long, into in, then stops. This stands in for a real
// acquisition pipeline, which is out of scope for this module (see
// the stream/mem package doc comment).
func simulateRamps(in *mem.Image, dt stream.DType, ramps, ndr int) {
	rnd := rand.New(rand.NewSource(1))
	w, h := in.Dims()
	frameCounter := uint16(1)
	sync := ramp.SyncU16
	if dt == stream.S16 {
		sync = ramp.SyncS16
	}
	for r := 0; r < ramps; r++ {
		a := float64(rnd.Intn(50) + 1)
		b := float64(rnd.Intn(200))
		for t2 := ndr - 1; t2 >= 0; t2-- {
			tt := ndr - 1 - t2
			v := uint16(a*float64(tt) + b)
			raw := make([]uint16, w*h)
			raw[0] = frameCounter
			raw[2] = uint16(t2)
			raw[3] = uint16(sync)
			for i := 8; i < len(raw); i++ {
				raw[i] = v
			}
			in.Push(raw, map[string]int64{"NDR": int64(ndr)})
			frameCounter++
			time.Sleep(time.Millisecond)
		}
	}
}
