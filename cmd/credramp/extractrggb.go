// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/milk-org/credramp/bayer"
	"github.com/milk-org/credramp/stream"
	"github.com/milk-org/credramp/stream/mem"
)

var (
	rggbMode    string
	rggbVerbose bool
	rggbWidth   int
	rggbHeight  int
)

var extractRGGBCmd = &cobra.Command{
	Use:   "extractRGGBchan <input> <R> <G1> <G2> <B>",
	Short: "Split a raw Bayer-pattern frame into four half-resolution channel streams",
	Args:  cobra.ExactArgs(5),
	RunE:  runExtractRGGB,
}

func init() {
	extractRGGBCmd.Flags().StringVar(&rggbMode, "mode", "auto", "Bayer layout: auto, gbrg, or rggb")
	extractRGGBCmd.Flags().BoolVar(&rggbVerbose, "verbose", false, "Print per-channel mean/variance")
	extractRGGBCmd.Flags().IntVar(&rggbWidth, "sim-width", 64, "Frame width for the synthetic input frame")
	extractRGGBCmd.Flags().IntVar(&rggbHeight, "sim-height", 64, "Frame height for the synthetic input frame")
	rootCmd.AddCommand(extractRGGBCmd)
}

func runExtractRGGB(cmd *cobra.Command, args []string) error {
	inputName, rName, g1Name, g2Name, bName := args[0], args[1], args[2], args[3], args[4]

	in := mem.New(rggbWidth, rggbHeight, stream.U16)
	raw := make([]uint16, rggbWidth*rggbHeight)
	rnd := rand.New(rand.NewSource(1))
	for i := range raw {
		raw[i] = uint16(rnd.Intn(4096))
	}
	in.Push(raw, nil)

	mode, ok := bayer.ModeForSize(rggbWidth, rggbHeight)
	switch rggbMode {
	case "gbrg":
		mode, ok = bayer.Mode1GBRG, true
	case "rggb":
		mode, ok = bayer.Mode2RGGB, true
	case "auto":
		if !ok {
			logger.Warnw("unrecognized sensor size, defaulting to GBRG", "width", rggbWidth, "height", rggbHeight)
		}
	default:
		return fmt.Errorf("unknown --mode %q: want auto, gbrg, or rggb", rggbMode)
	}

	channels := bayer.Split(in.Raw(), rggbWidth, rggbHeight, mode)

	resolver := mem.NewResolver(map[string]stream.Image{inputName: in})
	like := mem.New(channels.W, channels.H, stream.U16)
	outR, err := resolver.ResolveOrCreate(rName, like)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", rName, err)
	}
	outG1, err := resolver.ResolveOrCreate(g1Name, like)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", g1Name, err)
	}
	outG2, err := resolver.ResolveOrCreate(g2Name, like)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", g2Name, err)
	}
	outB, err := resolver.ResolveOrCreate(bName, like)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", bName, err)
	}

	publishChannel(outR, channels.R)
	publishChannel(outG1, channels.G1)
	publishChannel(outG2, channels.G2)
	publishChannel(outB, channels.B)

	if rggbVerbose {
		r, g1, g2, b := channels.ChannelStats()
		fmt.Printf("R:  mean=%.2f var=%.2f\n", r.Mean, r.Variance)
		fmt.Printf("G1: mean=%.2f var=%.2f\n", g1.Mean, g1.Variance)
		fmt.Printf("G2: mean=%.2f var=%.2f\n", g2.Mean, g2.Variance)
		fmt.Printf("B:  mean=%.2f var=%.2f\n", b.Mean, b.Variance)
	}

	return nil
}

func publishChannel(out stream.Output, ch []float32) {
	for i, v := range ch {
		out.SetPix(i, v)
	}
	if err := out.Publish(); err != nil {
		logger.Warnw("failed to publish channel", "error", err)
	}
}
