// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command credramp reduces infrared sensor ramp streams. See the
// cred_ql_utr and extractRGGBchan subcommands.
package main

import (
	"log"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("credramp: %v", err)
		os.Exit(1)
	}
}
