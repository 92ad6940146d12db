// Swatchwise - identify the colour under the cursor
//
// Swatchwise names the colour under the cursor on a web page and tells you
// which seasonal palettes it belongs to.
//
// Copyright (c) 2025 John Mylchreest
// Licensed under the MIT License
package main

import (
	"os"

	"github.com/jmylchreest/swatchwise/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
