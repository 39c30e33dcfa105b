// Copyright 2026 Lamina ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package main provides the lamina CLI.
package main

import (
	"os"

	"github.com/lamina-ml/lamina/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
