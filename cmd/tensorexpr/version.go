// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/tensorexpr/internal/backend/gpu"
	"github.com/born-ml/tensorexpr/internal/config"
	"github.com/born-ml/tensorexpr/tensor"
)

func versionHandler(cmd *cobra.Command, _ []string) {
	f := tensor.CurrentFeatures()
	device := "none"
	if d := gpu.Default(); d != nil {
		device = d.Name()
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "tensorexpr %s\n", version)
	fmt.Fprintf(w, "cpu:     %s\n", config.CPUName())
	fmt.Fprintf(w, "vector:  %s\n", f.Vector)
	fmt.Fprintf(w, "threads: %d\n", f.Threads)
	fmt.Fprintf(w, "device:  %s\n", device)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and host capabilities",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}
}
