// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/born-ml/tensorexpr/internal/config"
)

func configHandler(cmd *cobra.Command, _ []string) error {
	vars := config.AsMap()

	var data [][]string
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprint(v.Value), v.Description})
	}

	renderTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, data)
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "List configuration variables and their effective values",
		Args:  cobra.NoArgs,
		RunE:  configHandler,
	}
}
