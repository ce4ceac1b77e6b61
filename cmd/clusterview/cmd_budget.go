// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/clusterview/services/clusterview"
	"github.com/spf13/cobra"
)

func newBudgetCmd(opts *globalOptions) *cobra.Command {
	var (
		preference float64
		nodes      int
		entropy    float64
	)

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Print the visible-cluster budget for a preference",
		Long: `Evaluates the budget model with the configured tunables. No artifact
is loaded; pass the graph node count and cluster entropy directly.`,
		Example: `  clusterview budget --preference 0.8 --nodes 5000 --entropy 3.2`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nodes < 0 {
				return fmt.Errorf("--nodes must be non-negative, got %d", nodes)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cfg.Budget.Resolve(preference, nodes, entropy))
		},
	}

	cmd.Flags().Float64Var(&preference, "preference", clusterview.DefaultPreference, "Level of detail in [0, 1]")
	cmd.Flags().IntVar(&nodes, "nodes", 0, "Graph node count")
	cmd.Flags().Float64Var(&entropy, "entropy", 1, "Cluster entropy in bits (values below 1 count as 1)")
	return cmd
}
