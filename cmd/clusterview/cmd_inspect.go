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
	"github.com/AleutianAI/clusterview/services/clusterview"
	"github.com/AleutianAI/clusterview/services/clusterview/budget"
	"github.com/AleutianAI/clusterview/services/clusterview/view"
	"github.com/spf13/cobra"
)

// inspectReport summarises a loaded artifact.
type inspectReport struct {
	Artifact      string        `json:"artifact"`
	Nodes         int           `json:"nodes"`
	Leaves        int           `json:"leaves"`
	Members       int           `json:"members"`
	Dim           int           `json:"dim"`
	RootID        string        `json:"root_id"`
	RootHeight    float64       `json:"root_height"`
	Entropy       float64       `json:"entropy"`
	DefaultBudget budget.Budget `json:"default_budget"`
	DefaultCut    []string      `json:"default_cut"`
}

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var nodeID string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarise an artifact, or describe one node with --node",
		Example: `  clusterview inspect --artifact data/dendrogram.json
  clusterview inspect --artifact data/dendrogram.json --node root`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			model, err := loadModel(cfg)
			if err != nil {
				return err
			}
			engine := view.NewEngine(model)

			if nodeID != "" {
				info, err := engine.Node(nodeID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), info)
			}

			v, err := engine.Compute(cmd.Context(), view.Query{Preference: clusterview.DefaultPreference})
			if err != nil {
				return err
			}
			d := model.Dendrogram()
			root := d.Root()
			report := inspectReport{
				Artifact:      cfg.Artifact.Path,
				Nodes:         d.Len(),
				Leaves:        d.LeafCount(),
				Members:       d.MemberCount(),
				Dim:           d.Dim(),
				RootID:        root.ID,
				RootHeight:    root.Height,
				Entropy:       model.Entropy(),
				DefaultBudget: model.Budget(clusterview.DefaultPreference).WithUsed(len(v.Clusters)),
				DefaultCut:    make([]string, len(v.Clusters)),
			}
			for i, c := range v.Clusters {
				report.DefaultCut[i] = c.ID
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&nodeID, "node", "", "Describe this node instead of the whole artifact")
	return cmd
}
