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
	"github.com/AleutianAI/clusterview/services/clusterview/view"
	"github.com/spf13/cobra"
)

type viewOptions struct {
	preference float64
	expand     []string
	collapse   []string
	affinity   float64
	members    bool
}

func newViewCmd(opts *globalOptions) *cobra.Command {
	vo := &viewOptions{}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Compute one view offline and print it as JSON",
		Example: `  clusterview view --artifact data/dendrogram.json
  clusterview view --expand root --expand c12 --affinity 0.4 --members`,
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
			v, err := view.NewEngine(model).Compute(cmd.Context(), vo.query())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().Float64Var(&vo.preference, "preference", clusterview.DefaultPreference, "Level of detail in [0, 1]")
	cmd.Flags().StringSliceVar(&vo.expand, "expand", nil, "Cluster ids to expand (repeatable)")
	cmd.Flags().StringSliceVar(&vo.collapse, "collapse", nil, "Sibling ids to collapse into their parent")
	cmd.Flags().Float64Var(&vo.affinity, "affinity", 0, "Tree-distance weight in the layout, in [0, 1]")
	cmd.Flags().BoolVar(&vo.members, "members", false, "Include member ids on every cluster")
	return cmd
}

func (o *viewOptions) query() view.Query {
	return view.Query{
		Preference:     o.preference,
		ExpandedIDs:    o.expand,
		CollapseGroup:  o.collapse,
		Affinity:       o.affinity,
		IncludeMembers: o.members,
	}
}
