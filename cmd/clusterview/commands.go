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
	"encoding/json"
	"fmt"
	"io"

	"github.com/AleutianAI/clusterview/services/clusterview"
	"github.com/AleutianAI/clusterview/services/clusterview/config"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/view"
	"github.com/spf13/cobra"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configPath string
	artifact   string
}

// newRootCmd builds the command tree. Each call returns fresh commands and
// flag state.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "clusterview",
		Short: "Interactive hierarchical cluster views over a dendrogram",
		Long: `clusterview loads a dendrogram artifact and answers view requests:
which clusters are visible for a detail budget, how they are laid out in 2-D,
and what expanding or collapsing a cluster would do.`,
		Version:       clusterview.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default: $CLUSTERVIEW_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&opts.artifact, "artifact", "", "Dendrogram artifact path (overrides config)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newViewCmd(opts),
		newBudgetCmd(opts),
		newInspectCmd(opts),
	)
	return rootCmd
}

// loadConfig loads the layered configuration and applies the --artifact
// override.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.artifact != "" {
		cfg.Artifact.Path = o.artifact
	}
	return cfg, nil
}

// loadModel loads the artifact named by cfg and builds the view model.
func loadModel(cfg *config.Config) (*view.Model, error) {
	d, err := dendrogram.LoadArtifact(cfg.Artifact.Path)
	if err != nil {
		return nil, err
	}
	return view.NewModel(d, cfg.Model())
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
