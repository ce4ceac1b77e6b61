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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/clusterview/services/clusterview/budget"
	"github.com/AleutianAI/clusterview/services/clusterview/config"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArtifact writes the four-leaf tree ((a,b),(c,d)) with unit spread.
func writeArtifact(t *testing.T) string {
	t.Helper()
	unit := []float64{1, 1}
	artifact := dendrogram.Artifact{
		Leaves: []dendrogram.MicroCluster{
			{ID: "a", MemberIDs: []string{"n1"}, Centroid: []float64{0, 0}, Variance: unit},
			{ID: "b", MemberIDs: []string{"n2"}, Centroid: []float64{0.1, 0}, Variance: unit},
			{ID: "c", MemberIDs: []string{"n3"}, Centroid: []float64{10, 0}, Variance: unit},
			{ID: "d", MemberIDs: []string{"n4"}, Centroid: []float64{10.1, 0}, Variance: unit},
		},
		Linkage:     [][]float64{{0, 1, 1, 2}, {2, 3, 1.5, 2}, {4, 5, 10, 4}},
		InternalIDs: []string{"ab", "cd", "root"},
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dendrogram.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvArtifact, "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBudgetCmd(t *testing.T) {
	out, err := execute(t, "budget", "--preference", "0", "--nodes", "4", "--entropy", "2")
	require.NoError(t, err)

	var b budget.Budget
	require.NoError(t, json.Unmarshal([]byte(out), &b))

	cfg, err := config.Default()
	require.NoError(t, err)
	assert.Equal(t, cfg.Budget.Compute(0, 4, 2), b.ResolvedCount)
	assert.Equal(t, b.ResolvedCount, b.Remaining)
	assert.Equal(t, 0.0, b.Preference)
}

func TestBudgetCmd_NegativeNodes(t *testing.T) {
	_, err := execute(t, "budget", "--nodes", "-1")
	assert.Error(t, err)
}

func TestViewCmd(t *testing.T) {
	path := writeArtifact(t)

	t.Run("default", func(t *testing.T) {
		out, err := execute(t, "view", "--artifact", path)
		require.NoError(t, err)

		var v view.View
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		require.Len(t, v.Clusters, 1)
		assert.Equal(t, "root", v.Clusters[0].ID)
	})

	t.Run("expanded with members", func(t *testing.T) {
		out, err := execute(t, "view", "--artifact", path, "--expand", "root", "--members")
		require.NoError(t, err)

		var v view.View
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		require.Len(t, v.Clusters, 2)
		assert.Equal(t, "ab", v.Clusters[0].ID)
		assert.Equal(t, []string{"n1", "n2"}, v.Clusters[0].MemberIDs)
		assert.Equal(t, []string{"root"}, v.Meta.ExpandedIDs)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := execute(t, "view", "--artifact", path, "--expand", "zzz")
		assert.Error(t, err)
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := execute(t, "view", "--artifact", filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}

func TestInspectCmd(t *testing.T) {
	path := writeArtifact(t)

	out, err := execute(t, "inspect", "--artifact", path)
	require.NoError(t, err)

	var report inspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, path, report.Artifact)
	assert.Equal(t, 7, report.Nodes)
	assert.Equal(t, 4, report.Leaves)
	assert.Equal(t, 4, report.Members)
	assert.Equal(t, 2, report.Dim)
	assert.Equal(t, "root", report.RootID)
	assert.Equal(t, 10.0, report.RootHeight)
	assert.Equal(t, []string{"root"}, report.DefaultCut)
	assert.Equal(t, report.DefaultBudget.ResolvedCount-1, report.DefaultBudget.Remaining)

	out, err = execute(t, "inspect", "--artifact", path, "--node", "cd")
	require.NoError(t, err)

	var info view.NodeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "cd", info.ID)
	assert.Equal(t, []string{"c", "d"}, info.ChildrenIDs)

	_, err = execute(t, "inspect", "--artifact", path, "--node", "zzz")
	assert.Error(t, err)
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "view", "budget", "inspect"} {
		assert.Contains(t, names, want)
	}
}
