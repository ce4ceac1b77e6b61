// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command clusterview serves and inspects hierarchical cluster views.
//
// Usage:
//
//	clusterview serve --config clusterview.yaml
//	clusterview view --artifact data/dendrogram.json --expand root
//	clusterview budget --preference 0.8 --nodes 5000 --entropy 3.2
//	clusterview inspect --artifact data/dendrogram.json --node root
//
// Example requests against a running server:
//
//	# Health check
//	curl http://localhost:8090/v1/clusterview/health
//
//	# Default view
//	curl -X POST http://localhost:8090/v1/clusterview/view \
//	  -H "Content-Type: application/json" \
//	  -d '{"budget_preference": 0.5}'
//
//	# Expand a cluster
//	curl -X POST http://localhost:8090/v1/clusterview/view \
//	  -H "Content-Type: application/json" \
//	  -d '{"expanded_ids": ["root"], "affinity": 0.3}'
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
