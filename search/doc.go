// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search retrieves ranked source content for a query.
//
// A Retriever over-fetches children from the vector store, filters them by
// document and element type, resolves each surviving child to its parent
// content through the parent/child index, normalizes the store's raw
// scores to [0,1] and returns the top k, one result per parent.
//
// # Score normalization
//
// Stores report either a distance (lower is better) or a similarity
// (higher is better). ScoreDistance and ScoreSimilarity state the metric
// explicitly. ScoreAuto infers it from the observed range: a maximum raw
// score strictly between 0.5 and 2.5 is read as a distance. The inference
// is a heuristic and can misrank results when a store's metric changes or
// when all hits happen to fall outside the band; prefer an explicit mode
// when the store documents its metric.
//
// Basic usage:
//
//	r, err := search.NewRetriever(vectors, idx, search.WithScoreMode(search.ScoreDistance))
//	results, err := r.Search(ctx, search.Query{Text: "attention heads", K: 5})
package search
