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

// Package index maintains the parent/child multi-vector index.
//
// Each parsed content element (the parent) is summarized elsewhere; Index
// stores the summary as a searchable child in the vector store under a
// fresh id and records {child id: parent} in the document's persisted
// parent map. After a similarity hit, Resolve turns the child id back into
// the full parent content.
//
// The parent map is written before the vectors, so a child id in the
// vector store always has a parent to resolve to. Vectors left behind by
// a partial delete are tolerated by Resolve, which reports them as absent.
package index
