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

package search

import (
	"github.com/poiesic/mmrag/core"
)

// Drop reasons reported to a RetrievalMonitor.
const (
	DropOtherDocument = "other_document"
	DropImage         = "image_excluded"
	DropNoParentID    = "missing_parent_id"
	DropUnresolved    = "unresolved_parent"
	DropDuplicate     = "duplicate_parent"
)

// RetrievalMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results during search.
type RetrievalMonitor interface {
	Start(q Query)
	AfterVectorSearch(fetched int)
	Dropped(childID string, reason string)
	AfterNormalization(applied ScoreMode)
	Finish(results []core.SourceResult)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query) {}
func (n *noopMonitor) AfterVectorSearch(_ int) {}
func (n *noopMonitor) Dropped(_ string, _ string) {}
func (n *noopMonitor) AfterNormalization(_ ScoreMode) {}
func (n *noopMonitor) Finish(_ []core.SourceResult) {}
