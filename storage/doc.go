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

// Package storage defines the repository interfaces mmrag persists through.
//
// The interfaces decouple the ingestion pipeline, the parent/child index,
// retrieval, and chat from the concrete store. The badger subpackage
// provides the implementation used by the application and by tests (with an
// in-memory backend).
//
// # Repositories
//
//   - DocumentRepository: document lifecycle records (status, stage, progress)
//   - ParentRepository: the per-document map from child id to parent element
//   - SummaryRepository: the summaries produced for each document
//   - VectorStore: summary embeddings, searchable and deletable per document
//   - MessageRepository: chat sessions and their messages
//
// # Values
//
// Values are JSON encoded. Document records written before the status field
// existed are migrated when they are decoded; see UnmarshalDocument.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Every method takes a
// context.Context.
package storage
