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

package badger

import "github.com/poiesic/mmrag/ai"

// Stores bundles every repository built on one backend.
type Stores struct {
	Backend   *Backend
	Documents *DocumentRepository
	Parents   *ParentRepository
	Summaries *SummaryRepository
	Vectors   *VectorStore
	Messages  *MessageRepository
}

// NewStores creates all repositories over backend. The vector store embeds
// through embedder.
func NewStores(backend *Backend, embedder ai.Embedder) *Stores {
	return &Stores{
		Backend:   backend,
		Documents: NewDocumentRepository(backend),
		Parents:   NewParentRepository(backend),
		Summaries: NewSummaryRepository(backend),
		Vectors:   NewVectorStore(backend, embedder),
		Messages:  NewMessageRepository(backend),
	}
}

// NewMemoryStores creates in-memory repositories for testing.
// Caller must close the returned Backend when done.
func NewMemoryStores(embedder ai.Embedder) (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return NewStores(backend, embedder), nil
}

// Close closes the backend.
func (s *Stores) Close() error {
	return s.Backend.Close()
}
