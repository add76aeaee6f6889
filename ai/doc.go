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

// Package ai provides abstractions for the AI services used by mmrag.
//
// The package defines three interfaces:
//
//   - Embedder: generates vector embeddings from text
//   - Generator: produces text, optionally from images, with a streaming variant
//   - AIProvider: bundles an Embedder with the chat, text summary, and image
//     summary generators
//
// Providers are explicit values. The ingestion pipeline, the chat service,
// and the vector store each receive the provider they use, which keeps test
// doubles and per-call configuration out of shared package state.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible implementation backed by langchaingo
//   - ai/mock: test doubles with injectable behavior and call counters
//
// Public production constructors return interfaces:
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithHost("http://localhost:11434")))
//
// Mock constructors return concrete types so tests can inject behavior and
// assert on call counts:
//
//	gen := mock.NewMockGenerator()
//	gen.GenerateFunc = func(ctx context.Context, prompt string, images ...ai.Image) (string, error) {
//	    return "a summary", nil
//	}
package ai
