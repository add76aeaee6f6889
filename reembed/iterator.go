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

package reembed

import (
	"context"

	"github.com/poiesic/mmrag/storage"
)

const (
	// DefaultBatchSize is the default number of vectors fetched per batch.
	DefaultBatchSize = 100
)

// VectorIterator pages through every stored vector.
type VectorIterator struct {
	vectors   storage.VectorMaintainer
	batchSize int
}

// NewVectorIterator creates an iterator. A non-positive batchSize uses
// DefaultBatchSize.
func NewVectorIterator(vectors storage.VectorMaintainer, batchSize int) *VectorIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &VectorIterator{
		vectors:   vectors,
		batchSize: batchSize,
	}
}

// ForEach calls fn with consecutive batches in key order. Iteration stops
// at the first error from fn, or when the context is cancelled between
// batches.
func (it *VectorIterator) ForEach(ctx context.Context, fn func([]*storage.VectorRecord) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, next, err := it.vectors.ScanVectors(ctx, cursor, it.batchSize)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			if err := fn(records); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}
