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

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/mmrag/core"
)

// Marshal serializes a value to JSON bytes.
func Marshal[T any](v *T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// Unmarshal deserializes JSON bytes into a new value.
func Unmarshal[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &v, nil
}

// documentRecord shadows the typed enums so records written before they
// existed can still be read.
type documentRecord struct {
	core.Document
	Status *string `json:"status,omitempty"`
	Stage  *string `json:"stage,omitempty"`
}

// MarshalDocument serializes a Document. Its status must be valid.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	if err := core.ValidateDocumentStatus(doc.Status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return Marshal(doc)
}

// UnmarshalDocument deserializes a Document.
//
// A record with no status is migrated: progress 100 becomes completed and
// anything else becomes processing. A record with no stage gets the stage
// matching its status.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	rec, err := Unmarshal[documentRecord](data)
	if err != nil {
		return nil, err
	}
	doc := rec.Document

	if rec.Status == nil || *rec.Status == "" {
		doc.Status = core.StatusProcessing
		if doc.Progress >= 100 {
			doc.Status = core.StatusCompleted
		}
	} else {
		status, err := core.ParseDocumentStatus(*rec.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
		}
		doc.Status = status
	}

	if rec.Stage == nil || *rec.Stage == "" {
		doc.Stage = stageFor(doc.Status)
	} else if err := doc.Stage.UnmarshalText([]byte(*rec.Stage)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}

	doc.Progress = core.ClampProgress(doc.Progress)
	if doc.Status == core.StatusCompleted {
		doc.Progress = 100
	}
	return &doc, nil
}

func stageFor(status core.DocumentStatus) core.Stage {
	switch status {
	case core.StatusCompleted:
		return core.StageCompleted
	case core.StatusFailed:
		return core.StageFailed
	default:
		return core.StageUploaded
	}
}
