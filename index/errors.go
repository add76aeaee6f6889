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

package index

import "errors"

var (
	// ErrMisaligned indicates parents and summaries of different lengths.
	ErrMisaligned = errors.New("parents and summaries are not aligned")

	// ErrIndexFailed wraps a failure to persist parents or vectors.
	ErrIndexFailed = errors.New("indexing failed")
)
