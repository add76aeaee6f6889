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

package ratelimit

import "errors"

var (
	// ErrInvalidMaxRetries is returned when a policy allows a negative retry count.
	ErrInvalidMaxRetries = errors.New("max retries cannot be negative")

	// ErrInvalidWait is returned when a policy's default wait is not positive.
	ErrInvalidWait = errors.New("default wait must be positive")

	// ErrInvalidMultiplier is returned when the backoff multiplier is below 1.
	ErrInvalidMultiplier = errors.New("backoff multiplier must be at least 1")
)
