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

package chat

// EventType names a streaming event.
type EventType string

const (
	// EventChunk carries a piece of the answer.
	EventChunk EventType = "chunk"
	// EventRateLimit announces a wait before generation restarts.
	EventRateLimit EventType = "rate_limit"
	// EventError carries an "[ERROR: ...]" text. It is never stored.
	EventError EventType = "error"
	// EventEnd is always the last event.
	EventEnd EventType = "end"
)

// Event is one item of a streamed answer.
type Event struct {
	Type      EventType
	Text      string
	RateLimit *RateLimitNotice
}

// RateLimitNotice tells the client how long generation is paused.
// MaxRetries counts attempts, the first one included.
type RateLimitNotice struct {
	WaitSeconds  int    `json:"wait_seconds"`
	RetryAttempt int    `json:"retry_attempt"`
	MaxRetries   int    `json:"max_retries"`
	Type         string `json:"type"`
}
