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

// Package chat answers questions from retrieved document sources.
//
// A Service stores each question, retrieves sources through a Retriever,
// and renders a grounding prompt that includes recent conversation history.
// Ask returns the whole answer; Stream delivers it as events:
//
//	err := svc.Stream(ctx, chat.Request{Question: q}, func(ev chat.Event) error {
//	    return writeSSE(w, ev)
//	})
//
// When the provider rate-limits a stream, one rate_limit event is sent, the
// service waits, and generation starts over. Failed answers end with an
// error event and are never stored.
package chat
