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

// Package api exposes a Database over HTTP.
//
// Routes live under /api: document upload and status, document listing and
// deletion, retrieval, chat (single answer and server-sent events), and
// chat sessions. Provider failures map to 401, 429 and 503 by their
// ratelimit classification; they are never reported as a 200 with an
// explanation in the body.
package api
