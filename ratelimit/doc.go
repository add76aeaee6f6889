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

// Package ratelimit classifies provider failures and retries rate-limited calls.
//
// Classify walks an error chain and returns one of four kinds. Only
// KindRateLimited is retried by Do; credential failures, connectivity
// failures, and unknown errors are returned to the caller on the first
// attempt so that they can abort the surrounding work.
//
//	sched, _ := ratelimit.NewScheduler()
//	summary, err := ratelimit.Do(ctx, sched, func(ctx context.Context) (string, error) {
//	    return gen.Generate(ctx, prompt)
//	})
package ratelimit
