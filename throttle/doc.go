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

// Package throttle serializes provider calls for a single document.
//
// A Throttler owns one execution slot. Run walks a Batch in order, pausing a
// random interval between items, and guarantees one result per item: a
// failing or panicking item yields its Fallback and the batch continues,
// unless Fatal classifies the error as a reason to stop.
//
// Basic usage:
//
//	t := throttle.New()
//	summaries, err := throttle.Run(ctx, t, throttle.Batch[string, string]{
//		Items:    texts,
//		Call:     summarize,
//		Fallback: truncate,
//		Range:    throttle.Range{Start: 10, End: 80},
//		Progress: report,
//	})
package throttle
