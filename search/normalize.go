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

package search

import (
	"math"
	"slices"
)

// ScoreMode selects how raw store scores become [0,1] relevance scores.
type ScoreMode int

const (
	// ScoreAuto infers distance or similarity from the observed range.
	ScoreAuto ScoreMode = iota
	// ScoreDistance treats raw scores as distances, lower is better.
	ScoreDistance
	// ScoreSimilarity treats raw scores as similarities, higher is better.
	ScoreSimilarity
)

func (m ScoreMode) String() string {
	switch m {
	case ScoreAuto:
		return "auto"
	case ScoreDistance:
		return "distance"
	case ScoreSimilarity:
		return "similarity"
	default:
		return "unknown"
	}
}

// Distance band used by ScoreAuto, exclusive on both ends.
const (
	distanceBandLow  = 0.5
	distanceBandHigh = 2.5
)

// DetectMode resolves ScoreAuto against the observed raw scores. Explicit
// modes are returned unchanged.
func DetectMode(raw []float64, mode ScoreMode) ScoreMode {
	if mode != ScoreAuto {
		return mode
	}
	if len(raw) == 0 {
		return ScoreSimilarity
	}
	maxRaw := slices.Max(raw)
	if maxRaw > distanceBandLow && maxRaw < distanceBandHigh {
		return ScoreDistance
	}
	return ScoreSimilarity
}

// Normalize converts raw scores to [0,1], higher is better. It returns the
// scores in input order and the mode that was applied.
//
// Distances become clamp(1 - d/f, 0, 1) with f = max(2, 1.1 * max distance).
// Similarities above 1 are divided by the maximum, then clamped.
func Normalize(raw []float64, mode ScoreMode) ([]float64, ScoreMode) {
	return NormalizeObserved(raw, raw, mode)
}

// NormalizeObserved is Normalize with the mode and the scale taken from
// observed, the full set of scores the store returned, rather than from the
// subset being normalized. An empty observed falls back to raw.
func NormalizeObserved(raw, observed []float64, mode ScoreMode) ([]float64, ScoreMode) {
	if len(observed) == 0 {
		observed = raw
	}
	applied := DetectMode(observed, mode)
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out, applied
	}
	maxRaw := max(slices.Max(observed), slices.Max(raw))

	switch applied {
	case ScoreDistance:
		factor := math.Max(2.0, maxRaw*1.1)
		for i, d := range raw {
			out[i] = clamp01(1 - d/factor)
		}
	default:
		for i, s := range raw {
			if maxRaw > 1 {
				s = s / maxRaw
			}
			out[i] = clamp01(s)
		}
	}
	return out, applied
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// round4 rounds to 4 decimal places.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
