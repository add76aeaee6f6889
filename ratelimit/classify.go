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

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"regexp"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Kind is the closed set of failure classes the retry layer understands.
type Kind int

const (
	// KindOther is any failure this package does not recognize. Never retried.
	KindOther Kind = iota
	// KindRateLimited is transient throttling by the provider.
	KindRateLimited
	// KindAuthInvalid means the credentials were rejected. Never retried.
	KindAuthInvalid
	// KindProviderUnavailable means the provider could not be reached.
	KindProviderUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindProviderUnavailable:
		return "provider_unavailable"
	default:
		return "other"
	}
}

// Verdict is the result of classifying an error.
type Verdict struct {
	Kind Kind
	// RetryAfter is the provider's own wait hint. Zero when absent.
	RetryAfter time.Duration
}

// Hinted reports whether the provider supplied a usable wait.
func (v Verdict) Hinted() bool {
	return v.RetryAfter > 0
}

func (v Verdict) String() string {
	if v.Hinted() {
		return fmt.Sprintf("%s(retry_after=%s)", v.Kind, v.RetryAfter)
	}
	return v.Kind.String()
}

const (
	minHint = 100 * time.Millisecond
	maxHint = time.Hour
)

// hintPatterns are tried in order against every text in the error chain.
var hintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)retry_delay\s*\{[^}]*seconds:\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)retry\s+in\s+(\d+(?:\.\d+)?)\s*(?:s\b|sec|seconds?)`),
	regexp.MustCompile(`(?i)retry\s+after\s+(\d+(?:\.\d+)?)\s*(?:s\b|sec|seconds?)`),
	regexp.MustCompile(`(?i)wait\s+(\d+(?:\.\d+)?)\s*(?:s\b|sec|seconds?)`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*seconds?\s+to\s+retry`),
	regexp.MustCompile(`(?i)"?retry[_-]after"?\s*[:=]\s*"?(\d+(?:\.\d+)?)`),
}

var (
	rateLimitPattern = regexp.MustCompile(`(?i)\b429\b|resource[\s_]?exhausted|quota|too[\s_]many[\s_]requests|rate[\s_]?limit`)
	authPattern      = regexp.MustCompile(`(?i)api[\s_]key|unauthori[sz]ed|\b401\b|invalid argument provided to gemini|permission[\s_]denied`)
	unavailPattern   = regexp.MustCompile(`(?i)connection (?:refused|reset)|no such host|unavailable|\b50[234]\b|ollama|dial tcp`)
)

// retryAfterer is implemented by errors that carry a structured wait.
type retryAfterer interface {
	RetryAfter() time.Duration
}

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Classify inspects err and every error reachable from it and returns the
// first matching class in priority order: an explicit retry hint, rate-limit
// vocabulary, credential vocabulary, connectivity vocabulary. It has no side
// effects and returns the same verdict for the same chain of error texts.
func Classify(err error) Verdict {
	if err == nil {
		return Verdict{Kind: KindOther}
	}
	chain := walk(err)

	if hint, ok := findHint(chain); ok {
		return Verdict{Kind: KindRateLimited, RetryAfter: hint}
	}

	status := findStatus(chain)
	codes := findCodes(chain)

	switch {
	case status == 429 || codes[llms.ErrCodeRateLimit] || codes[llms.ErrCodeQuotaExceeded] || anyMatch(chain, rateLimitPattern):
		return Verdict{Kind: KindRateLimited}
	case status == 401 || status == 403 || codes[llms.ErrCodeAuthentication] || anyMatch(chain, authPattern):
		return Verdict{Kind: KindAuthInvalid}
	case status == 502 || status == 503 || status == 504 || codes[llms.ErrCodeProviderUnavailable] ||
		isNetworkError(err) || anyMatch(chain, unavailPattern):
		return Verdict{Kind: KindProviderUnavailable}
	default:
		return Verdict{Kind: KindOther}
	}
}

// link is one node of the error graph together with loose values found
// alongside it (llms.Error details).
type link struct {
	err    error
	extras []string
}

// maxChain bounds the walk so that cyclic or pathological chains terminate.
const maxChain = 64

// walk flattens the error graph breadth-first. It follows single and multi
// unwrapping as well as errors stored in llms.Error details.
func walk(root error) []link {
	var (
		out   []link
		queue = []error{root}
	)
	for len(queue) > 0 && len(out) < maxChain {
		e := queue[0]
		queue = queue[1:]
		if e == nil {
			continue
		}

		l := link{err: e}
		if le, ok := e.(*llms.Error); ok {
			for _, key := range slices.Sorted(maps.Keys(le.Details)) {
				switch val := le.Details[key].(type) {
				case error:
					queue = append(queue, val)
				case string:
					l.extras = append(l.extras, key+": "+val)
				case fmt.Stringer:
					l.extras = append(l.extras, key+": "+val.String())
				case int, int64, float64, float32:
					l.extras = append(l.extras, fmt.Sprintf("%s: %v", key, val))
				}
			}
		}
		out = append(out, l)

		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		case interface{ Unwrap() error }:
			queue = append(queue, u.Unwrap())
		}
	}
	return out
}

func texts(l link) []string {
	return append([]string{l.err.Error()}, l.extras...)
}

func findHint(chain []link) (time.Duration, bool) {
	for _, l := range chain {
		if ra, ok := l.err.(retryAfterer); ok {
			if d := ra.RetryAfter(); d >= minHint && d <= maxHint {
				return d, true
			}
		}
	}
	for _, re := range hintPatterns {
		for _, l := range chain {
			for _, text := range texts(l) {
				if d, ok := matchHint(re, text); ok {
					return d, true
				}
			}
		}
	}
	return 0, false
}

func matchHint(re *regexp.Regexp, text string) (time.Duration, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		d := time.Duration(secs * float64(time.Second))
		if d > minHint && d <= maxHint {
			return d, true
		}
	}
	return 0, false
}

func findStatus(chain []link) int {
	for _, l := range chain {
		if sc, ok := l.err.(statusCoder); ok {
			return sc.StatusCode()
		}
		if le, ok := l.err.(*llms.Error); ok {
			switch v := le.Details["status_code"].(type) {
			case int:
				return v
			case float64:
				return int(v)
			}
		}
	}
	return 0
}

func findCodes(chain []link) map[llms.ErrorCode]bool {
	codes := map[llms.ErrorCode]bool{}
	for _, l := range chain {
		if le, ok := l.err.(*llms.Error); ok {
			codes[le.Code] = true
		}
	}
	return codes
}

func anyMatch(chain []link, re *regexp.Regexp) bool {
	for _, l := range chain {
		for _, text := range texts(l) {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
