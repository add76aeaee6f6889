package ratelimit

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type statusError struct {
	code int
}

func (e statusError) Error() string   { return "request failed" }
func (e statusError) StatusCode() int { return e.code }

type hintedError struct {
	wait time.Duration
}

func (e hintedError) Error() string             { return "throttled" }
func (e hintedError) RetryAfter() time.Duration { return e.wait }

func TestClassify_ExtractsHints(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{
			name: "please retry in fractional seconds",
			err:  errors.New("429 RESOURCE_EXHAUSTED. Please retry in 21.13s."),
			want: 21130 * time.Millisecond,
		},
		{
			name: "structured retry_delay block",
			err:  errors.New("quota exceeded\n  retry_delay {\n    seconds: 23\n  }\n"),
			want: 23 * time.Second,
		},
		{
			name: "retry after seconds",
			err:  errors.New("too many requests, retry after 7 seconds"),
			want: 7 * time.Second,
		},
		{
			name: "wait seconds",
			err:  errors.New("please wait 12 seconds"),
			want: 12 * time.Second,
		},
		{
			name: "seconds to retry",
			err:  errors.New("rate limited: 30 seconds to retry"),
			want: 30 * time.Second,
		},
		{
			name: "wrapped hint",
			err:  fmt.Errorf("summarize: %w", fmt.Errorf("client: %w", errors.New("Please retry in 5s"))),
			want: 5 * time.Second,
		},
		{
			name: "joined hint",
			err:  errors.Join(errors.New("first failure"), errors.New("retry in 9 seconds")),
			want: 9 * time.Second,
		},
		{
			name: "hint in llms error details",
			err: llms.NewError(llms.ErrCodeRateLimit, "openai", "rate limit exceeded").
				WithDetail("body", "retry_delay { seconds: 40 }"),
			want: 40 * time.Second,
		},
		{
			name: "error carried in llms error details",
			err: llms.NewError(llms.ErrCodeUnknown, "openai", "request failed").
				WithDetail("cause", errors.New("retry in 3s")),
			want: 3 * time.Second,
		},
		{
			name: "structured retry after",
			err:  fmt.Errorf("call: %w", hintedError{wait: 2 * time.Second}),
			want: 2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.err)
			assert.Equal(t, KindRateLimited, v.Kind)
			require.True(t, v.Hinted())
			assert.InDelta(t, tt.want.Seconds(), v.RetryAfter.Seconds(), 1e-6)
			assert.Greater(t, v.RetryAfter, 100*time.Millisecond)
			assert.LessOrEqual(t, v.RetryAfter, time.Hour)
		})
	}
}

func TestClassify_RejectsOutOfRangeHints(t *testing.T) {
	tests := []string{
		"429: retry in 0.05s",
		"429: retry in 7200 seconds",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			v := Classify(errors.New(text))
			assert.Equal(t, KindRateLimited, v.Kind)
			assert.False(t, v.Hinted())
		})
	}
}

func TestClassify_FirstValidHintWins(t *testing.T) {
	err := errors.New("retry in 0.01s; retry_delay { seconds: 15 }")
	v := Classify(err)
	assert.Equal(t, 15*time.Second, v.RetryAfter)
}

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"http 429 text", errors.New("status code: 429"), KindRateLimited},
		{"resource exhausted", errors.New("Resource exhausted for model"), KindRateLimited},
		{"quota", errors.New("You exceeded your current quota"), KindRateLimited},
		{"too many requests", errors.New("Too Many Requests"), KindRateLimited},
		{"llms rate limit code", llms.NewError(llms.ErrCodeRateLimit, "openai", "slow down"), KindRateLimited},
		{"status 429 field", statusError{code: 429}, KindRateLimited},
		{"invalid key", errors.New("API key not valid. Please pass a valid API key."), KindAuthInvalid},
		{"api_key_invalid", errors.New("reason: API_KEY_INVALID"), KindAuthInvalid},
		{"gemini argument", errors.New("Invalid argument provided to Gemini: 400"), KindAuthInvalid},
		{"llms auth code", llms.NewError(llms.ErrCodeAuthentication, "openai", "bad token"), KindAuthInvalid},
		{"status 401 field", statusError{code: 401}, KindAuthInvalid},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), KindProviderUnavailable},
		{"service unavailable", errors.New("503 Service Unavailable"), KindProviderUnavailable},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, KindProviderUnavailable},
		{"status 503 field", statusError{code: 503}, KindProviderUnavailable},
		{"other", errors.New("model produced invalid json"), KindOther},
		{"nil", nil, KindOther},
		{"not a status code", errors.New("request id 14290 failed"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.err)
			assert.Equal(t, tt.want, v.Kind, "verdict %s", v)
			assert.False(t, v.Hinted())
		})
	}
}

func TestClassify_RateLimitBeatsAuthVocabulary(t *testing.T) {
	v := Classify(errors.New("rate limit reached for api key sk-***"))
	assert.Equal(t, KindRateLimited, v.Kind)
}

func TestClassify_Deterministic(t *testing.T) {
	err := llms.NewError(llms.ErrCodeUnknown, "openai", "failed").
		WithDetail("a", "retry in 4s").
		WithDetail("b", "retry in 8s")
	first := Classify(err)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Classify(err))
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "rate_limited", KindRateLimited.String())
	assert.Equal(t, "auth_invalid", KindAuthInvalid.String())
	assert.Equal(t, "provider_unavailable", KindProviderUnavailable.String())
	assert.Equal(t, "other", KindOther.String())
}
