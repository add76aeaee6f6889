package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/ai/mock"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSummarizer(t *testing.T) (*summarizer, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProvider()
	sched, err := ratelimit.NewScheduler(ratelimit.WithSleep(noSleep))
	require.NoError(t, err)
	return &summarizer{
		text:  provider.TextSummarizer(),
		image: provider.ImageSummarizer(),
		sched: sched,
	}, provider
}

func TestCleanSummary(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Here's a concise summary: The model wins.", "The model wins."},
		{"Summary: Results improve.", "Results improve."},
		{"summary:   lower case prefix", "lower case prefix"},
		{"The summary is: two findings.", "two findings."},
		{"  No prefix here.  ", "No prefix here."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanSummary(tt.in))
	}
}

func TestTextFallback(t *testing.T) {
	short := core.ContentElement{Type: core.ElementText, Text: "  short block  "}
	got := textFallback(short)
	assert.Equal(t, "short block", got.Text)
	assert.True(t, got.Failed)

	long := core.ContentElement{Type: core.ElementText, Text: strings.Repeat("a", 250)}
	got = textFallback(long)
	assert.Equal(t, strings.Repeat("a", 200)+"...", got.Text)

	table := core.ContentElement{Type: core.ElementTable, Text: "flat", TableHTML: "<table></table>"}
	assert.Equal(t, "<table></table>", textFallback(table).Text)
}

func TestImageFallback(t *testing.T) {
	assert.Equal(t, imageErrAuth, imageFallback(errors.New("API key not valid")).Text)
	assert.Equal(t, imageErrRateLimit, imageFallback(errors.New("429 Too Many Requests")).Text)
	assert.Equal(t, imageErrGeneric, imageFallback(errors.New("boom")).Text)
	assert.True(t, imageFallback(errors.New("boom")).Failed)
}

func TestSummarizeText(t *testing.T) {
	s, provider := newTestSummarizer(t)
	gen := provider.GetMockTextSummarizer()
	ctx := context.Background()

	t.Run("title page prompt on page one", func(t *testing.T) {
		gen.Reset()
		_, err := s.summarizeText(ctx, core.ContentElement{
			Type: core.ElementText, Text: "Deep Retrieval. Jane Doe.", PageNumber: core.PageRef(1),
		})
		require.NoError(t, err)
		require.Equal(t, 1, gen.CallCount())
		assert.Contains(t, gen.Calls()[0].Prompt, "title page")
	})

	t.Run("plain prompt elsewhere", func(t *testing.T) {
		gen.Reset()
		_, err := s.summarizeText(ctx, core.ContentElement{
			Type: core.ElementText, Text: "Results on the benchmark.", PageNumber: core.PageRef(4),
		})
		require.NoError(t, err)
		prompt := gen.Calls()[0].Prompt
		assert.NotContains(t, prompt, "title page")
		assert.Contains(t, prompt, "Content:\nResults on the benchmark.\n\nSummary:")
	})

	t.Run("input truncated", func(t *testing.T) {
		gen.Reset()
		_, err := s.summarizeText(ctx, core.ContentElement{
			Type: core.ElementText, Text: strings.Repeat("b", 5000), PageNumber: core.PageRef(3),
		})
		require.NoError(t, err)
		prompt := gen.Calls()[0].Prompt
		assert.Contains(t, prompt, strings.Repeat("b", 2000))
		assert.NotContains(t, prompt, strings.Repeat("b", 2001))
	})

	t.Run("short output falls back", func(t *testing.T) {
		gen.Reset()
		gen.GenerateFunc = func(ctx context.Context, prompt string, images ...ai.Image) (string, error) {
			return "Summary: ok", nil
		}
		got, err := s.summarizeText(ctx, core.ContentElement{
			Type: core.ElementText, Text: "A paragraph about results.", PageNumber: core.PageRef(2),
		})
		require.NoError(t, err)
		assert.True(t, got.Failed)
		assert.Equal(t, "A paragraph about results.", got.Text)
	})

	t.Run("error returned", func(t *testing.T) {
		gen.Reset()
		gen.GenerateFunc = func(ctx context.Context, prompt string, images ...ai.Image) (string, error) {
			return "", errors.New("boom")
		}
		_, err := s.summarizeText(ctx, core.ContentElement{Type: core.ElementText, Text: "text", PageNumber: core.PageRef(2)})
		require.Error(t, err)
	})
}

func TestSummarizeImage(t *testing.T) {
	s, provider := newTestSummarizer(t)
	gen := provider.GetMockImageSummarizer()

	got, err := s.summarizeImage(context.Background(), core.ContentElement{
		Type: core.ElementImage, Image: []byte{1, 2, 3},
	})
	require.NoError(t, err)
	assert.False(t, got.Failed)
	assert.NotEmpty(t, got.Text)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Images, 1)
	assert.Equal(t, "image/png", calls[0].Images[0].MIME)
	assert.Contains(t, calls[0].Prompt, "research paper")
}

func TestBreaker(t *testing.T) {
	batch := func(total, failed int) []itemSummary {
		out := make([]itemSummary, total)
		for i := range out {
			if i < failed {
				out[i] = itemSummary{Text: "fallback", Failed: true}
			} else {
				out[i] = itemSummary{Text: "a real summary"}
			}
		}
		return out
	}
	b := breaker{threshold: DefaultFailureThreshold}

	tests := []struct {
		name    string
		batches [][]itemSummary
		trips   bool
	}{
		{"empty", nil, false},
		{"single failure", [][]itemSummary{batch(1, 1)}, true},
		{"95 percent", [][]itemSummary{batch(20, 19)}, true},
		{"exactly 90 percent", [][]itemSummary{batch(10, 9)}, false},
		{"half", [][]itemSummary{batch(20, 10)}, false},
		{"across batches", [][]itemSummary{batch(1, 1), batch(9, 9)}, true},
		{"error tag counts", [][]itemSummary{{{Text: "[ERROR] image summarization failed"}}}, true},
		{"blank counts", [][]itemSummary{{{Text: "   "}}, batch(1, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.check(tt.batches...)
			if tt.trips {
				assert.ErrorIs(t, err, ErrTooManyFailures)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
