package ingestion

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/tmc/langchaingo/prompts"
)

const (
	// maxSummaryInput bounds the characters of an element sent to the model.
	maxSummaryInput = 2000
	// fallbackLength is how much of the original a fallback summary keeps.
	fallbackLength = 200
	// minSummaryLength is the shortest model output accepted as a summary.
	minSummaryLength = 10
	// titlePageLimit is the longest element treated as a title page.
	titlePageLimit = 3000
)

// Image summaries that carry this prefix describe a failure, not the image.
const errorTag = "[ERROR]"

const (
	imageErrAuth      = errorTag + " API key invalid"
	imageErrRateLimit = errorTag + " Rate limit exceeded"
	imageErrGeneric   = errorTag + " image summarization failed"
)

var (
	textPrompt = prompts.NewPromptTemplate(
		"Provide a concise summary of the following content. "+
			"Include only the main points and key information. "+
			"Do not add explanations or meta-commentary.\n\n"+
			"Content:\n{{.content}}\n\nSummary:",
		[]string{"content"},
	)

	titlePagePrompt = prompts.NewPromptTemplate(
		"The following content is the title page of a research paper. "+
			"Provide a concise summary that includes the title, the authors and "+
			"the main points of the abstract. "+
			"Do not add explanations or meta-commentary.\n\n"+
			"Content:\n{{.content}}\n\nSummary:",
		[]string{"content"},
	)

	imagePrompt = "Describe the image in detail. For context, the image is part of a research paper. " +
		"Focus on key visual elements, text, diagrams, or any important information visible."
)

// chattyPrefixes are stripped from the start of model output.
var chattyPrefixes = []string{
	"Here's a concise summary:",
	"Here's a summary:",
	"The summary is:",
	"Summary:",
}

// itemSummary is the outcome for one element. Failed marks a fallback or
// error-tagged result; the circuit breaker counts those.
type itemSummary struct {
	Text   string
	Failed bool
}

// summarizer turns elements into summaries through the provider's text and
// image generators. Every call goes through the retry scheduler.
type summarizer struct {
	text  ai.Generator
	image ai.Generator
	sched *ratelimit.Scheduler
}

func (s *summarizer) summarizeText(ctx context.Context, el core.ContentElement) (itemSummary, error) {
	input := truncateRunes(el.SummaryInput(), maxSummaryInput)
	if strings.TrimSpace(input) == "" {
		return itemSummary{Failed: true}, nil
	}

	tmpl := textPrompt
	if isTitlePage(el) {
		tmpl = titlePagePrompt
	}
	prompt, err := tmpl.Format(map[string]any{"content": input})
	if err != nil {
		return itemSummary{}, err
	}

	out, err := ratelimit.Do(ctx, s.sched, func(ctx context.Context) (string, error) {
		return s.text.Generate(ctx, prompt)
	})
	if err != nil {
		return itemSummary{}, err
	}

	out = cleanSummary(out)
	if utf8.RuneCountInString(out) < minSummaryLength {
		return textFallback(el), nil
	}
	return itemSummary{Text: out}, nil
}

func (s *summarizer) summarizeImage(ctx context.Context, el core.ContentElement) (itemSummary, error) {
	mime := el.ImageMIME
	if mime == "" {
		mime = "image/png"
	}
	out, err := ratelimit.Do(ctx, s.sched, func(ctx context.Context) (string, error) {
		return s.image.Generate(ctx, imagePrompt, ai.Image{MIME: mime, Data: el.Image})
	})
	if err != nil {
		return itemSummary{}, err
	}
	out = strings.TrimSpace(out)
	return itemSummary{Text: out, Failed: out == ""}, nil
}

// textFallback stands in for a summary the model could not produce.
func textFallback(el core.ContentElement) itemSummary {
	input := strings.TrimSpace(el.SummaryInput())
	if utf8.RuneCountInString(input) > fallbackLength {
		input = truncateRunes(input, fallbackLength) + "..."
	}
	return itemSummary{Text: input, Failed: true}
}

// imageFallback tags a failed image description with its cause.
func imageFallback(err error) itemSummary {
	switch ratelimit.Classify(err).Kind {
	case ratelimit.KindAuthInvalid:
		return itemSummary{Text: imageErrAuth, Failed: true}
	case ratelimit.KindRateLimited:
		return itemSummary{Text: imageErrRateLimit, Failed: true}
	default:
		return itemSummary{Text: imageErrGeneric, Failed: true}
	}
}

func isTitlePage(el core.ContentElement) bool {
	if el.Type != core.ElementText {
		return false
	}
	if el.Page() == 1 {
		return true
	}
	text := el.SummaryInput()
	return len(text) < titlePageLimit && strings.Contains(strings.ToLower(text), "abstract")
}

func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range chattyPrefixes {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
