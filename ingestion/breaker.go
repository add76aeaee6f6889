package ingestion

import (
	"fmt"
	"strings"
)

// DefaultFailureThreshold is the failure fraction above which a document
// is abandoned after summarizing.
const DefaultFailureThreshold = 0.9

// breaker decides, once summarizing is done, whether enough summaries
// succeeded for the document to be worth indexing.
type breaker struct {
	threshold float64
}

// failed reports whether s counts against the document.
func (b breaker) failed(s itemSummary) bool {
	text := strings.TrimSpace(s.Text)
	return s.Failed || text == "" || strings.HasPrefix(text, errorTag)
}

// check returns ErrTooManyFailures wrapped with a diagnostic when every
// item failed or the failure fraction exceeds the threshold. An empty
// batch always passes.
func (b breaker) check(results ...[]itemSummary) error {
	var total, failures int
	for _, batch := range results {
		for _, s := range batch {
			total++
			if b.failed(s) {
				failures++
			}
		}
	}
	if total == 0 {
		return nil
	}

	rate := float64(failures) / float64(total)
	switch {
	case failures == total:
		return fmt.Errorf("%w: all %d summaries failed; check the model configuration and API key",
			ErrTooManyFailures, total)
	case rate > b.threshold:
		return fmt.Errorf("%w: %d of %d summaries failed (%.0f%%); check the model configuration",
			ErrTooManyFailures, failures, total, rate*100)
	}
	return nil
}
