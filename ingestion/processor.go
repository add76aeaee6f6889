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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/throttle"
)

// Progress checkpoints at the end of each stage.
const (
	progressParsed     = 10
	progressSummarized = 80
	progressPersisted  = 90
)

// documentRun carries one document through every stage.
type documentRun struct {
	pipeline *Pipeline
	docID    string
	name     string
	logger   *slog.Logger
}

// execute runs parsing, summarizing, persisting and indexing, then marks
// the document completed. Any returned error leaves marking failed to the
// caller.
func (r *documentRun) execute(ctx context.Context, data []byte) error {
	p := r.pipeline
	start := time.Now()

	if err := r.advance(ctx, core.StageParsing, 0); err != nil {
		return err
	}
	parser, ok := p.parsers[extension(r.name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, r.name)
	}
	parsed, err := parser.Parse(ctx, r.name, data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", r.name, err)
	}
	if _, err := p.documents.SetPageCount(ctx, r.docID, parsed.PageCount); err != nil {
		return err
	}

	texts, tables, images := partition(parsed.Elements)
	if !p.imageSummaries {
		images = nil
	}
	textItems := make([]core.ContentElement, 0, len(texts)+len(tables))
	textItems = append(append(textItems, texts...), tables...)
	r.logger.Info("parsed document", "pages", parsed.PageCount,
		"texts", len(texts), "tables", len(tables), "images", len(images))
	if err := r.advance(ctx, core.StageParsing, progressParsed); err != nil {
		return err
	}

	imageResults, textResults, err := r.summarize(ctx, textItems, images)
	if err != nil {
		return err
	}
	if err := p.breaker.check(imageResults, textResults); err != nil {
		return err
	}

	set := &core.SummarySet{
		DocID:     r.docID,
		Texts:     summaryTexts(textResults[:len(texts)]),
		Tables:    summaryTexts(textResults[len(texts):]),
		Images:    summaryTexts(imageResults),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.advance(ctx, core.StagePersisting, progressSummarized); err != nil {
		return err
	}
	if err := p.summaries.SaveSummaries(ctx, set); err != nil {
		return fmt.Errorf("saving summaries: %w", err)
	}
	if err := r.advance(ctx, core.StagePersisting, progressPersisted); err != nil {
		return err
	}

	if err := r.advance(ctx, core.StageIndexing, progressPersisted); err != nil {
		return err
	}
	parents := append(textItems, images...)
	summaries := append(summaryTexts(textResults), indexableImageTexts(imageResults)...)
	entries, err := p.indexer.Index(ctx, r.docID, parents, summaries)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	if _, err := p.documents.MarkCompleted(ctx, r.docID); err != nil {
		return err
	}
	r.logger.Info("document completed", "children", len(entries), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// summarize describes images first, then text and tables, splitting the
// summarizing progress window between them by item count.
func (r *documentRun) summarize(ctx context.Context, textItems, images []core.ContentElement) ([]itemSummary, []itemSummary, error) {
	p := r.pipeline
	if err := r.advance(ctx, core.StageSummarizing, progressParsed); err != nil {
		return nil, nil, err
	}

	split := progressParsed
	if total := len(textItems) + len(images); total > 0 {
		split = progressParsed + (progressSummarized-progressParsed)*len(images)/total
	}

	// One throttler per document: its calls are serialized, other documents
	// are not held up.
	thr := throttle.New(append([]throttle.Option{throttle.WithLogger(r.logger)}, p.throttleOpts...)...)
	report := func(progress int) {
		if err := r.advance(ctx, core.StageSummarizing, progress); err != nil {
			r.logger.Warn("error reporting progress", "progress", progress, "err", err)
		}
	}

	imageResults, err := throttle.Run(ctx, thr, throttle.Batch[core.ContentElement, itemSummary]{
		Items: images,
		Call:  p.summarizer.summarizeImage,
		Fallback: func(el core.ContentElement, err error) itemSummary {
			r.logger.Warn("image summary failed", "page", el.Page(), "verdict", ratelimit.Classify(err), "err", err)
			return imageFallback(err)
		},
		Fatal:    credentialFailure,
		Range:    throttle.Range{Start: progressParsed, End: split},
		Progress: report,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCredentialsRejected, err)
	}

	textResults, err := throttle.Run(ctx, thr, throttle.Batch[core.ContentElement, itemSummary]{
		Items: textItems,
		Call:  p.summarizer.summarizeText,
		Fallback: func(el core.ContentElement, err error) itemSummary {
			r.logger.Warn("text summary failed, using original text", "type", el.Type, "page", el.Page(),
				"verdict", ratelimit.Classify(err), "err", err)
			return textFallback(el)
		},
		Fatal:    credentialFailure,
		Range:    throttle.Range{Start: split, End: progressSummarized},
		Progress: report,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCredentialsRejected, err)
	}

	report(progressSummarized)
	return imageResults, textResults, nil
}

func (r *documentRun) advance(ctx context.Context, stage core.Stage, progress int) error {
	if _, err := r.pipeline.documents.UpdateProgress(ctx, r.docID, stage, progress); err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return nil
}

func credentialFailure(err error) bool {
	return ratelimit.Classify(err).Kind == ratelimit.KindAuthInvalid
}

// partition splits elements by type, keeping parse order within each type.
func partition(elements []core.ContentElement) (texts, tables, images []core.ContentElement) {
	for _, el := range elements {
		switch el.Type {
		case core.ElementTable:
			tables = append(tables, el)
		case core.ElementImage:
			images = append(images, el)
		default:
			texts = append(texts, el)
		}
	}
	return texts, tables, images
}

func summaryTexts(results []itemSummary) []string {
	out := make([]string, len(results))
	for i, s := range results {
		out[i] = s.Text
	}
	return out
}

// indexableImageTexts blanks failed image summaries so they are not indexed.
// Error tags say nothing about the image.
func indexableImageTexts(results []itemSummary) []string {
	out := make([]string, len(results))
	for i, s := range results {
		if !s.Failed {
			out[i] = s.Text
		}
	}
	return out
}
