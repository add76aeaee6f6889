// Package ingestion turns uploaded files into searchable summaries.
//
// A Pipeline runs every document as one background task on a worker pool.
// The task moves the document through these stages, reporting progress to
// the document repository:
//   - parsing (0 to 10%): a Parser chosen by file extension yields content
//     elements
//   - summarizing (10 to 80%): images first, then text and tables, each
//     through a per-document throttle.Throttler whose calls retry on rate
//     limits via ratelimit.Do
//   - persisting (to 90%): summaries are saved
//   - indexing (to 100%): summaries and their parents go to the Indexer
//
// A rejected API key aborts the document at once. Any other failed item is
// replaced by a fallback summary. After summarizing, a circuit breaker
// fails the document when every item failed or more than 90% did.
// Failures are reported through the document's status, never to the
// uploader.
package ingestion
