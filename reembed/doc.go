// Package reembed rewrites every stored child vector with the current
// embedder, typically after the embedding model changed.
//
// Vectors are scanned in key order, embedded in batches from their stored
// summary text, and updated in place. Batches run on a small worker pool;
// embedding calls go through ratelimit so provider throttling is waited
// out rather than failing the run.
package reembed
