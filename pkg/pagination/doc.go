// Package pagination walks cursor- or offset-paginated upstream resources.
//
// A Fetcher issues one GET per page, hands the body to a Parser and yields
// the page items lazily as an iter.Seq2. Every range over the sequence
// starts again from the first page. The walk stops when:
//   - the page carries no next cursor (cursor mode)
//   - the page holds fewer items than the page size (offset mode)
//   - MaxPages pages were requested
//
// The page cap silently truncates large resources; that is accepted.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher("game-passes", upstream, buildURL,
//		pagination.JSONPassesParser(), pagination.DefaultConfig())
//	passes, err := pagination.Collect(fetcher.Fetch(ctx, "12345"))
//
// ErrorPolicy decides what a failed page does: PolicyStrict ends the
// sequence with the error (callers discard partial data), PolicyLenient
// ends it quietly with whatever was yielded so far.
package pagination
