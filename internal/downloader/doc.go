// Package downloader runs one collection download.
//
// A run indexes the output directory once, skips targets already present,
// and queues one attempt per remaining target. Each attempt is classified
// into success, rate limit, or failure; the retry state decides whether the
// target is requeued, retried (the last retry on the alternate mirror), or
// recorded as failed. Rate limits pause the whole queue through the
// throttle.
//
// Progress is reported as Events to a single Observer:
//
//	orch := downloader.New(client, store, downloader.DefaultOptions(), observer, log)
//	result, err := orch.Run(ctx, collection)
//
// Run returns once every target is terminal, after emitting exactly one
// EventEnd.
package downloader
