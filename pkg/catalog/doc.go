// Package catalog resolves what a run should download: a collection read
// from the osu!collector API, or an ad-hoc collection built from ids.
//
//	client := catalog.NewClient(catalog.Options{Timeout: 30 * time.Second}, log)
//	collection, err := client.GetCollection(ctx, 12345)
package catalog
