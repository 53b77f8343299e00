// Package mirror is the HTTP fetch primitive for beatmapset archives.
//
// A Client knows two URL templates, a primary and an alternate mirror, and
// turns (id, useAlternate) into a GET request. It does not interpret status
// codes: 429 handling, retries and mirror fallback belong to the caller.
//
//	client := mirror.NewClient(mirror.Options{
//	    Primary:   "https://catboy.best/d/%d",
//	    Alternate: "https://api.nerinyan.moe/d/%d",
//	    Timeout:   2 * time.Minute,
//	}, log)
//
//	resp, err := client.Fetch(ctx, 123456, false)
//	if err != nil {
//	    return err
//	}
//	defer resp.Close()
package mirror
