// Package ratelimit provides the start-rate limit used by the download queue.
//
// SlidingWindow tracks acquisition times within a moving window and allows
// at most N of them in any rolling window of the configured size. It never
// refills in bursts: a slot frees up exactly when the acquisition that took
// it becomes older than the window.
//
// Usage:
//
//	// At most 10 downloads start in any one second
//	limiter := ratelimit.NewSlidingWindow(10, time.Second)
//
//	if ok, retryIn := limiter.Reserve(); !ok {
//	    time.AfterFunc(retryIn, tryAgain)
//	}
//
//	// Or block until a slot frees up
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
