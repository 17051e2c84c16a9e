// Package ratelimit throttles outbound media downloads.
//
// The listing endpoints are paced by fixed sleeps in the scraper itself;
// this package only caps how many media requests the download pool issues
// per window, shared across all workers:
//
//	limiter := ratelimit.PerMinute(cfg.Media.RequestsPerMinute)
//	if limiter != nil {
//	    if err := limiter.Wait(ctx); err != nil {
//	        return err
//	    }
//	}
package ratelimit
