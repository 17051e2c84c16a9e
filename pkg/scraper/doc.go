// Package scraper harvests the published articles of WeChat official
// accounts.
//
// A Scraper is built from explicit dependencies (listing client, content
// normalizer, credential provider, optional existence checker) and runs
// one account per ScrapeAccount call:
//
//   - Resolving: the first search match for the account name is used
//   - Paginating: listing pages are requested in order with a pause of
//     Settings.RequestInterval between them, until an empty page, the page
//     cap, the date window start or the article limit is reached
//   - Deduping: with SkipExisting, already stored URLs are removed in one
//     batch query
//   - ContentFetching: each article body is fetched and normalized, one at
//     a time with Settings.ContentInterval between requests
//
// Every step honours context cancellation. An aborted run returns a typed
// error from pkg/errors and no articles.
//
// Usage:
//
//	s := scraper.New(scraper.Deps{
//	    Client:      mp.NewClient(cfg.HTTP, log),
//	    Normalizer:  normalize.New(log),
//	    Credentials: auth.NewProvider(credManager, "default", maxAge),
//	    Logger:      log,
//	}, scraper.SettingsFromConfig(cfg.Scraper))
//
//	articles, err := s.ScrapeAccount(ctx, "Daily Tech", scraper.Options{Limit: 20})
//
// Persister stores the result locally and/or in a database, BatchRunner
// walks a list of accounts with checkpointed progress and Scheduler repeats
// a batch on a cron schedule.
package scraper
