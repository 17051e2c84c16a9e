// Package logger provides structured logging for the scraper.
//
// It wraps zerolog behind a small Logger interface so components can be
// handed a logger explicitly (tests pass NewNopLogger or NewTestLogger)
// while the CLI initializes a process-wide default:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("account", name)
//	log.InfoWithFields("Page fetched", map[string]interface{}{
//	    "page":  page,
//	    "items": len(stubs),
//	})
package logger
