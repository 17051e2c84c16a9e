// Package storage persists harvested articles.
//
// Two targets are provided and may be combined:
//   - LocalWriter lays articles out as directories holding the body
//     (article.md or article.html), an article.json metadata file and the
//     downloaded media, with media links rewritten to relative paths
//   - Repository implementations keep one row per article URL, either in an
//     embedded bbolt file (OpenBolt) or in PostgreSQL/MySQL through gorm
//     (OpenSQL)
//
// All file writes go through Manager, which writes to a temporary file and
// renames it into place.
//
// Usage:
//
//	files, err := storage.NewManager(cfg.Storage.Local.BaseDir)
//	if err != nil {
//	    return err
//	}
//	writer := storage.NewLocalWriter(files, cfg.Storage.Local, fetcher, log)
//	dir, err := writer.Save(ctx, article)
package storage
