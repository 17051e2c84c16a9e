// Package checkpoint saves and resumes batch progress.
//
// A batch walks a list of accounts one after another. After each account
// the checkpoint records whether it finished and how many articles it
// produced, so an interrupted batch (rate limit, expired session, Ctrl-C)
// can be resumed with --resume and skip the accounts already done. Failed
// accounts stay pending and are retried on resume.
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: $XDG_DATA_HOME/mpscraper/checkpoints/ or ~/.local/share/mpscraper/checkpoints/
//   - macOS: ~/Library/Application Support/mpscraper/checkpoints/
//   - Windows: %APPDATA%/mpscraper/checkpoints/
//
// Files are written to a temporary file and renamed into place, and carry a
// format version.
package checkpoint
