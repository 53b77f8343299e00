// Package checkpoint records the outcome of each download run.
//
// After a run the report (run id, counts, failed targets) is written as JSON
// next to a backup of the previous one. A later run with --retry-failed uses
// RestrictToFailed to download only what failed last time.
//
// Reports are stored in platform-specific data directories:
//   - Linux: ~/.local/share/collectordl/reports/
//   - macOS: ~/Library/Application Support/collectordl/reports/
//   - Windows: %APPDATA%/collectordl/reports/
//
// Files are replaced atomically and carry a version number.
package checkpoint
