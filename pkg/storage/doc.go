// Package storage manages the destination directory of a download run.
//
// The storage package handles:
//   - Creating, and recreating when it disappears, the output directory
//   - Indexing items already present on disk so they can be skipped
//   - Saving downloads with atomic write operations
//
// Items on disk are recognised by a leading numeric id in their name, the
// way mirrors name beatmapset archives ("123456 Artist - Title.osz").
// The index is built once per run and never changes afterwards; a directory
// that cannot be read produces an empty index rather than an error.
//
// Usage:
//
//	manager := storage.NewManager("downloads/My Collection", log)
//	if err := manager.EnsureDir(); err != nil {
//	    return err
//	}
//
//	index := manager.BuildIndex(func(processed, total int) {
//	    fmt.Printf("\rindexing %d/%d", processed, total)
//	})
//	if !index.Has(123456) {
//	    _, err = manager.Save(body, "123456 Artist - Title.osz")
//	}
package storage
