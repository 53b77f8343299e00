package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	errs "collectordl/pkg/errors"
	"collectordl/pkg/logger"
)

// ProgressFunc receives indexing progress after each directory entry
type ProgressFunc func(processed, total int)

// Index is the set of target ids already present on disk.
// It has no mutating methods once built.
type Index struct {
	ids map[int]struct{}
}

// Has reports whether id was found on disk
func (i *Index) Has(id int) bool {
	if i == nil {
		return false
	}
	_, ok := i.ids[id]
	return ok
}

// Len returns the number of indexed ids
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.ids)
}

// IDs returns the indexed ids in ascending order
func (i *Index) IDs() []int {
	if i == nil {
		return nil
	}
	ids := make([]int, 0, len(i.ids))
	for id := range i.ids {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Manager handles the destination directory of a run
type Manager struct {
	outputDir string
	logger    logger.Logger
	mu        sync.Mutex
}

// NewManager creates a storage manager for outputDir. The directory is not
// created until EnsureDir is called.
func NewManager(outputDir string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		outputDir: outputDir,
		logger:    log.WithField("component", "storage"),
	}
}

// EnsureDir creates the output directory if it does not exist.
// It is safe to call before every attempt.
func (m *Manager) EnsureDir() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(m.outputDir)
	if err == nil && info.IsDir() {
		return nil
	}
	if err == nil {
		return errs.New(errs.ErrorTypeFilesystem, fmt.Sprintf("%s exists and is not a directory", m.outputDir))
	}

	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to create output directory")
	}
	m.logger.DebugWithFields("Output directory created", map[string]interface{}{
		"output_dir": m.outputDir,
	})
	return nil
}

// BuildIndex scans the output directory once and collects the ids of
// entries named "<id> <free text>". A directory that cannot be read yields
// an empty index so every target is attempted.
func (m *Manager) BuildIndex(progress ProgressFunc) *Index {
	index := &Index{ids: make(map[int]struct{})}

	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		m.logger.WarnWithFields("Cannot read output directory, treating all items as new", map[string]interface{}{
			"output_dir": m.outputDir,
			"error":      err.Error(),
		})
		return index
	}

	total := len(entries)
	for i, entry := range entries {
		if id, ok := ParseLeadingID(entry.Name()); ok {
			index.ids[id] = struct{}{}
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	m.logger.DebugWithFields("Existing items indexed", map[string]interface{}{
		"output_dir": m.outputDir,
		"entries":    total,
		"indexed":    len(index.ids),
	})
	return index
}

// ParseLeadingID extracts the numeric id from a name like "123 Artist - Title.osz"
func ParseLeadingID(name string) (int, bool) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return 0, false
	}
	token := fields[0]
	if ext := filepath.Ext(token); ext != "" && len(fields) == 1 {
		token = strings.TrimSuffix(token, ext)
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Save streams r into filename inside the output directory.
// The data is written to a temporary file first and renamed into place.
func (m *Manager) Save(r io.Reader, filename string) (int64, error) {
	target := filepath.Join(m.outputDir, filename)

	out, err := os.CreateTemp(m.outputDir, ".download-*.tmp")
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to create temporary file")
	}
	tempFile := out.Name()

	written, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return written, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to stream download")
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return written, errs.Wrap(errs.ErrorTypeFilesystem, closeErr, "failed to close file")
	}

	if written == 0 {
		os.Remove(tempFile)
		return 0, errs.New(errs.ErrorTypeEmptyBody, "response body was empty")
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return written, errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to rename temporary file")
	}

	return written, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}
