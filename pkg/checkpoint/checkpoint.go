package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"collectordl/pkg/logger"
	"collectordl/pkg/models"
)

// reportVersion is bumped when the file layout changes
const reportVersion = 1

// Report is the outcome of the last run for one collection
type Report struct {
	Version        int             `json:"version"`
	RunID          string          `json:"run_id"`
	CollectionID   int             `json:"collection_id"`
	CollectionName string          `json:"collection_name"`
	OutputDir      string          `json:"output_dir"`
	Total          int             `json:"total"`
	Downloaded     int             `json:"downloaded"`
	Skipped        int             `json:"skipped"`
	Failed         []models.Target `json:"failed"`
	Cancelled      bool            `json:"cancelled"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// NewReport builds a report from a run result
func NewReport(collection *models.Collection, result *models.RunResult, outputDir string, startedAt time.Time, cancelled bool) *Report {
	failed := make([]models.Target, len(result.Failed))
	copy(failed, result.Failed)
	return &Report{
		Version:        reportVersion,
		RunID:          result.RunID,
		CollectionID:   collection.ID,
		CollectionName: collection.Name,
		OutputDir:      outputDir,
		Total:          result.Total,
		Downloaded:     result.Downloaded,
		Skipped:        result.Skipped,
		Failed:         failed,
		Cancelled:      cancelled,
		StartedAt:      startedAt,
		FinishedAt:     startedAt.Add(result.Duration),
	}
}

// Complete reports whether the run finished with nothing left to do
func (r *Report) Complete() bool {
	return !r.Cancelled && len(r.Failed) == 0
}

// FailedIDs returns the ids of the failed targets
func (r *Report) FailedIDs() []int {
	ids := make([]int, 0, len(r.Failed))
	for _, t := range r.Failed {
		ids = append(ids, t.ID)
	}
	return ids
}

// Manager handles the report file of one collection
type Manager struct {
	reportPath string
	logger     logger.Logger
	mu         sync.Mutex
}

// NewManager creates a report manager for key inside the user data directory
func NewManager(key string, log logger.Logger) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerAt(filepath.Join(dataDir, "reports"), key, log)
}

// NewManagerAt creates a report manager for key inside dir
func NewManagerAt(dir, key string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	return &Manager{
		reportPath: filepath.Join(dir, fmt.Sprintf("%s.report.json", key)),
		logger:     log.WithField("component", "checkpoint"),
	}, nil
}

// Path returns the report file path
func (m *Manager) Path() string {
	return m.reportPath
}

// Load loads the last report. It returns nil, nil when none exists.
func (m *Manager) Load() (*Report, error) {
	file, err := os.Open(m.reportPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	defer file.Close()

	var report Report
	if err := json.NewDecoder(file).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if report.Version > reportVersion {
		return nil, fmt.Errorf("report version %d is newer than supported version %d", report.Version, reportVersion)
	}

	m.logger.DebugWithFields("Report loaded", map[string]interface{}{
		"run_id":      report.RunID,
		"failed":      len(report.Failed),
		"finished_at": report.FinishedAt,
	})

	return &report, nil
}

// Save writes the report atomically
func (m *Manager) Save(report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if report.Version == 0 {
		report.Version = reportVersion
	}

	file, err := os.CreateTemp(filepath.Dir(m.reportPath), ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary report file: %w", err)
	}
	tempPath := file.Name()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode report: %w", err)
	}

	// Ensure data is written to disk
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync report file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close report file: %w", err)
	}

	if err := os.Rename(tempPath, m.reportPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace report file: %w", err)
	}

	m.logger.DebugWithFields("Report saved", map[string]interface{}{
		"run_id": report.RunID,
		"path":   m.reportPath,
	})

	return nil
}

// Record backs up the previous report and saves report in its place
func (m *Manager) Record(report *Report) error {
	if err := m.Backup(); err != nil {
		m.logger.WarnWithFields("Failed to back up previous report", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := m.Save(report); err != nil {
		return err
	}

	m.logger.InfoWithFields("Run report written", map[string]interface{}{
		"run_id":     report.RunID,
		"downloaded": report.Downloaded,
		"failed":     len(report.Failed),
		"path":       m.reportPath,
	})
	return nil
}

// Delete removes the report file
func (m *Manager) Delete() error {
	if err := os.Remove(m.reportPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	m.logger.Debug("Report deleted")
	return nil
}

// Exists checks if a report file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.reportPath)
	return err == nil
}

// Backup copies the current report next to itself
func (m *Manager) Backup() error {
	if !m.Exists() {
		return nil
	}

	src, err := os.Open(m.reportPath)
	if err != nil {
		return fmt.Errorf("failed to open report for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(m.reportPath + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy report to backup: %w", err)
	}
	return nil
}

// RestrictToFailed narrows collection to the targets that failed in the last
// report, keeping collection order. Without a report the collection is
// returned unchanged and ok is false.
func (m *Manager) RestrictToFailed(collection *models.Collection) (restricted *models.Collection, ok bool, err error) {
	report, err := m.Load()
	if err != nil {
		return nil, false, err
	}
	if report == nil {
		return collection, false, nil
	}

	failed := make(map[int]struct{}, len(report.Failed))
	for _, t := range report.Failed {
		failed[t.ID] = struct{}{}
	}

	restricted = &models.Collection{
		ID:       collection.ID,
		Name:     collection.Name,
		Uploader: collection.Uploader,
	}
	for _, t := range collection.Targets {
		if _, hit := failed[t.ID]; hit {
			restricted.Targets = append(restricted.Targets, t)
			delete(failed, t.ID)
		}
	}
	// Failed targets that left the collection are still retried
	for _, t := range report.Failed {
		if _, left := failed[t.ID]; left {
			restricted.Targets = append(restricted.Targets, t)
			delete(failed, t.ID)
		}
	}

	m.logger.InfoWithFields("Restricting run to previously failed targets", map[string]interface{}{
		"previous_run": report.RunID,
		"targets":      len(restricted.Targets),
	})
	return restricted, true, nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		// Use XDG_DATA_HOME if set, otherwise ~/.local/share
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "collectordl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "collectordl")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "collectordl")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "collectordl")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
