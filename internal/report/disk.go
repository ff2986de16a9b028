package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DiskStore writes JobReports as JSON files to a lazily-created temp
// directory. The directory lives until Close.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a new DiskStore. The underlying temp directory
// is created lazily on the first Save.
func NewDiskStore() *DiskStore {
	return &DiskStore{}
}

// Save writes a JobReport as a JSON file to disk.
func (s *DiskStore) Save(report *JobReport) error {
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshalling report %s: %w", report.ID, err)
	}
	path := filepath.Join(dir, report.ID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing report %s: %w", report.ID, err)
	}
	return nil
}

// Load reads a JobReport from disk.
func (s *DiskStore) Load(id string) (*JobReport, error) {
	if id != filepath.Base(id) {
		return nil, fmt.Errorf("invalid report id %q", id)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", id, err)
	}
	var report JobReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshalling report %s: %w", id, err)
	}
	return &report, nil
}

// Close removes the temp directory and everything in it.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "compilerun-reports-*")
	if err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}
