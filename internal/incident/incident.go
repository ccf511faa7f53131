// Package incident provides read access to platform-reliability knowledge:
// platform summaries, incident history, and investigation history.
package incident

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store is the read-only incident knowledge surface.
type Store interface {
	// PlatformInformation returns the summary document for a platform.
	PlatformInformation(ctx context.Context, platformName string) (string, error)

	// IncidentHistory returns recorded incidents, optionally filtered by a
	// case-insensitive substring query. An empty query returns everything.
	IncidentHistory(ctx context.Context, query string) (string, error)

	// InvestigationHistory returns recorded investigations, with the same
	// query semantics as IncidentHistory.
	InvestigationHistory(ctx context.Context, query string) (string, error)
}

// ErrNotFound indicates the backing document does not exist.
var ErrNotFound = errors.New("incident: data source not found")

// Default document names inside the data directory.
const (
	platformSummaryFile     = "platform_summary.txt"
	incidentHistoryFile     = "incident_history.txt"
	investigationHistoryFile = "investigation_history.txt"
)

// FileStore serves incident knowledge from flat files in a data directory.
// Documents are curated by operators out of band; the store only reads.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a file-backed incident store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) PlatformInformation(ctx context.Context, platformName string) (string, error) {
	data, err := s.read(ctx, platformSummaryFile)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Platform Information for %s: %s", platformName, data), nil
}

func (s *FileStore) IncidentHistory(ctx context.Context, query string) (string, error) {
	return s.readFiltered(ctx, incidentHistoryFile, query)
}

func (s *FileStore) InvestigationHistory(ctx context.Context, query string) (string, error) {
	return s.readFiltered(ctx, investigationHistoryFile, query)
}

func (s *FileStore) read(ctx context.Context, name string) (string, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.ErrorContext(ctx, "incident data file missing", slog.String("path", path))
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(data), nil
}

// readFiltered returns the document, or only the lines containing query
// (case-insensitive) when a query is given. Records are line-oriented.
func (s *FileStore) readFiltered(ctx context.Context, name, query string) (string, error) {
	data, err := s.read(ctx, name)
	if err != nil || query == "" {
		return data, err
	}

	needle := strings.ToLower(query)
	var matched []string
	for _, line := range strings.Split(data, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			matched = append(matched, line)
		}
	}
	if len(matched) == 0 {
		return fmt.Sprintf("No records matching '%s'.", query), nil
	}
	return strings.Join(matched, "\n"), nil
}
