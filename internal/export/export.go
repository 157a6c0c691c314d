// Package export saves engine-produced artifacts (event spreadsheets and
// per-event incident reports) to local files.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNothingSelected is returned when an export is requested with no event ids.
var ErrNothingSelected = errors.New("no events selected")

// Fetcher pulls export artifacts from the analysis engine.
type Fetcher interface {
	ExportEvents(ctx context.Context, ids []int64) ([]byte, error)
	ExportReport(ctx context.Context, id int64) ([]byte, error)
}

// Saver persists a named artifact and returns the path it was written to.
type Saver interface {
	Save(name string, data []byte) (string, error)
}

// DirSaver writes artifacts into a single flat directory.
type DirSaver struct {
	dir string
}

func NewDirSaver(dir string) (*DirSaver, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &DirSaver{dir: dir}, nil
}

func (s *DirSaver) Save(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// Exporter fetches artifacts for a set of event ids and hands them to a Saver.
type Exporter struct {
	engine Fetcher
	saver  Saver
}

func New(engine Fetcher, saver Saver) *Exporter {
	return &Exporter{engine: engine, saver: saver}
}

// SaveEvents exports the selected events as a single spreadsheet file and
// returns the path it was saved to.
func (e *Exporter) SaveEvents(ctx context.Context, ids []int64) (string, error) {
	if len(ids) == 0 {
		return "", ErrNothingSelected
	}
	data, err := e.engine.ExportEvents(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("fetch event export: %w", err)
	}
	return e.saver.Save("events.csv", data)
}

// SaveReports exports one incident report per selected event. It stops at the
// first failure and returns the paths written so far alongside the error.
func (e *Exporter) SaveReports(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, ErrNothingSelected
	}
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		data, err := e.engine.ExportReport(ctx, id)
		if err != nil {
			return paths, fmt.Errorf("fetch report for event %d: %w", id, err)
		}
		path, err := e.saver.Save(fmt.Sprintf("Event_%d_Report.txt", id), data)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
