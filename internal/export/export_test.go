package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type fakeFetcher struct {
	csv     []byte
	reports map[int64][]byte
	err     error
	lastIDs []int64
}

func (f *fakeFetcher) ExportEvents(ctx context.Context, ids []int64) ([]byte, error) {
	f.lastIDs = ids
	return f.csv, f.err
}

func (f *fakeFetcher) ExportReport(ctx context.Context, id int64) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.reports[id]
	if !ok {
		return nil, fmt.Errorf("no report for %d", id)
	}
	return data, nil
}

func TestDirSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	s, err := NewDirSaver(dir)
	if err != nil {
		t.Fatalf("NewDirSaver: %v", err)
	}

	path, err := s.Save("events.csv", []byte("id,category\n"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("saved to %q, want inside %q", path, dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "id,category\n" {
		t.Errorf("content = %q", data)
	}
}

func TestDirSaverRejectsBadNames(t *testing.T) {
	s, err := NewDirSaver(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirSaver: %v", err)
	}
	for _, name := range []string{"", "../escape.txt", "a/b.txt", ".."} {
		if _, err := s.Save(name, []byte("x")); err == nil {
			t.Errorf("Save(%q) accepted", name)
		}
	}
}

func TestSaveEvents(t *testing.T) {
	fetcher := &fakeFetcher{csv: []byte("id,category\n1,sorting_error\n")}
	dir := t.TempDir()
	saver, _ := NewDirSaver(dir)
	e := New(fetcher, saver)

	path, err := e.SaveEvents(context.Background(), []int64{1, 3})
	if err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}
	if filepath.Base(path) != "events.csv" {
		t.Errorf("path = %q, want events.csv", path)
	}
	if len(fetcher.lastIDs) != 2 || fetcher.lastIDs[0] != 1 || fetcher.lastIDs[1] != 3 {
		t.Errorf("fetched ids = %v", fetcher.lastIDs)
	}
}

func TestSaveEventsEmptySelection(t *testing.T) {
	e := New(&fakeFetcher{}, nil)
	if _, err := e.SaveEvents(context.Background(), nil); !errors.Is(err, ErrNothingSelected) {
		t.Fatalf("err = %v, want ErrNothingSelected", err)
	}
}

func TestSaveReports(t *testing.T) {
	fetcher := &fakeFetcher{reports: map[int64][]byte{
		4: []byte("report four"),
		7: []byte("report seven"),
	}}
	dir := t.TempDir()
	saver, _ := NewDirSaver(dir)
	e := New(fetcher, saver)

	paths, err := e.SaveReports(context.Background(), []int64{4, 7})
	if err != nil {
		t.Fatalf("SaveReports: %v", err)
	}
	want := []string{"Event_4_Report.txt", "Event_7_Report.txt"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i, p := range paths {
		if filepath.Base(p) != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, p, want[i])
		}
	}
}

func TestSaveReportsStopsOnFailure(t *testing.T) {
	fetcher := &fakeFetcher{reports: map[int64][]byte{1: []byte("one")}}
	saver, _ := NewDirSaver(t.TempDir())
	e := New(fetcher, saver)

	paths, err := e.SaveReports(context.Background(), []int64{1, 99, 2})
	if err == nil {
		t.Fatal("expected error for missing report")
	}
	if len(paths) != 1 {
		t.Errorf("paths = %v, want the one written before the failure", paths)
	}
}
