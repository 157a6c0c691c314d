package ledger

import (
	"testing"

	"github.com/wastewatch/console/internal/wire"
)

func ev(id int64) wire.DetectionEvent {
	return wire.DetectionEvent{ID: id, Source: "Camera 01", Category: "vehicle"}
}

func assertIDs(t *testing.T, events []wire.DetectionEvent, want ...int64) {
	t.Helper()
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, id := range want {
		if events[i].ID != id {
			t.Errorf("events[%d].ID = %d, want %d", i, events[i].ID, id)
		}
	}
}

func TestIngestPreservesArrivalOrder(t *testing.T) {
	l := New()
	if got := l.Ingest([]wire.DetectionEvent{ev(3), ev(1)}); got != 2 {
		t.Errorf("Ingest returned %d, want 2", got)
	}
	if got := l.Ingest([]wire.DetectionEvent{ev(2)}); got != 1 {
		t.Errorf("Ingest returned %d, want 1", got)
	}
	assertIDs(t, l.All(), 3, 1, 2)
}

func TestIngestDropsDuplicates(t *testing.T) {
	l := New()
	l.Ingest([]wire.DetectionEvent{ev(1), ev(2)})

	tests := []struct {
		name         string
		batch        []wire.DetectionEvent
		wantAppended int
		wantLen      int
	}{
		{"FullReplay", []wire.DetectionEvent{ev(1), ev(2)}, 0, 2},
		{"DuplicateWithinBatch", []wire.DetectionEvent{ev(3), ev(3)}, 1, 3},
		{"MixedNewAndOld", []wire.DetectionEvent{ev(2), ev(4)}, 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Ingest(tt.batch); got != tt.wantAppended {
				t.Errorf("Ingest = %d, want %d", got, tt.wantAppended)
			}
			if got := l.Len(); got != tt.wantLen {
				t.Errorf("Len = %d, want %d", got, tt.wantLen)
			}
		})
	}
	assertIDs(t, l.All(), 1, 2, 3, 4)
}

func TestAllReturnsCopy(t *testing.T) {
	l := New()
	l.Ingest([]wire.DetectionEvent{ev(1)})

	got := l.All()
	got[0].ID = 99

	if l.All()[0].ID != 1 {
		t.Error("All did not return a copy; mutation leaked into ledger")
	}
}

func TestSelection(t *testing.T) {
	l := New()
	l.Ingest([]wire.DetectionEvent{ev(1), ev(2), ev(3)})

	l.SetSelected(2, true)
	l.SetSelected(3, true)
	l.SetSelected(3, false)
	l.SetSelected(42, true) // unknown id, ignored

	ids := l.SelectedIDs()
	if len(ids) != 1 || ids[0] != 2 {
		t.Errorf("SelectedIDs = %v, want [2]", ids)
	}
}

func TestSelectAllIsNotRetroactive(t *testing.T) {
	l := New()
	l.Ingest([]wire.DetectionEvent{ev(2), ev(1)})
	l.SelectAll(true)

	// Events ingested after SelectAll default to unselected.
	l.Ingest([]wire.DetectionEvent{ev(3)})

	ids := l.SelectedIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("SelectedIDs = %v, want [1 2]", ids)
	}

	l.SelectAll(false)
	if got := l.SelectedIDs(); len(got) != 0 {
		t.Errorf("SelectedIDs after SelectAll(false) = %v, want empty", got)
	}
}

func TestSelectedIDsSorted(t *testing.T) {
	l := New()
	l.Ingest([]wire.DetectionEvent{ev(9), ev(4), ev(7)})
	l.SelectAll(true)

	ids := l.SelectedIDs()
	if len(ids) != 3 || ids[0] != 4 || ids[1] != 7 || ids[2] != 9 {
		t.Errorf("SelectedIDs = %v, want [4 7 9]", ids)
	}
}

func TestClear(t *testing.T) {
	l := New()
	l.Ingest([]wire.DetectionEvent{ev(1), ev(2)})
	l.SelectAll(true)
	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", l.Len())
	}
	if got := l.SelectedIDs(); len(got) != 0 {
		t.Errorf("SelectedIDs after Clear = %v, want empty", got)
	}

	// Cleared IDs can be ingested again.
	if got := l.Ingest([]wire.DetectionEvent{ev(1)}); got != 1 {
		t.Errorf("Ingest after Clear = %d, want 1", got)
	}
}
