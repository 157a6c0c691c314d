// Package ledger keeps the ordered, deduplicated record of detection events
// for one session, plus the per-event selection set used by exports.
package ledger

import (
	"sort"
	"sync"

	"github.com/wastewatch/console/internal/wire"
)

type Ledger struct {
	mu       sync.RWMutex
	events   []wire.DetectionEvent
	known    map[int64]bool
	selected map[int64]bool
}

func New() *Ledger {
	return &Ledger{
		known:    make(map[int64]bool),
		selected: make(map[int64]bool),
	}
}

// Ingest appends events whose IDs have not been seen before, preserving the
// batch's order among the newly appended ones, and returns how many were
// appended. Re-sent IDs are skipped, so replayed batches are harmless.
func (l *Ledger) Ingest(batch []wire.DetectionEvent) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	appended := 0
	for _, ev := range batch {
		if l.known[ev.ID] {
			continue
		}
		l.known[ev.ID] = true
		l.events = append(l.events, ev)
		appended++
	}
	return appended
}

// All returns the events in first-arrival order. The slice is a copy.
func (l *Ledger) All() []wire.DetectionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]wire.DetectionEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// SetSelected marks one event for export. Unknown IDs are ignored.
func (l *Ledger) SetSelected(id int64, selected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.known[id] {
		return
	}
	if selected {
		l.selected[id] = true
	} else {
		delete(l.selected, id)
	}
}

// SelectAll marks every currently known event. Events ingested afterward
// default to unselected.
func (l *Ledger) SelectAll(selected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !selected {
		l.selected = make(map[int64]bool)
		return
	}
	for id := range l.known {
		l.selected[id] = true
	}
}

// SelectedIDs returns the selected IDs in ascending order.
func (l *Ledger) SelectedIDs() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]int64, 0, len(l.selected))
	for id := range l.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clear empties the ledger and the selection set.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	l.known = make(map[int64]bool)
	l.selected = make(map[int64]bool)
}
