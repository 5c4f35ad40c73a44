package realtime

import (
	"sort"

	"github.com/google/uuid"

	"sos-service/internal/models"
)

// droppedMemory is how many ids that fell off a bounded list stay remembered.
const droppedMemory = 256

// AlertList is a newest-first list of alerts with unique ids, optionally bounded.
// The last droppedMemory ids that fell off the end stay known, so a late duplicate
// is still ignored without the id set growing for the life of the list.
type AlertList struct {
	limit   int
	items   []models.Alert
	seen    map[uuid.UUID]struct{}
	dropped []uuid.UUID
}

// NewAlertList keeps at most limit alerts. limit <= 0 keeps all of them.
func NewAlertList(limit int) *AlertList {
	return &AlertList{limit: limit, seen: make(map[uuid.UUID]struct{})}
}

// Prepend puts a at the front. It reports false when a is already listed.
func (l *AlertList) Prepend(a models.Alert) bool {
	if _, dup := l.seen[a.ID]; dup {
		return false
	}
	l.items = append([]models.Alert{a}, l.items...)
	l.seen[a.ID] = struct{}{}
	l.truncate()
	return true
}

// Load merges a bulk fetch with whatever was already streamed in.
func (l *AlertList) Load(alerts []models.Alert) {
	for _, a := range alerts {
		if _, dup := l.seen[a.ID]; dup {
			continue
		}
		l.items = append(l.items, a)
		l.seen[a.ID] = struct{}{}
	}
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].CreatedAt.After(l.items[j].CreatedAt)
	})
	l.truncate()
}

// Items returns a copy of the list, newest first.
func (l *AlertList) Items() []models.Alert {
	out := make([]models.Alert, len(l.items))
	copy(out, l.items)
	return out
}

func (l *AlertList) Len() int { return len(l.items) }

func (l *AlertList) truncate() {
	if l.limit <= 0 || len(l.items) <= l.limit {
		return
	}
	for _, a := range l.items[l.limit:] {
		l.dropped = append(l.dropped, a.ID)
	}
	l.items = l.items[:l.limit]

	if over := len(l.dropped) - droppedMemory; over > 0 {
		for _, id := range l.dropped[:over] {
			delete(l.seen, id)
		}
		l.dropped = append([]uuid.UUID(nil), l.dropped[over:]...)
	}
}
