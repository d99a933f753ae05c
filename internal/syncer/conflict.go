package syncer

import (
	"fmt"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/remote"
)

// ConflictTypeOverlap marks two items whose time ranges overlap.
const ConflictTypeOverlap = "overlap"

// DetectEventConflicts finds every pair of events in one fetch batch whose
// time ranges overlap.
//
// Overlap uses strict half-open semantics: start1 < end2 && start2 < end1.
// Events that merely touch (one's end equals the other's start) do not
// conflict. Each overlapping pair is reported exactly once regardless of
// input order, deduplicated by a sorted id-pair key. Conflicts are
// informational: the import proceeds for every event regardless.
func DetectEventConflicts(events []remote.Event) []model.Conflict {
	var conflicts []model.Conflict
	seen := make(map[string]bool)

	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i], events[j]
			if !overlaps(a.Start, a.End, b.Start, b.End) {
				continue
			}

			key := pairKey(a.ID, b.ID)
			if seen[key] {
				continue
			}
			seen[key] = true

			conflicts = append(conflicts, model.Conflict{
				Type:    ConflictTypeOverlap,
				EntityA: a.ID,
				EntityB: b.ID,
				Description: fmt.Sprintf("%q (%s) overlaps %q (%s)",
					a.Title, formatRange(a.Start, a.End),
					b.Title, formatRange(b.Start, b.End)),
			})
		}
	}

	return conflicts
}

// overlaps reports whether [start1, end1) and [start2, end2) intersect.
func overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}

// pairKey builds an order-independent key for an id pair.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

func formatRange(start, end time.Time) string {
	return start.Format("15:04") + "-" + end.Format("15:04")
}
