// Package scheduler computes a day plan: it places immovable calendar
// commitments as fixed time blocks, derives the free gaps left inside the
// working-hours window, and greedily fills them with flexible tasks ordered
// by priority and energy alignment.
//
// The algorithm is a single-pass, priority-first bin-packing heuristic. It
// does not backtrack or attempt globally optimal packing; at the scale of
// tens of tasks and gaps, predictability beats optimality. By construction
// it never produces overlapping blocks: a task that fits no gap lands in
// the unscheduled list instead of being squeezed in.
package scheduler

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
)

// Config bounds the scheduling window.
type Config struct {
	// WorkdayStartHour is the first schedulable hour (local), inclusive.
	WorkdayStartHour int
	// WorkdayEndHour is the last schedulable hour (local), exclusive.
	WorkdayEndHour int
}

// DefaultConfig returns the standard 08:00-20:00 working window.
func DefaultConfig() Config {
	return Config{WorkdayStartHour: 8, WorkdayEndHour: 20}
}

// Plan is the outcome of one scheduling run. Blocks are sorted by start
// time and pairwise non-overlapping. Everything in Plan is ephemeral;
// persisting it is the caller's concern.
type Plan struct {
	Blocks      []model.TimeBlock
	Unscheduled []*model.Task
	Conflicts   []model.Conflict
	Warnings    []string
}

// Scheduler places tasks into a day.
type Scheduler struct {
	cfg    Config
	logger *log.Logger
}

// New creates a Scheduler. If logger is nil, logging is suppressed.
func New(cfg Config, logger *log.Logger) *Scheduler {
	if cfg.WorkdayStartHour == 0 && cfg.WorkdayEndHour == 0 {
		cfg = DefaultConfig()
	}
	return &Scheduler{cfg: cfg, logger: logger}
}

// gap is a contiguous free interval inside the working window.
type gap struct {
	start time.Time
	end   time.Time
}

func (g gap) duration() time.Duration {
	return g.end.Sub(g.start)
}

// Generate builds the plan for one day.
//
// Fixed tasks lacking a concrete start/end are skipped with a warning.
// Overlaps among fixed tasks are reported as conflicts but both blocks are
// kept: a double-booked calendar is the user's reality, not the scheduler's
// problem to resolve. Flexible tasks are placed best-gap-first by the
// energy-alignment score, tie-broken by earliest start.
func (s *Scheduler) Generate(day time.Time, fixed, flexible []*model.Task, profile model.EnergyProfile) *Plan {
	plan := &Plan{}

	valid := make([]*model.Task, 0, len(fixed))
	for _, task := range fixed {
		if !task.HasSlot() {
			warning := fmt.Sprintf("fixed task %s (%s) has no start/end, skipping", task.ID, task.Title)
			plan.Warnings = append(plan.Warnings, warning)
			s.logf("WARNING: %s", warning)
			continue
		}
		valid = append(valid, task)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].StartAt.Before(*valid[j].StartAt)
	})

	fixedBlocks := make([]model.TimeBlock, 0, len(valid))
	for _, task := range valid {
		fixedBlocks = append(fixedBlocks, model.TimeBlock{
			TaskID: task.ID,
			Title:  task.Title,
			Start:  *task.StartAt,
			End:    *task.EndAt,
			Fixed:  true,
		})
	}
	plan.Conflicts = detectFixedConflicts(valid)

	windowStart, windowEnd := s.window(day)
	gaps := freeGaps(windowStart, windowEnd, fixedBlocks)

	ordered := orderFlexible(flexible)

	blocks := fixedBlocks
	for _, task := range ordered {
		duration := time.Duration(task.EstimatedMinutes) * time.Minute
		idx := bestGap(gaps, duration, task.Energy, profile)
		if idx < 0 {
			plan.Unscheduled = append(plan.Unscheduled, task)
			s.logf("No gap large enough for task %s (%d min)", task.ID, task.EstimatedMinutes)
			continue
		}

		placed := model.TimeBlock{
			TaskID: task.ID,
			Title:  task.Title,
			Start:  gaps[idx].start,
			End:    gaps[idx].start.Add(duration),
		}
		blocks = append(blocks, placed)
		gaps = consume(gaps, idx, placed.Start, placed.End)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Start.Before(blocks[j].Start)
	})
	plan.Blocks = blocks

	return plan
}

// window returns the working-hours bounds for the given day.
func (s *Scheduler) window(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), s.cfg.WorkdayStartHour, 0, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), s.cfg.WorkdayEndHour, 0, 0, 0, day.Location())
	return start, end
}

// detectFixedConflicts reports overlaps among fixed tasks themselves.
// Fixed tasks may legitimately come from a double-booked calendar.
func detectFixedConflicts(fixed []*model.Task) []model.Conflict {
	var conflicts []model.Conflict
	for i := 0; i < len(fixed); i++ {
		for j := i + 1; j < len(fixed); j++ {
			a, b := fixed[i], fixed[j]
			if !a.StartAt.Before(*b.EndAt) || !b.StartAt.Before(*a.EndAt) {
				continue
			}
			conflicts = append(conflicts, model.Conflict{
				Type:    "fixed-overlap",
				EntityA: a.ID,
				EntityB: b.ID,
				Description: fmt.Sprintf("%q (%s-%s) overlaps %q (%s-%s)",
					a.Title, a.StartAt.Format("15:04"), a.EndAt.Format("15:04"),
					b.Title, b.StartAt.Format("15:04"), b.EndAt.Format("15:04")),
			})
		}
	}
	return conflicts
}

// freeGaps computes the complement of the fixed blocks within the window,
// ordered by start time. Blocks are assumed sorted by start.
func freeGaps(windowStart, windowEnd time.Time, fixed []model.TimeBlock) []gap {
	var gaps []gap
	cursor := windowStart

	for _, block := range fixed {
		if !block.End.After(windowStart) || !block.Start.Before(windowEnd) {
			continue // entirely outside the window
		}

		start, end := block.Start, block.End
		if start.Before(windowStart) {
			start = windowStart
		}
		if end.After(windowEnd) {
			end = windowEnd
		}

		if start.After(cursor) {
			gaps = append(gaps, gap{start: cursor, end: start})
		}
		if end.After(cursor) {
			cursor = end
		}
	}

	if cursor.Before(windowEnd) {
		gaps = append(gaps, gap{start: cursor, end: windowEnd})
	}

	return gaps
}

// orderFlexible sorts flexible tasks by priority descending, tie-broken by
// energy level descending, without mutating the input slice.
func orderFlexible(flexible []*model.Task) []*model.Task {
	ordered := make([]*model.Task, len(flexible))
	copy(ordered, flexible)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority.MoreImportant(ordered[j].Priority)
		}
		return ordered[i].Energy.Higher(ordered[j].Energy)
	})
	return ordered
}

// score rates how well a gap suits a task's energy demand:
// 10 for an aligned placement (high-energy task starting in a peak hour, or
// low-energy task in a low hour), 5 for medium-energy tasks anywhere, and 1
// for an acceptable but misaligned placement.
func score(g gap, energy model.Energy, profile model.EnergyProfile) int {
	hour := g.start.Hour()
	switch {
	case energy == model.EnergyHigh && profile.IsPeak(hour):
		return 10
	case energy == model.EnergyLow && profile.IsLow(hour):
		return 10
	case energy == model.EnergyMedium:
		return 5
	default:
		return 1
	}
}

// bestGap returns the index of the highest-scoring gap that can hold
// duration, tie-broken by earliest start, or -1 when none fits.
func bestGap(gaps []gap, duration time.Duration, energy model.Energy, profile model.EnergyProfile) int {
	best := -1
	bestScore := 0

	for i, g := range gaps {
		if g.duration() < duration {
			continue
		}
		sc := score(g, energy, profile)
		if sc > bestScore {
			best, bestScore = i, sc
		}
		// Ties keep the earlier gap: gaps are ordered by start time.
	}

	return best
}

// consume removes [start, end) from the gap at idx, replacing it with
// zero, one, or two residual sub-gaps.
func consume(gaps []gap, idx int, start, end time.Time) []gap {
	g := gaps[idx]
	var residual []gap
	if g.start.Before(start) {
		residual = append(residual, gap{start: g.start, end: start})
	}
	if end.Before(g.end) {
		residual = append(residual, gap{start: end, end: g.end})
	}

	out := make([]gap, 0, len(gaps)-1+len(residual))
	out = append(out, gaps[:idx]...)
	out = append(out, residual...)
	out = append(out, gaps[idx+1:]...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].start.Before(out[j].start)
	})
	return out
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
