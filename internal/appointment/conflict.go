package appointment

import (
	"context"
	"fmt"
	"time"
)

// Checker answers whether a staff member is free for an interval.
type Checker struct {
	repo Repository
}

func NewChecker(repo Repository) *Checker {
	return &Checker{repo: repo}
}

// Check lists the non-cancelled appointments of staffID that overlap the
// half-open interval [start, end). Callers guarantee start < end.
func (c *Checker) Check(ctx context.Context, staffID int64, start, end time.Time, excludeID *int64) (ConflictReport, error) {
	return check(ctx, c.repo, staffID, start, end, excludeID)
}

func check(ctx context.Context, repo Repository, staffID int64, start, end time.Time, excludeID *int64) (ConflictReport, error) {
	found, err := repo.FindConflicts(ctx, staffID, start, end, excludeID)
	if err != nil {
		return ConflictReport{}, fmt.Errorf("find conflicts: %w", err)
	}

	candidate := Interval{Start: start, End: end}
	conflicts := make([]Conflict, 0, len(found))
	for _, c := range found {
		// the store filters as well; this predicate is the authoritative one
		if c.Status == StatusCancelled {
			continue
		}
		if excludeID != nil && c.ID == *excludeID {
			continue
		}
		if !candidate.Overlaps(Interval{Start: c.StartTime, End: c.EndTime}) {
			continue
		}
		conflicts = append(conflicts, c)
	}

	return ConflictReport{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// overlapsAny is the in-memory form of the same predicate, used when the
// busy intervals of a whole day are already loaded.
func overlapsAny(candidate Interval, busy []Conflict) bool {
	for _, b := range busy {
		if b.Status == StatusCancelled {
			continue
		}
		if candidate.Overlaps(Interval{Start: b.StartTime, End: b.EndTime}) {
			return true
		}
	}
	return false
}
