package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
)

// conflictDetector finds the active lectures that would double-book a trainer.
type conflictDetector struct {
	repo Repository
}

// check scans every course taught by the course's trainer for active lectures on date, and at t
// when t is set. The lecture excludeID is never reported, so a lecture never conflicts with itself.
func (d conflictDetector) check(ctx context.Context, course Course, date Date, t TimeOfDay, excludeID string, exec ...core.DBExecutor) (ConflictReport, error) {
	conflicts, err := d.repo.FindConflicts(ctx, ConflictQuery{
		TrainerID:        course.TrainerID,
		Date:             date,
		Time:             t,
		ExcludeLectureID: excludeID,
	}, exec...)
	if err != nil {
		return ConflictReport{}, errors.Wrap(err, "finding conflicts")
	}
	sortConflicts(conflicts)
	return newConflictReport(conflicts), nil
}

func newConflictReport(conflicts []Conflict) ConflictReport {
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	report := ConflictReport{HasConflict: len(conflicts) > 0, Conflicts: conflicts}
	if report.HasConflict {
		report.Message = fmt.Sprintf("Trainer already has %d lecture(s) scheduled at this time", len(conflicts))
	} else {
		report.Message = "No conflicts found"
	}
	return report
}

func sortConflicts(conflicts []Conflict) {
	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.LectureID < b.LectureID
	})
}
