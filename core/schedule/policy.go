package schedule

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
)

// limitPolicy caps how many lectures of a course may be postponed.
// The count is derived from lecture states, so a cancelled postponement frees its slot.
type limitPolicy struct {
	repo Repository
	max  int
}

func (p limitPolicy) postponementCount(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	n, err := p.repo.CountLectures(ctx, LectureFilter{CourseID: courseID, Attendances: PostponedAttendances}, exec...)
	return n, errors.Wrap(err, "counting postponements")
}

func (p limitPolicy) check(ctx context.Context, courseID string, exec ...core.DBExecutor) (LimitCheck, error) {
	current, err := p.postponementCount(ctx, courseID, exec...)
	if err != nil {
		return LimitCheck{}, err
	}
	return LimitCheck{Allowed: current < p.max, Current: current, Max: p.max}, nil
}

func (p limitPolicy) stats(ctx context.Context, courseID string, exec ...core.DBExecutor) (PostponementStats, error) {
	limit, err := p.check(ctx, courseID, exec...)
	if err != nil {
		return PostponementStats{}, err
	}
	isMakeup := true
	makeups, err := p.repo.CountLectures(ctx, LectureFilter{CourseID: courseID, IsMakeup: &isMakeup}, exec...)
	if err != nil {
		return PostponementStats{}, errors.Wrap(err, "counting makeup lectures")
	}

	remaining := limit.Max - limit.Current
	if remaining < 0 {
		remaining = 0
	}
	return PostponementStats{
		CourseID:              courseID,
		TotalPostponements:    limit.Current,
		MakeupLecturesCreated: makeups,
		MaxAllowed:            limit.Max,
		Remaining:             remaining,
		CanPostpone:           limit.Allowed,
	}, nil
}
