package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
)

const DefaultMaxPostponements = 3

var errInvalidRequest = errors.New("invalid request")

type (
	Service interface {
		// Postpone marks a pending lecture as postponed and schedules its makeup at the end of the course.
		Postpone(ctx context.Context, actor Actor, req PostponeRequest) (PostponeResult, error)
		CheckConflicts(ctx context.Context, actor Actor, req CheckConflictsRequest) (ConflictReport, error)
		// CancelPostponement restores a postponed lecture and removes its makeup, if any.
		CancelPostponement(ctx context.Context, actor Actor, lectureID string) (CancelResult, error)
		PostponementStats(ctx context.Context, actor Actor, courseID string) (PostponementStats, error)
		CheckLimit(ctx context.Context, courseID string) (LimitCheck, error)
		RecordAttendance(ctx context.Context, actor Actor, req AttendanceRequest) (Lecture, error)
		GenerateSchedule(ctx context.Context, actor Actor, req GenerateRequest) ([]Lecture, error)
		GetLecture(ctx context.Context, actor Actor, id string) (Lecture, error)
		ListLectures(ctx context.Context, actor Actor, courseID string, ordering []core.DBOrdering) ([]Lecture, error)
		ListPostponements(ctx context.Context, actor Actor, courseID string) ([]Postponement, error)
		// CompletedLectureCount is the number of held lectures of the course, as consumed by payroll.
		CompletedLectureCount(ctx context.Context, actor Actor, courseID string) (int, error)
	}

	Options struct {
		MaxPostponements   int       // 0 means DefaultMaxPostponements
		DefaultLectureTime TimeOfDay // last fallback for makeup lectures
		Clock              func() time.Time
	}

	service struct {
		tx        core.Transactor
		repo      Repository
		notifier  Notifier
		logger    core.Logger
		opts      Options
		conflicts conflictDetector
		limits    limitPolicy
	}
)

var _ Service = (*service)(nil)

func OptionsFromConfig(conf *core.Config) Options {
	opts := Options{MaxPostponements: conf.Scheduling.MaxPostponements}
	if t, err := ParseTimeOfDay(conf.Scheduling.DefaultLectureTime); err == nil {
		opts.DefaultLectureTime = t
	}
	return opts
}

func NewService(tx core.Transactor, repo Repository, notifier Notifier, logger core.Logger, opts Options) Service {
	if opts.MaxPostponements <= 0 {
		opts.MaxPostponements = DefaultMaxPostponements
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &service{
		tx:        tx,
		repo:      repo,
		notifier:  notifier,
		logger:    logger,
		opts:      opts,
		conflicts: conflictDetector{repo: repo},
		limits:    limitPolicy{repo: repo, max: opts.MaxPostponements},
	}
}

func (svc *service) now() time.Time { return svc.opts.Clock().UTC() }

// lockLecture loads a lecture and its course inside a transaction, locking the course's trainer and
// the course first. The lecture is read again once the locks are held.
func (svc *service) lockLecture(ctx context.Context, id string, exec core.DBExecutor) (Lecture, Course, error) {
	lec, err := svc.repo.GetLecture(ctx, id, exec)
	if err != nil {
		return Lecture{}, Course{}, errors.Wrap(err, "getting lecture")
	}
	course, err := svc.repo.LockCourse(ctx, lec.CourseID, exec)
	if err != nil {
		return Lecture{}, Course{}, errors.Wrap(err, "locking course")
	}
	lec, err = svc.repo.GetLecture(ctx, id, exec)
	if err != nil {
		return Lecture{}, Course{}, errors.Wrap(err, "refreshing lecture")
	}
	return lec, course, nil
}

// trapErr passes domain outcomes through and turns anything else into a logged TransactionError.
func (svc *service) trapErr(err error, op string, actor Actor) error {
	var vErr *core.ValidationError
	if isExpected(err) || errors.As(err, &vErr) {
		return err
	}
	svc.logger.Error(fmt.Sprintf("%s: %v", op, err), err, actor)
	return &TransactionError{Op: op, Err: err}
}

func notesOf(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (req PostponeRequest) clean() (Date, TimeOfDay, Attendance, error) {
	var flds []core.FieldError

	date, err := ParseDate(req.NewDate)
	if err != nil {
		flds = append(flds, core.FieldError{Field: "new_date", Error: isoDateText})
	}
	var t TimeOfDay
	if strings.TrimSpace(req.NewTime) != "" {
		if t, err = ParseTimeOfDay(req.NewTime); err != nil {
			flds = append(flds, core.FieldError{Field: "new_time", Error: timeOfDayText})
		}
	}
	status, ok := req.PostponedBy.Attendance()
	if !ok {
		flds = append(flds, core.FieldError{
			Field: "postponed_by",
			Error: "must be one of: trainer, student, customer_service, admin, holiday",
		})
	}

	if len(flds) > 0 {
		return "", "", "", core.NewValidationError(errInvalidRequest, flds...)
	}
	return date, t, status, nil
}

func (svc *service) Postpone(ctx context.Context, actor Actor, req PostponeRequest) (PostponeResult, error) {
	newDate, newTime, status, err := req.clean()
	if err != nil {
		return PostponeResult{}, err
	}
	reason := core.CleanString(req.Reason)

	var (
		res    PostponeResult
		course Course
	)
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		res = PostponeResult{}

		orig, crs, err := svc.lockLecture(ctx, req.LectureID, exec)
		if err != nil {
			return err
		}
		course = crs

		if !actor.CanPostpone(course) {
			return ErrPermissionDenied
		}
		if !orig.CanBePostponed() {
			return ErrCannotPostpone
		}

		limit, err := svc.limits.check(ctx, course.ID, exec)
		if err != nil {
			return err
		}
		if !limit.Allowed {
			return ErrMaxPostponementsReached
		}

		report, err := svc.conflicts.check(ctx, course, newDate, newTime, orig.ID, exec)
		if err != nil {
			return err
		}
		if report.HasConflict {
			if !req.Force || !actor.CanForceOverride() {
				return &TimeConflictError{Conflicts: report.Conflicts}
			}
			res.OverriddenConflicts = report.Conflicts
		}

		now := svc.now()

		// the original keeps its date and time: it is the historical record
		orig.Attendance = status
		orig.Notes = notesOf(reason)
		orig.UpdatedAt = now
		if orig, err = svc.repo.UpdateLectureStatus(ctx, orig, exec); err != nil {
			return errors.Wrap(err, "updating original lecture")
		}

		maxSeq, err := svc.repo.MaxSequence(ctx, course.ID, exec)
		if err != nil {
			return errors.Wrap(err, "getting max sequence")
		}
		makeupNotes := fmt.Sprintf("Makeup for lecture #%d", orig.Sequence)
		created, err := svc.repo.CreateLectures(ctx, []Lecture{{
			CourseID:   course.ID,
			Sequence:   maxSeq + 1,
			Date:       newDate,
			Time:       firstTime(newTime, orig.Time, course.DefaultTime, svc.opts.DefaultLectureTime),
			Attendance: AttendancePending,
			IsMakeup:   true,
			MakeupFor:  orig.ID,
			Notes:      &makeupNotes,
			CreatedAt:  now,
			UpdatedAt:  now,
		}}, exec)
		if err != nil {
			return errors.Wrap(err, "creating makeup lecture")
		}

		if _, err = svc.repo.AddCourseLectures(ctx, course.ID, 1, exec); err != nil {
			return errors.Wrap(err, "incrementing course lectures")
		}

		res.OriginalLecture = orig
		res.NewLecture = created[0]
		return nil
	})
	if err != nil {
		return PostponeResult{}, svc.trapErr(err, "postponing lecture", actor)
	}

	if len(res.OverriddenConflicts) > 0 {
		svc.logger.Warn(
			fmt.Sprintf("conflict override: lecture %s moved to %s %s over %d lecture(s)", res.OriginalLecture.ID, newDate, newTime, len(res.OverriddenConflicts)),
			actor,
			map[string]interface{}{"lecture_id": res.OriginalLecture.ID, "new_date": newDate, "new_time": newTime, "conflicts": res.OverriddenConflicts},
		)
	}

	svc.notify(ctx, actor, Notice{
		Kind:             NoticePostponed,
		CourseID:         course.ID,
		CourseTitle:      course.Title,
		OriginalSequence: res.OriginalLecture.Sequence,
		OriginalDate:     res.OriginalLecture.Date,
		Status:           res.OriginalLecture.Attendance,
		Reason:           reason,
		MakeupSequence:   res.NewLecture.Sequence,
		MakeupDate:       res.NewLecture.Date,
		MakeupTime:       res.NewLecture.Time,
	}, course.TrainerID)
	return res, nil
}

func (svc *service) CheckConflicts(ctx context.Context, actor Actor, req CheckConflictsRequest) (ConflictReport, error) {
	date, err := ParseDate(req.NewDate)
	if err != nil {
		return ConflictReport{}, core.NewValidationError(errInvalidRequest, core.FieldError{Field: "new_date", Error: isoDateText})
	}
	var t TimeOfDay
	if strings.TrimSpace(req.NewTime) != "" {
		if t, err = ParseTimeOfDay(req.NewTime); err != nil {
			return ConflictReport{}, core.NewValidationError(errInvalidRequest, core.FieldError{Field: "new_time", Error: timeOfDayText})
		}
	}

	lec, course, err := svc.lectureWithCourse(ctx, req.LectureID)
	if err != nil {
		return ConflictReport{}, svc.trapErr(err, "checking conflicts", actor)
	}
	if !actor.CanViewSchedule(course) {
		return ConflictReport{}, ErrPermissionDenied
	}

	report, err := svc.conflicts.check(ctx, course, date, t, lec.ID)
	if err != nil {
		return ConflictReport{}, svc.trapErr(err, "checking conflicts", actor)
	}
	return report, nil
}

func (svc *service) CancelPostponement(ctx context.Context, actor Actor, lectureID string) (CancelResult, error) {
	var (
		res     CancelResult
		course  Course
		removed *Lecture
	)
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		res, removed = CancelResult{}, nil

		orig, crs, err := svc.lockLecture(ctx, lectureID, exec)
		if err != nil {
			return err
		}
		course = crs

		if !actor.CanCancelPostponement(course) {
			return ErrPermissionDenied
		}
		if !orig.Attendance.IsPostponed() {
			return ErrNotPostponed
		}

		makeup, err := svc.repo.GetMakeupFor(ctx, orig.ID, exec)
		switch {
		case errors.Is(err, ErrNotFound):
			// only the original to restore
		case err != nil:
			return errors.Wrap(err, "getting makeup lecture")
		case makeup.Attendance.IsHeld():
			return ErrMakeupAlreadyCompleted
		case makeup.Attendance.IsPostponed():
			return ErrMakeupPostponed
		default:
			if _, err = svc.repo.AddCourseLectures(ctx, course.ID, -1, exec); err != nil {
				return errors.Wrap(err, "decrementing course lectures")
			}
			if err = svc.repo.DeleteLecture(ctx, makeup.ID, exec); err != nil {
				return errors.Wrap(err, "deleting makeup lecture")
			}
			res.MakeupDeleted = true
			removed = &makeup
		}

		orig.Attendance = AttendancePending
		orig.Notes = nil
		orig.UpdatedAt = svc.now()
		if orig, err = svc.repo.UpdateLectureStatus(ctx, orig, exec); err != nil {
			return errors.Wrap(err, "restoring original lecture")
		}
		res.Lecture = orig
		return nil
	})
	if err != nil {
		return CancelResult{}, svc.trapErr(err, "cancelling postponement", actor)
	}

	n := Notice{
		Kind:             NoticeCancelled,
		CourseID:         course.ID,
		CourseTitle:      course.Title,
		OriginalSequence: res.Lecture.Sequence,
		OriginalDate:     res.Lecture.Date,
		Status:           res.Lecture.Attendance,
	}
	if removed != nil {
		n.MakeupSequence = removed.Sequence
		n.MakeupDate = removed.Date
		n.MakeupTime = removed.Time
	}
	svc.notify(ctx, actor, n, course.TrainerID)
	return res, nil
}

func (svc *service) PostponementStats(ctx context.Context, actor Actor, courseID string) (PostponementStats, error) {
	course, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return PostponementStats{}, svc.trapErr(err, "getting postponement stats", actor)
	}
	stats, err := svc.limits.stats(ctx, course.ID)
	if err != nil {
		return PostponementStats{}, svc.trapErr(err, "getting postponement stats", actor)
	}
	return stats, nil
}

func (svc *service) CheckLimit(ctx context.Context, courseID string) (LimitCheck, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return LimitCheck{}, svc.trapErr(errors.Wrap(err, "getting course"), "checking postponement limit", Anonymous())
	}
	limit, err := svc.limits.check(ctx, courseID)
	if err != nil {
		return LimitCheck{}, svc.trapErr(err, "checking postponement limit", Anonymous())
	}
	return limit, nil
}

func (svc *service) RecordAttendance(ctx context.Context, actor Actor, req AttendanceRequest) (Lecture, error) {
	if !req.Attendance.IsHeld() {
		return Lecture{}, core.NewValidationError(errInvalidRequest, core.FieldError{Field: "attendance", Error: attendanceText})
	}

	var lec Lecture
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		l, course, err := svc.lockLecture(ctx, req.LectureID, exec)
		if err != nil {
			return err
		}
		if !actor.CanRecordAttendance(course) {
			return ErrPermissionDenied
		}
		if !l.Attendance.CanTransitionTo(req.Attendance) {
			return ErrInvalidTransition
		}
		l.Attendance = req.Attendance
		l.UpdatedAt = svc.now()
		lec, err = svc.repo.UpdateLectureStatus(ctx, l, exec)
		return errors.Wrap(err, "updating lecture attendance")
	})
	if err != nil {
		return Lecture{}, svc.trapErr(err, "recording attendance", actor)
	}
	return lec, nil
}

func (svc *service) GenerateSchedule(ctx context.Context, actor Actor, req GenerateRequest) ([]Lecture, error) {
	start, err := ParseDate(req.StartDate)
	if err != nil {
		return nil, core.NewValidationError(errInvalidRequest, core.FieldError{Field: "start_date", Error: isoDateText})
	}
	if !actor.CanGenerateSchedule() {
		return nil, ErrPermissionDenied
	}

	var lectures []Lecture
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		course, err := svc.repo.LockCourse(ctx, req.CourseID, exec)
		if err != nil {
			return errors.Wrap(err, "locking course")
		}
		n, err := svc.repo.CountLectures(ctx, LectureFilter{CourseID: course.ID}, exec)
		if err != nil {
			return errors.Wrap(err, "counting lectures")
		}
		if n > 0 {
			return ErrScheduleExists
		}
		if !course.HasValidCadence() {
			return ErrInvalidCadence
		}

		now := svc.now()
		batch := make([]Lecture, 0, course.TotalLectures)
		for date, seq := start, 1; seq <= course.TotalLectures; date = date.AddDays(1) {
			if !course.HasWeekday(date.Weekday()) {
				continue
			}
			batch = append(batch, Lecture{
				CourseID:   course.ID,
				Sequence:   seq,
				Date:       date,
				Attendance: AttendancePending,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			seq++
		}
		lectures, err = svc.repo.CreateLectures(ctx, batch, exec)
		return errors.Wrap(err, "creating lectures")
	})
	if err != nil {
		return nil, svc.trapErr(err, "generating schedule", actor)
	}
	return lectures, nil
}

func (svc *service) GetLecture(ctx context.Context, actor Actor, id string) (Lecture, error) {
	lec, course, err := svc.lectureWithCourse(ctx, id)
	if err != nil {
		return Lecture{}, svc.trapErr(err, "getting lecture", actor)
	}
	if !actor.CanViewSchedule(course) {
		return Lecture{}, ErrPermissionDenied
	}
	return lec, nil
}

func (svc *service) ListLectures(ctx context.Context, actor Actor, courseID string, ordering []core.DBOrdering) ([]Lecture, error) {
	for _, ord := range ordering {
		if !isOrderingField(ord.Field) {
			return nil, core.NewValidationError(errInvalidRequest, core.FieldError{
				Field: "ordering",
				Error: "must be any of: " + strings.Join(LectureOrderingFields, ", "),
			})
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "sequence", Ascending: true}}
	}

	course, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return nil, svc.trapErr(err, "listing lectures", actor)
	}
	lectures, err := svc.repo.QueryLectures(ctx, LectureFilter{CourseID: course.ID}, ordering)
	if err != nil {
		return nil, svc.trapErr(errors.Wrap(err, "querying lectures"), "listing lectures", actor)
	}
	return lectures, nil
}

func (svc *service) ListPostponements(ctx context.Context, actor Actor, courseID string) ([]Postponement, error) {
	course, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return nil, svc.trapErr(err, "listing postponements", actor)
	}

	originals, err := svc.repo.QueryLectures(
		ctx,
		LectureFilter{CourseID: course.ID, Attendances: PostponedAttendances},
		[]core.DBOrdering{{Field: "sequence", Ascending: true}},
	)
	if err != nil {
		return nil, svc.trapErr(errors.Wrap(err, "querying postponed lectures"), "listing postponements", actor)
	}

	res := make([]Postponement, 0, len(originals))
	for _, orig := range originals {
		p := Postponement{Original: orig}
		makeup, err := svc.repo.GetMakeupFor(ctx, orig.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, svc.trapErr(errors.Wrap(err, "getting makeup lecture"), "listing postponements", actor)
		default:
			p.Makeup = &makeup
		}
		res = append(res, p)
	}
	return res, nil
}

func (svc *service) CompletedLectureCount(ctx context.Context, actor Actor, courseID string) (int, error) {
	course, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return 0, svc.trapErr(err, "counting completed lectures", actor)
	}
	n, err := svc.repo.CountLectures(ctx, LectureFilter{CourseID: course.ID, Attendances: HeldAttendances})
	if err != nil {
		return 0, svc.trapErr(errors.Wrap(err, "counting held lectures"), "counting completed lectures", actor)
	}
	return n, nil
}

func (svc *service) lectureWithCourse(ctx context.Context, id string) (Lecture, Course, error) {
	lec, err := svc.repo.GetLecture(ctx, id)
	if err != nil {
		return Lecture{}, Course{}, errors.Wrap(err, "getting lecture")
	}
	course, err := svc.repo.GetCourse(ctx, lec.CourseID)
	if err != nil {
		return Lecture{}, Course{}, errors.Wrap(err, "getting course")
	}
	return lec, course, nil
}

func (svc *service) viewableCourse(ctx context.Context, actor Actor, courseID string) (Course, error) {
	course, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, errors.Wrap(err, "getting course")
	}
	if !actor.CanViewSchedule(course) {
		return Course{}, ErrPermissionDenied
	}
	return course, nil
}

// notify sends n to the course's trainer. Failures are logged only.
func (svc *service) notify(ctx context.Context, actor Actor, n Notice, trainerID string) {
	trainer, err := svc.repo.GetTrainer(ctx, trainerID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("sending %s notice: getting trainer: %v", n.Kind, err), err, actor)
		return
	}
	n.Trainer = trainer
	if err = svc.notifier.Notify(ctx, n); err != nil {
		svc.logger.Warn(fmt.Sprintf("sending %s notice: %v", n.Kind, err), err, actor)
	}
}

func isOrderingField(f string) bool {
	for _, o := range LectureOrderingFields {
		if o == f {
			return true
		}
	}
	return false
}
