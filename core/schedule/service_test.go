package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/letsspeak/core"
	. "github.com/trezcool/letsspeak/core/schedule"
	"github.com/trezcool/letsspeak/storage/database/inmem"
	"github.com/trezcool/letsspeak/tests"
)

var (
	ctx = context.Background()
	now = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) sent() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

// failingRepository breaks AddCourseLectures, the last write of a postponement.
type failingRepository struct {
	Repository
}

func (failingRepository) AddCourseLectures(context.Context, string, int, ...core.DBExecutor) (Course, error) {
	return Course{}, errors.New("disk full")
}

type fixture struct {
	repo     Repository
	svc      Service
	logger   *testutil.Logger
	notifier *recordingNotifier
	trainer  Trainer
	course   Course
	lectures []Lecture // 8 pending lectures, every Monday from 2024-01-01
	owner    Actor
}

func setup(t *testing.T, wrap ...func(Repository) Repository) *fixture {
	db := inmemdb.Open()
	repo := inmemdb.NewScheduleRepository(db)

	f := &fixture{repo: repo, logger: testutil.NewLogger(), notifier: &recordingNotifier{}}
	f.trainer = testutil.CreateTrainer(t, repo, "Jane", "jane@test.test", 42)
	f.course = testutil.CreateCourse(t, repo, f.trainer.ID, "English B1", 8, "18:00", time.Monday)
	f.lectures = testutil.CreateLectures(t, repo, f.course.ID, "2024-01-01", 8)
	f.owner = TrainerActor("u-jane", f.trainer.ID)

	svcRepo := repo
	for _, w := range wrap {
		svcRepo = w(svcRepo)
	}
	f.svc = NewService(db, svcRepo, f.notifier, f.logger, Options{
		MaxPostponements:   3,
		DefaultLectureTime: "17:00",
		Clock:              func() time.Time { return now },
	})
	return f
}

func (f *fixture) lecture(t *testing.T, id string) Lecture {
	l, err := f.repo.GetLecture(ctx, id)
	require.NoError(t, err)
	return l
}

func (f *fixture) count(t *testing.T, courseID string) int {
	n, err := f.repo.CountLectures(ctx, LectureFilter{CourseID: courseID})
	require.NoError(t, err)
	return n
}

func (f *fixture) totalLectures(t *testing.T, courseID string) int {
	c, err := f.repo.GetCourse(ctx, courseID)
	require.NoError(t, err)
	return c.TotalLectures
}

func TestService_Postpone(t *testing.T) {
	f := setup(t)
	orig := f.lectures[2]

	res, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{
		LectureID:   orig.ID,
		NewDate:     "2024-03-04",
		PostponedBy: PostponedByTrainer,
		Reason:      "  Sick  ",
	})
	require.NoError(t, err)

	// original keeps its slot
	assert.Equal(t, AttendancePostponedByTrainer, res.OriginalLecture.Attendance)
	assert.Equal(t, orig.Date, res.OriginalLecture.Date)
	assert.Equal(t, orig.Sequence, res.OriginalLecture.Sequence)
	require.NotNil(t, res.OriginalLecture.Notes)
	assert.Equal(t, "Sick", *res.OriginalLecture.Notes)

	mk := res.NewLecture
	assert.Equal(t, 9, mk.Sequence)
	assert.Equal(t, Date("2024-03-04"), mk.Date)
	assert.Equal(t, TimeOfDay("18:00"), mk.Time, "makeup falls back to the course default time")
	assert.Equal(t, AttendancePending, mk.Attendance)
	assert.True(t, mk.IsMakeup)
	assert.Equal(t, orig.ID, mk.MakeupFor)
	require.NotNil(t, mk.Notes)
	assert.Equal(t, "Makeup for lecture #3", *mk.Notes)
	assert.Empty(t, res.OverriddenConflicts)

	assert.Equal(t, 9, f.count(t, f.course.ID))
	assert.Equal(t, 9, f.totalLectures(t, f.course.ID))
	assert.Equal(t, AttendancePostponedByTrainer, f.lecture(t, orig.ID).Attendance)

	notices := f.notifier.sent()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticePostponed, notices[0].Kind)
	assert.Equal(t, f.trainer.ID, notices[0].Trainer.ID)
	assert.Equal(t, 3, notices[0].OriginalSequence)
	assert.Equal(t, 9, notices[0].MakeupSequence)
	assert.Equal(t, "Sick", notices[0].Reason)
}

func TestService_Postpone_statusAndTime(t *testing.T) {
	tests := []struct {
		name       string
		by         PostponedBy
		lectureTod TimeOfDay
		courseTod  TimeOfDay
		newTime    string
		wantStatus Attendance
		wantTime   TimeOfDay
	}{
		{name: "student, new time", by: PostponedByStudent, courseTod: "18:00", newTime: "10:30", wantStatus: AttendancePostponedByStudent, wantTime: "10:30"},
		{name: "holiday, lecture time", by: PostponedByHoliday, lectureTod: "09:00", courseTod: "18:00", wantStatus: AttendancePostponedHoliday, wantTime: "09:00"},
		{name: "admin, course time", by: PostponedByAdmin, courseTod: "18:00", wantStatus: AttendancePostponedByTrainer, wantTime: "18:00"},
		{name: "customer service, configured time", by: PostponedByCustomerService, wantStatus: AttendancePostponedByTrainer, wantTime: "17:00"},
		{name: "seconds are dropped", by: PostponedByTrainer, newTime: "07:15:00", wantStatus: AttendancePostponedByTrainer, wantTime: "07:15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			course := testutil.CreateCourse(t, f.repo, f.trainer.ID, "Business English", 1, tt.courseTod, time.Tuesday)
			lec := testutil.CreateLecture(t, f.repo, course.ID, 1, "2024-01-02", tt.lectureTod, AttendancePending)

			res, err := f.svc.Postpone(ctx, AdminActor("u-admin"), PostponeRequest{
				LectureID:   lec.ID,
				NewDate:     "2024-05-07",
				NewTime:     tt.newTime,
				PostponedBy: tt.by,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.OriginalLecture.Attendance)
			assert.Equal(t, tt.wantTime, res.NewLecture.Time)
			assert.Nil(t, res.OriginalLecture.Notes, "empty reason leaves notes empty")
		})
	}
}

func TestService_Postpone_validation(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name       string
		req        PostponeRequest
		wantFields []string
	}{
		{name: "bad date", req: PostponeRequest{NewDate: "04/03/2024", PostponedBy: PostponedByTrainer}, wantFields: []string{"new_date"}},
		{name: "bad time", req: PostponeRequest{NewDate: "2024-03-04", NewTime: "25:00", PostponedBy: PostponedByTrainer}, wantFields: []string{"new_time"}},
		{name: "bad party", req: PostponeRequest{NewDate: "2024-03-04", PostponedBy: "weather"}, wantFields: []string{"postponed_by"}},
		{name: "all wrong", req: PostponeRequest{}, wantFields: []string{"new_date", "postponed_by"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.LectureID = f.lectures[0].ID
			_, err := f.svc.Postpone(ctx, f.owner, tt.req)

			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "want a validation error, got %v", err)
			flds := make([]string, 0, len(vErr.Fields))
			for _, fld := range vErr.Fields {
				flds = append(flds, fld.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, flds)
		})
	}
	assert.Equal(t, AttendancePending, f.lecture(t, f.lectures[0].ID).Attendance)
}

func TestService_Postpone_rejections(t *testing.T) {
	f := setup(t)

	held, err := f.svc.RecordAttendance(ctx, f.owner, AttendanceRequest{LectureID: f.lectures[0].ID, Attendance: AttendancePresent})
	require.NoError(t, err)

	postponed, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[1].ID, NewDate: "2024-03-04", PostponedBy: PostponedByTrainer})
	require.NoError(t, err)

	otherTrainer := testutil.CreateTrainer(t, f.repo, "Bob", "bob@test.test")

	tests := []struct {
		name    string
		actor   Actor
		id      string
		wantErr error
	}{
		{name: "unknown lecture", actor: f.owner, id: "nope", wantErr: ErrNotFound},
		{name: "held lecture", actor: f.owner, id: held.ID, wantErr: ErrCannotPostpone},
		{name: "already postponed", actor: f.owner, id: postponed.OriginalLecture.ID, wantErr: ErrCannotPostpone},
		{name: "other trainer", actor: TrainerActor("u-bob", otherTrainer.ID), id: f.lectures[2].ID, wantErr: ErrPermissionDenied},
		{name: "finance", actor: FinanceActor("u-fin"), id: f.lectures[2].ID, wantErr: ErrPermissionDenied},
		{name: "anonymous", actor: Anonymous(), id: f.lectures[2].ID, wantErr: ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Postpone(ctx, tt.actor, PostponeRequest{LectureID: tt.id, NewDate: "2024-04-01", PostponedBy: PostponedByTrainer})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// nothing else moved
	assert.Equal(t, 9, f.count(t, f.course.ID))
	assert.Equal(t, AttendancePresent, f.lecture(t, held.ID).Attendance)
	assert.Equal(t, AttendancePending, f.lecture(t, f.lectures[2].ID).Attendance)
	assert.Empty(t, f.logger.Entries("error"), "expected outcomes are not logged as errors")
}

func TestService_Postpone_limit(t *testing.T) {
	f := setup(t)

	dates := []string{"2024-03-04", "2024-03-11", "2024-03-18"}
	for i, d := range dates {
		_, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[i].ID, NewDate: d, PostponedBy: PostponedByStudent})
		require.NoError(t, err)
	}

	limit, err := f.svc.CheckLimit(ctx, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, LimitCheck{Allowed: false, Current: 3, Max: 3}, limit)

	_, err = f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[3].ID, NewDate: "2024-03-25", PostponedBy: PostponedByStudent})
	assert.ErrorIs(t, err, ErrMaxPostponementsReached)
	assert.Equal(t, AttendancePending, f.lecture(t, f.lectures[3].ID).Attendance)
	assert.Equal(t, 11, f.count(t, f.course.ID))

	stats, err := f.svc.PostponementStats(ctx, FinanceActor("u-fin"), f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, PostponementStats{
		CourseID:              f.course.ID,
		TotalPostponements:    3,
		MakeupLecturesCreated: 3,
		MaxAllowed:            3,
		Remaining:             0,
		CanPostpone:           false,
	}, stats)

	// cancelling frees a slot
	_, err = f.svc.CancelPostponement(ctx, f.owner, f.lectures[0].ID)
	require.NoError(t, err)
	_, err = f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[3].ID, NewDate: "2024-03-25", PostponedBy: PostponedByStudent})
	assert.NoError(t, err)
}

func TestService_Postpone_conflicts(t *testing.T) {
	f := setup(t)

	// same trainer, another course, on the target slot
	other := testutil.CreateCourse(t, f.repo, f.trainer.ID, "Spanish A2", 2, "18:00", time.Monday)
	busy := testutil.CreateLecture(t, f.repo, other.ID, 1, "2024-03-04", "", AttendancePending)
	testutil.CreateLecture(t, f.repo, other.ID, 2, "2024-03-11", "18:00", AttendancePostponedHoliday)

	// another trainer on the same slot never conflicts
	bob := testutil.CreateTrainer(t, f.repo, "Bob", "bob@test.test")
	bobCourse := testutil.CreateCourse(t, f.repo, bob.ID, "German A1", 1, "18:00", time.Monday)
	testutil.CreateLecture(t, f.repo, bobCourse.ID, 1, "2024-03-18", "", AttendancePending)

	lec := f.lectures[0]
	req := PostponeRequest{LectureID: lec.ID, NewDate: "2024-03-04", NewTime: "18:00", PostponedBy: PostponedByTrainer}

	_, err := f.svc.Postpone(ctx, f.owner, req)
	require.ErrorIs(t, err, ErrTimeConflict)
	var cErr *TimeConflictError
	require.True(t, errors.As(err, &cErr))
	require.Len(t, cErr.Conflicts, 1)
	assert.Equal(t, Conflict{LectureID: busy.ID, CourseID: other.ID, CourseTitle: "Spanish A2", Date: "2024-03-04", Time: "18:00"}, cErr.Conflicts[0])

	// trainers cannot force
	req.Force = true
	_, err = f.svc.Postpone(ctx, f.owner, req)
	assert.ErrorIs(t, err, ErrTimeConflict)
	assert.Equal(t, AttendancePending, f.lecture(t, lec.ID).Attendance)
	assert.Equal(t, 8, f.count(t, f.course.ID))

	// free slots
	for _, free := range []PostponeRequest{
		{LectureID: f.lectures[1].ID, NewDate: "2024-03-04", NewTime: "10:00", PostponedBy: PostponedByTrainer},
		{LectureID: f.lectures[2].ID, NewDate: "2024-03-11", NewTime: "18:00", PostponedBy: PostponedByTrainer},
	} {
		_, err = f.svc.Postpone(ctx, f.owner, free)
		assert.NoError(t, err, free.NewDate)
	}
	report, err := f.svc.CheckConflicts(ctx, f.owner, CheckConflictsRequest{LectureID: f.lectures[3].ID, NewDate: "2024-03-18", NewTime: "18:00"})
	require.NoError(t, err)
	assert.False(t, report.HasConflict)

	// staff can force
	cs := CustomerServiceActor("u-cs")
	req.LectureID = f.lectures[4].ID
	res, err := f.svc.Postpone(ctx, cs, req)
	require.NoError(t, err)
	assert.Len(t, res.OverriddenConflicts, 1)
	assert.Equal(t, Date("2024-03-04"), res.NewLecture.Date)

	warnings := f.logger.Entries("warn")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Args, cs)
}

func TestService_CheckConflicts(t *testing.T) {
	f := setup(t)
	other := testutil.CreateCourse(t, f.repo, f.trainer.ID, "Spanish A2", 1, "", time.Monday)
	morning := testutil.CreateLecture(t, f.repo, other.ID, 1, "2024-01-08", "09:00", AttendancePending)

	tests := []struct {
		name     string
		actor    Actor
		req      CheckConflictsRequest
		wantIDs  []string
		wantErr  error
		wantMsg  string
		validErr bool
	}{
		{
			name:    "lecture never conflicts with itself",
			actor:   f.owner,
			req:     CheckConflictsRequest{LectureID: f.lectures[0].ID, NewDate: "2024-01-01", NewTime: "18:00"},
			wantMsg: "No conflicts found",
		},
		{
			name:    "same day, other time",
			actor:   f.owner,
			req:     CheckConflictsRequest{LectureID: f.lectures[0].ID, NewDate: "2024-01-08", NewTime: "12:00"},
			wantMsg: "No conflicts found",
		},
		{
			name:    "whole day",
			actor:   FinanceActor("u-fin"),
			req:     CheckConflictsRequest{LectureID: f.lectures[0].ID, NewDate: "2024-01-08"},
			wantIDs: []string{f.lectures[1].ID, morning.ID},
			wantMsg: "Trainer already has 2 lecture(s) scheduled at this time",
		},
		{
			name:    "default time",
			actor:   f.owner,
			req:     CheckConflictsRequest{LectureID: f.lectures[0].ID, NewDate: "2024-01-08", NewTime: "18:00"},
			wantIDs: []string{f.lectures[1].ID},
			wantMsg: "Trainer already has 1 lecture(s) scheduled at this time",
		},
		{name: "anonymous", actor: Anonymous(), req: CheckConflictsRequest{LectureID: f.lectures[0].ID, NewDate: "2024-01-08"}, wantErr: ErrPermissionDenied},
		{name: "unknown lecture", actor: f.owner, req: CheckConflictsRequest{LectureID: "nope", NewDate: "2024-01-08"}, wantErr: ErrNotFound},
		{name: "bad date", actor: f.owner, req: CheckConflictsRequest{LectureID: f.lectures[0].ID, NewDate: "2024-13-01"}, validErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := f.svc.CheckConflicts(ctx, tt.actor, tt.req)
			if tt.validErr {
				var vErr *core.ValidationError
				assert.True(t, errors.As(err, &vErr))
				return
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.wantIDs) > 0, report.HasConflict)
			assert.Equal(t, tt.wantMsg, report.Message)
			assert.NotNil(t, report.Conflicts)

			ids := make([]string, 0, len(report.Conflicts))
			for _, c := range report.Conflicts {
				ids = append(ids, c.LectureID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestService_CancelPostponement(t *testing.T) {
	f := setup(t)
	orig := f.lectures[4]

	res, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: orig.ID, NewDate: "2024-03-04", PostponedBy: PostponedByStudent, Reason: "exams"})
	require.NoError(t, err)
	makeupID := res.NewLecture.ID

	cancelled, err := f.svc.CancelPostponement(ctx, f.owner, orig.ID)
	require.NoError(t, err)
	assert.True(t, cancelled.MakeupDeleted)
	assert.Equal(t, AttendancePending, cancelled.Lecture.Attendance)
	assert.Nil(t, cancelled.Lecture.Notes)
	assert.Equal(t, orig.Date, cancelled.Lecture.Date)

	_, err = f.repo.GetLecture(ctx, makeupID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 8, f.count(t, f.course.ID))
	assert.Equal(t, 8, f.totalLectures(t, f.course.ID))

	notices := f.notifier.sent()
	require.Len(t, notices, 2)
	assert.Equal(t, NoticeCancelled, notices[1].Kind)
	assert.Equal(t, 9, notices[1].MakeupSequence)

	// the next makeup reuses the freed sequence
	res, err = f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: orig.ID, NewDate: "2024-03-11", PostponedBy: PostponedByStudent})
	require.NoError(t, err)
	assert.Equal(t, 9, res.NewLecture.Sequence)
}

func TestService_CancelPostponement_rejections(t *testing.T) {
	f := setup(t)

	// makeup held
	res, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[0].ID, NewDate: "2024-03-04", PostponedBy: PostponedByTrainer})
	require.NoError(t, err)
	_, err = f.svc.RecordAttendance(ctx, f.owner, AttendanceRequest{LectureID: res.NewLecture.ID, Attendance: AttendanceExcused})
	require.NoError(t, err)

	// makeup postponed in turn
	res2, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[1].ID, NewDate: "2024-03-11", PostponedBy: PostponedByTrainer})
	require.NoError(t, err)
	_, err = f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: res2.NewLecture.ID, NewDate: "2024-03-18", PostponedBy: PostponedByTrainer})
	require.NoError(t, err)

	bob := testutil.CreateTrainer(t, f.repo, "Bob", "")

	tests := []struct {
		name    string
		actor   Actor
		id      string
		wantErr error
	}{
		{name: "makeup held", actor: f.owner, id: f.lectures[0].ID, wantErr: ErrMakeupAlreadyCompleted},
		{name: "makeup postponed", actor: f.owner, id: f.lectures[1].ID, wantErr: ErrMakeupPostponed},
		{name: "not postponed", actor: f.owner, id: f.lectures[2].ID, wantErr: ErrNotPostponed},
		{name: "unknown", actor: f.owner, id: "nope", wantErr: ErrNotFound},
		{name: "other trainer", actor: TrainerActor("u-bob", bob.ID), id: f.lectures[1].ID, wantErr: ErrPermissionDenied},
		{name: "finance", actor: FinanceActor("u-fin"), id: f.lectures[1].ID, wantErr: ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CancelPostponement(ctx, tt.actor, tt.id)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, AttendancePostponedByTrainer, f.lecture(t, f.lectures[0].ID).Attendance)
	assert.Equal(t, 11, f.count(t, f.course.ID))
}

func TestService_CancelPostponement_withoutMakeup(t *testing.T) {
	f := setup(t)
	lec := testutil.CreateLecture(t, f.repo, f.course.ID, 9, "2024-02-26", "", AttendancePostponedHoliday)

	res, err := f.svc.CancelPostponement(ctx, CustomerServiceActor("u-cs"), lec.ID)
	require.NoError(t, err)
	assert.False(t, res.MakeupDeleted)
	assert.Equal(t, AttendancePending, res.Lecture.Attendance)
	assert.Equal(t, 8, f.totalLectures(t, f.course.ID))
}

func TestService_rollback(t *testing.T) {
	f := setup(t, func(r Repository) Repository { return failingRepository{Repository: r} })
	orig := f.lectures[0]

	_, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: orig.ID, NewDate: "2024-03-04", PostponedBy: PostponedByTrainer})
	require.ErrorIs(t, err, ErrTransactionFailure)
	assert.Equal(t, "transaction_failure", ErrorCode(err))

	assert.Equal(t, AttendancePending, f.lecture(t, orig.ID).Attendance)
	assert.Nil(t, f.lecture(t, orig.ID).Notes)
	assert.Equal(t, 8, f.count(t, f.course.ID))
	_, err = f.repo.GetMakeupFor(ctx, orig.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, f.logger.Entries("error"), 1)
	assert.Empty(t, f.notifier.sent())
}

func TestService_rollback_forcedOverride(t *testing.T) {
	f := setup(t, func(r Repository) Repository { return failingRepository{Repository: r} })
	other := testutil.CreateCourse(t, f.repo, f.trainer.ID, "Spanish A2", 1, "18:00", time.Monday)
	testutil.CreateLecture(t, f.repo, other.ID, 1, "2024-03-04", "", AttendancePending)

	_, err := f.svc.Postpone(ctx, AdminActor("u-admin"), PostponeRequest{
		LectureID:   f.lectures[0].ID,
		NewDate:     "2024-03-04",
		NewTime:     "18:00",
		PostponedBy: PostponedByAdmin,
		Force:       true,
	})
	require.ErrorIs(t, err, ErrTransactionFailure)

	assert.Empty(t, f.logger.Entries("warn"))
	assert.Equal(t, AttendancePending, f.lecture(t, f.lectures[0].ID).Attendance)
}

func TestService_notifyFailureIsLogged(t *testing.T) {
	f := setup(t)
	f.notifier.err = errors.New("smtp down")

	_, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[0].ID, NewDate: "2024-03-04", PostponedBy: PostponedByTrainer})
	require.NoError(t, err)
	assert.Len(t, f.logger.Entries("warn"), 1)
}

func TestService_Postpone_concurrent(t *testing.T) {
	f := setup(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := range f.lectures {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{
				LectureID:   f.lectures[i].ID,
				NewDate:     string(Date("2024-06-03").AddDays(7 * i)),
				PostponedBy: PostponedByTrainer,
			})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrMaxPostponementsReached):
			limited++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 5, limited)
	assert.Equal(t, 11, f.count(t, f.course.ID))
	assert.Equal(t, 11, f.totalLectures(t, f.course.ID))
}

func TestService_Postpone_concurrentSameSlot(t *testing.T) {
	f := setup(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Postpone(ctx, f.owner, PostponeRequest{
				LectureID:   f.lectures[i].ID,
				NewDate:     "2024-06-03",
				NewTime:     "18:00",
				PostponedBy: PostponedByTrainer,
			})
		}(i)
	}
	wg.Wait()

	var conflicts int
	for _, err := range errs {
		if errors.Is(err, ErrTimeConflict) {
			conflicts++
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 1, conflicts, "only one lecture may take the slot")
}

func TestService_RecordAttendance(t *testing.T) {
	f := setup(t)

	postponed, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[7].ID, NewDate: "2024-03-04", PostponedBy: PostponedByTrainer})
	require.NoError(t, err)

	lec, err := f.svc.RecordAttendance(ctx, f.owner, AttendanceRequest{LectureID: f.lectures[0].ID, Attendance: AttendancePartially})
	require.NoError(t, err)
	assert.Equal(t, AttendancePartially, lec.Attendance)
	assert.Equal(t, now, lec.UpdatedAt)

	tests := []struct {
		name     string
		actor    Actor
		req      AttendanceRequest
		wantErr  error
		validErr bool
	}{
		{name: "held is final", actor: f.owner, req: AttendanceRequest{LectureID: f.lectures[0].ID, Attendance: AttendanceAbsent}, wantErr: ErrInvalidTransition},
		{name: "postponed", actor: f.owner, req: AttendanceRequest{LectureID: postponed.OriginalLecture.ID, Attendance: AttendancePresent}, wantErr: ErrInvalidTransition},
		{name: "finance", actor: FinanceActor("u-fin"), req: AttendanceRequest{LectureID: f.lectures[1].ID, Attendance: AttendancePresent}, wantErr: ErrPermissionDenied},
		{name: "not a held state", actor: f.owner, req: AttendanceRequest{LectureID: f.lectures[1].ID, Attendance: AttendancePostponedByTrainer}, validErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordAttendance(ctx, tt.actor, tt.req)
			if tt.validErr {
				var vErr *core.ValidationError
				assert.True(t, errors.As(err, &vErr))
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	n, err := f.svc.CompletedLectureCount(ctx, FinanceActor("u-fin"), f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_GenerateSchedule(t *testing.T) {
	f := setup(t)
	admin := AdminActor("u-admin")

	course := testutil.CreateCourse(t, f.repo, f.trainer.ID, "French A1", 5, "", time.Monday, time.Wednesday)
	lectures, err := f.svc.GenerateSchedule(ctx, admin, GenerateRequest{CourseID: course.ID, StartDate: "2024-01-02"})
	require.NoError(t, err)

	dates := make([]Date, 0, len(lectures))
	for i, l := range lectures {
		assert.Equal(t, i+1, l.Sequence)
		assert.Equal(t, AttendancePending, l.Attendance)
		dates = append(dates, l.Date)
	}
	assert.Equal(t, []Date{"2024-01-03", "2024-01-08", "2024-01-10", "2024-01-15", "2024-01-17"}, dates)

	_, err = f.svc.GenerateSchedule(ctx, admin, GenerateRequest{CourseID: course.ID, StartDate: "2024-01-02"})
	assert.ErrorIs(t, err, ErrScheduleExists)

	noCadence := testutil.CreateCourse(t, f.repo, f.trainer.ID, "Italian A1", 3, "")
	_, err = f.svc.GenerateSchedule(ctx, admin, GenerateRequest{CourseID: noCadence.ID, StartDate: "2024-01-02"})
	assert.ErrorIs(t, err, ErrInvalidCadence)

	badCadence := testutil.CreateCourse(t, f.repo, f.trainer.ID, "Dutch A1", 3, "", time.Weekday(9))
	_, err = f.svc.GenerateSchedule(ctx, admin, GenerateRequest{CourseID: badCadence.ID, StartDate: "2024-01-02"})
	assert.ErrorIs(t, err, ErrInvalidCadence)
	assert.Zero(t, f.count(t, badCadence.ID))

	_, err = f.svc.GenerateSchedule(ctx, f.owner, GenerateRequest{CourseID: noCadence.ID, StartDate: "2024-01-02"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.GenerateSchedule(ctx, admin, GenerateRequest{CourseID: "nope", StartDate: "2024-01-02"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_listing(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Postpone(ctx, f.owner, PostponeRequest{LectureID: f.lectures[1].ID, NewDate: "2024-03-04", PostponedBy: PostponedByTrainer})
	require.NoError(t, err)

	lectures, err := f.svc.ListLectures(ctx, f.owner, f.course.ID, nil)
	require.NoError(t, err)
	require.Len(t, lectures, 9)
	for i, l := range lectures {
		assert.Equal(t, i+1, l.Sequence)
	}

	lectures, err = f.svc.ListLectures(ctx, f.owner, f.course.ID, []core.DBOrdering{{Field: "date", Ascending: false}})
	require.NoError(t, err)
	assert.Equal(t, res.NewLecture.ID, lectures[0].ID)

	_, err = f.svc.ListLectures(ctx, f.owner, f.course.ID, []core.DBOrdering{{Field: "notes"}})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	postponements, err := f.svc.ListPostponements(ctx, CustomerServiceActor("u-cs"), f.course.ID)
	require.NoError(t, err)
	require.Len(t, postponements, 1)
	assert.Equal(t, f.lectures[1].ID, postponements[0].Original.ID)
	require.NotNil(t, postponements[0].Makeup)
	assert.Equal(t, res.NewLecture.ID, postponements[0].Makeup.ID)

	got, err := f.svc.GetLecture(ctx, FinanceActor("u-fin"), res.NewLecture.ID)
	require.NoError(t, err)
	assert.Equal(t, res.NewLecture.ID, got.ID)

	_, err = f.svc.GetLecture(ctx, Anonymous(), res.NewLecture.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.ListLectures(ctx, f.owner, "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
