package testutil

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
)

// RunScheduleRepositoryTests checks the behaviour every schedule.Repository must share.
// newRepo must return a repository backed by an empty store.
func RunScheduleRepositoryTests(t *testing.T, newRepo func(t *testing.T) schedule.Repository) {
	ctx := context.Background()

	t.Run("trainers", func(t *testing.T) {
		repo := newRepo(t)
		tr := CreateTrainer(t, repo, "Jane", "jane@test.test", 42)

		got, err := repo.GetTrainer(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jane", got.Name)
		assert.Equal(t, "jane@test.test", got.Email)
		assert.Equal(t, int64(42), got.TelegramChatID)
		assert.True(t, got.IsActive)

		_, err = repo.GetTrainer(ctx, uuid.New().String())
		assert.ErrorIs(t, err, schedule.ErrNotFound)
		_, err = repo.GetTrainer(ctx, "nope")
		assert.ErrorIs(t, err, schedule.ErrNotFound)
	})

	t.Run("courses", func(t *testing.T) {
		repo := newRepo(t)
		tr := CreateTrainer(t, repo, "Jane", "")
		c := CreateCourse(t, repo, tr.ID, "English B1", 8, "18:00", time.Monday, time.Wednesday)

		got, err := repo.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "English B1", got.Title)
		assert.Equal(t, tr.ID, got.TrainerID)
		assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, got.Weekdays)
		assert.Equal(t, schedule.TimeOfDay("18:00"), got.DefaultTime)
		assert.Equal(t, schedule.CourseStatusActive, got.Status)

		locked, err := repo.LockCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, locked.ID)

		got, err = repo.AddCourseLectures(ctx, c.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 9, got.TotalLectures)
		got, err = repo.AddCourseLectures(ctx, c.ID, -2)
		require.NoError(t, err)
		assert.Equal(t, 7, got.TotalLectures)

		_, err = repo.GetCourse(ctx, uuid.New().String())
		assert.ErrorIs(t, err, schedule.ErrNotFound)
		_, err = repo.LockCourse(ctx, uuid.New().String())
		assert.ErrorIs(t, err, schedule.ErrNotFound)
		_, err = repo.AddCourseLectures(ctx, uuid.New().String(), 1)
		assert.ErrorIs(t, err, schedule.ErrNotFound)
	})

	t.Run("lectures", func(t *testing.T) {
		repo := newRepo(t)
		tr := CreateTrainer(t, repo, "Jane", "")
		c := CreateCourse(t, repo, tr.ID, "English B1", 4, "18:00", time.Monday)
		lectures := CreateLectures(t, repo, c.ID, "2024-01-01", 4)

		got, err := repo.GetLecture(ctx, lectures[1].ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Sequence)
		assert.Equal(t, schedule.Date("2024-01-08"), got.Date)
		assert.Equal(t, schedule.AttendancePending, got.Attendance)
		assert.Nil(t, got.Notes)
		assert.False(t, got.IsMakeup)

		_, err = repo.GetLecture(ctx, uuid.New().String())
		assert.ErrorIs(t, err, schedule.ErrNotFound)

		_, err = repo.CreateLectures(ctx, []schedule.Lecture{{CourseID: c.ID, Sequence: 2, Date: "2024-05-06"}})
		assert.Error(t, err, "duplicate sequence")

		maxSeq, err := repo.MaxSequence(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, maxSeq)

		empty := CreateCourse(t, repo, tr.ID, "Spanish A2", 0, "")
		maxSeq, err = repo.MaxSequence(ctx, empty.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, maxSeq)

		byDate, err := repo.QueryLectures(ctx, schedule.LectureFilter{CourseID: c.ID}, []core.DBOrdering{{Field: "date"}})
		require.NoError(t, err)
		require.Len(t, byDate, 4)
		assert.Equal(t, schedule.Date("2024-01-22"), byDate[0].Date)
		assert.Equal(t, schedule.Date("2024-01-01"), byDate[3].Date)
	})

	t.Run("status updates and makeups", func(t *testing.T) {
		repo := newRepo(t)
		tr := CreateTrainer(t, repo, "Jane", "")
		c := CreateCourse(t, repo, tr.ID, "English B1", 4, "18:00", time.Monday)
		lectures := CreateLectures(t, repo, c.ID, "2024-01-01", 4)

		notes := "sick"
		orig := lectures[0]
		orig.Attendance = schedule.AttendancePostponedByTrainer
		orig.Notes = &notes
		orig.Date = "2030-01-01" // only attendance and notes are written
		updated, err := repo.UpdateLectureStatus(ctx, orig)
		require.NoError(t, err)
		assert.Equal(t, schedule.AttendancePostponedByTrainer, updated.Attendance)
		require.NotNil(t, updated.Notes)
		assert.Equal(t, "sick", *updated.Notes)
		assert.Equal(t, schedule.Date("2024-01-01"), updated.Date)

		_, err = repo.GetMakeupFor(ctx, orig.ID)
		assert.ErrorIs(t, err, schedule.ErrNotFound)

		makeupNotes := "Makeup for lecture #1"
		created, err := repo.CreateLectures(ctx, []schedule.Lecture{{
			CourseID:   c.ID,
			Sequence:   5,
			Date:       "2024-02-05",
			Time:       "10:00",
			Attendance: schedule.AttendancePending,
			IsMakeup:   true,
			MakeupFor:  orig.ID,
			Notes:      &makeupNotes,
		}})
		require.NoError(t, err)
		makeup := created[0]

		got, err := repo.GetMakeupFor(ctx, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, makeup.ID, got.ID)
		assert.Equal(t, schedule.TimeOfDay("10:00"), got.Time)
		assert.True(t, got.IsMakeup)

		_, err = repo.CreateLectures(ctx, []schedule.Lecture{{CourseID: c.ID, Sequence: 6, Date: "2024-02-12", IsMakeup: true, MakeupFor: orig.ID}})
		assert.Error(t, err, "second makeup")

		postponed, err := repo.CountLectures(ctx, schedule.LectureFilter{CourseID: c.ID, Attendances: schedule.PostponedAttendances})
		require.NoError(t, err)
		assert.Equal(t, 1, postponed)

		isMakeup := true
		makeups, err := repo.QueryLectures(ctx, schedule.LectureFilter{CourseID: c.ID, IsMakeup: &isMakeup}, nil)
		require.NoError(t, err)
		require.Len(t, makeups, 1)
		assert.Equal(t, makeup.ID, makeups[0].ID)

		pending, err := repo.CountLectures(ctx, schedule.LectureFilter{CourseID: c.ID, Attendances: []schedule.Attendance{schedule.AttendancePending}})
		require.NoError(t, err)
		assert.Equal(t, 4, pending)

		require.NoError(t, repo.DeleteLecture(ctx, makeup.ID))
		_, err = repo.GetLecture(ctx, makeup.ID)
		assert.ErrorIs(t, err, schedule.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteLecture(ctx, makeup.ID), schedule.ErrNotFound)

		_, err = repo.UpdateLectureStatus(ctx, schedule.Lecture{ID: uuid.New().String(), Attendance: schedule.AttendancePresent})
		assert.ErrorIs(t, err, schedule.ErrNotFound)
	})

	t.Run("conflicts", func(t *testing.T) {
		repo := newRepo(t)
		jane := CreateTrainer(t, repo, "Jane", "")
		bob := CreateTrainer(t, repo, "Bob", "")
		english := CreateCourse(t, repo, jane.ID, "English B1", 0, "18:00")
		spanish := CreateCourse(t, repo, jane.ID, "Spanish A2", 0, "")
		german := CreateCourse(t, repo, bob.ID, "German A1", 0, "18:00")

		byDefault := CreateLecture(t, repo, english.ID, 1, "2024-03-04", "", schedule.AttendancePending)
		atTen := CreateLecture(t, repo, spanish.ID, 1, "2024-03-04", "10:00", schedule.AttendancePresent)
		CreateLecture(t, repo, spanish.ID, 2, "2024-03-04", "18:00", schedule.AttendancePostponedHoliday)
		CreateLecture(t, repo, german.ID, 1, "2024-03-04", "18:00", schedule.AttendancePending)
		CreateLecture(t, repo, english.ID, 2, "2024-03-05", "18:00", schedule.AttendancePending)

		tests := []struct {
			name  string
			query schedule.ConflictQuery
			want  []schedule.Conflict
		}{
			{
				name:  "default time",
				query: schedule.ConflictQuery{TrainerID: jane.ID, Date: "2024-03-04", Time: "18:00"},
				want: []schedule.Conflict{
					{LectureID: byDefault.ID, CourseID: english.ID, CourseTitle: "English B1", Date: "2024-03-04", Time: "18:00"},
				},
			},
			{
				name:  "whole day",
				query: schedule.ConflictQuery{TrainerID: jane.ID, Date: "2024-03-04"},
				want: []schedule.Conflict{
					{LectureID: atTen.ID, CourseID: spanish.ID, CourseTitle: "Spanish A2", Date: "2024-03-04", Time: "10:00"},
					{LectureID: byDefault.ID, CourseID: english.ID, CourseTitle: "English B1", Date: "2024-03-04", Time: "18:00"},
				},
			},
			{
				name:  "excluded",
				query: schedule.ConflictQuery{TrainerID: jane.ID, Date: "2024-03-04", Time: "18:00", ExcludeLectureID: byDefault.ID},
				want:  []schedule.Conflict{},
			},
			{
				name:  "free slot",
				query: schedule.ConflictQuery{TrainerID: jane.ID, Date: "2024-03-04", Time: "12:00"},
				want:  []schedule.Conflict{},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.FindConflicts(ctx, tt.query)
				require.NoError(t, err)
				sort.Slice(got, func(i, j int) bool { return got[i].Time < got[j].Time })
				assert.Equal(t, tt.want, got)
			})
		}
	})
}
