package inmemdb

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
)

var (
	errDuplicateSequence = errors.New("duplicate lecture sequence for course")
	errDuplicateMakeup   = errors.New("lecture already has a makeup")
	errUnknownCourse     = errors.New("course does not exist")
	errUnknownTrainer    = errors.New("trainer does not exist")
)

type scheduleRepository struct {
	db *DB
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *DB) schedule.Repository {
	return &scheduleRepository{db: db}
}

func (repo *scheduleRepository) CreateTrainer(_ context.Context, t schedule.Trainer, _ ...core.DBExecutor) (schedule.Trainer, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt, t.UpdatedAt = stamp(t.CreatedAt), stamp(t.UpdatedAt)
	repo.db.trainer[t.ID] = t
	return t, nil
}

func (repo *scheduleRepository) GetTrainer(_ context.Context, id string, _ ...core.DBExecutor) (schedule.Trainer, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.trainer[id]; ok {
		return t, nil
	}
	return schedule.Trainer{}, schedule.ErrNotFound
}

func (repo *scheduleRepository) CreateCourse(_ context.Context, c schedule.Course, _ ...core.DBExecutor) (schedule.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.trainer[c.TrainerID]; !ok {
		return schedule.Course{}, errUnknownTrainer
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = schedule.CourseStatusActive
	}
	c.Weekdays = append([]time.Weekday(nil), c.Weekdays...)
	c.CreatedAt, c.UpdatedAt = stamp(c.CreatedAt), stamp(c.UpdatedAt)
	repo.db.course[c.ID] = c
	return c, nil
}

func (repo *scheduleRepository) GetCourse(_ context.Context, id string, _ ...core.DBExecutor) (schedule.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.course[id]; ok {
		return c, nil
	}
	return schedule.Course{}, schedule.ErrNotFound
}

// LockCourse is a plain read: DB.InTx already runs transactions one at a time.
func (repo *scheduleRepository) LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Course, error) {
	return repo.GetCourse(ctx, id, exec...)
}

func (repo *scheduleRepository) AddCourseLectures(_ context.Context, id string, delta int, _ ...core.DBExecutor) (schedule.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c, ok := repo.db.course[id]
	if !ok {
		return schedule.Course{}, schedule.ErrNotFound
	}
	if c.TotalLectures+delta < 0 {
		return schedule.Course{}, errors.New("course total lectures cannot be negative")
	}
	c.TotalLectures += delta
	c.UpdatedAt = time.Now().UTC()
	repo.db.course[id] = c
	return c, nil
}

func (repo *scheduleRepository) CreateLectures(_ context.Context, lectures []schedule.Lecture, _ ...core.DBExecutor) ([]schedule.Lecture, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// validate the whole batch first, so that it is inserted entirely or not at all
	seqs := make(map[string]bool)
	makeups := make(map[string]bool)
	for _, l := range repo.db.lecture {
		seqs[seqKey(l.CourseID, l.Sequence)] = true
		if l.MakeupFor != "" {
			makeups[l.MakeupFor] = true
		}
	}
	for _, l := range lectures {
		if _, ok := repo.db.course[l.CourseID]; !ok {
			return nil, errUnknownCourse
		}
		k := seqKey(l.CourseID, l.Sequence)
		if seqs[k] {
			return nil, errDuplicateSequence
		}
		seqs[k] = true
		if l.MakeupFor != "" {
			if makeups[l.MakeupFor] {
				return nil, errDuplicateMakeup
			}
			makeups[l.MakeupFor] = true
		}
	}

	created := make([]schedule.Lecture, 0, len(lectures))
	for _, l := range lectures {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.Attendance == "" {
			l.Attendance = schedule.AttendancePending
		}
		l.CreatedAt, l.UpdatedAt = stamp(l.CreatedAt), stamp(l.UpdatedAt)
		repo.db.lecture[l.ID] = l
		created = append(created, l)
	}
	return created, nil
}

func (repo *scheduleRepository) GetLecture(_ context.Context, id string, _ ...core.DBExecutor) (schedule.Lecture, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.lecture[id]; ok {
		return l, nil
	}
	return schedule.Lecture{}, schedule.ErrNotFound
}

func (repo *scheduleRepository) filter(f schedule.LectureFilter) []schedule.Lecture {
	lectures := make([]schedule.Lecture, 0)
	for _, l := range repo.db.lecture {
		if f.CourseID != "" && l.CourseID != f.CourseID {
			continue
		}
		if len(f.Attendances) > 0 && !hasAttendance(f.Attendances, l.Attendance) {
			continue
		}
		if f.IsMakeup != nil && l.IsMakeup != *f.IsMakeup {
			continue
		}
		lectures = append(lectures, l)
	}
	return lectures
}

func (repo *scheduleRepository) QueryLectures(_ context.Context, f schedule.LectureFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]schedule.Lecture, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lectures := repo.filter(f)
	sort.SliceStable(lectures, func(i, j int) bool {
		a, b := lectures[i], lectures[j]
		for _, ord := range ordering {
			if c := compareLectures(a, b, ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return a.ID < b.ID
	})
	return lectures, nil
}

func (repo *scheduleRepository) CountLectures(_ context.Context, f schedule.LectureFilter, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.filter(f)), nil
}

func (repo *scheduleRepository) UpdateLectureStatus(_ context.Context, l schedule.Lecture, _ ...core.DBExecutor) (schedule.Lecture, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.lecture[l.ID]
	if !ok {
		return schedule.Lecture{}, schedule.ErrNotFound
	}
	stored.Attendance = l.Attendance
	stored.Notes = l.Notes
	stored.UpdatedAt = stamp(l.UpdatedAt)
	repo.db.lecture[l.ID] = stored
	return stored, nil
}

func (repo *scheduleRepository) DeleteLecture(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lecture[id]; !ok {
		return schedule.ErrNotFound
	}
	for _, l := range repo.db.lecture {
		if l.MakeupFor == id {
			return errors.New("lecture is referenced by a makeup lecture")
		}
	}
	delete(repo.db.lecture, id)
	return nil
}

func (repo *scheduleRepository) GetMakeupFor(_ context.Context, originalID string, _ ...core.DBExecutor) (schedule.Lecture, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, l := range repo.db.lecture {
		if l.MakeupFor == originalID {
			return l, nil
		}
	}
	return schedule.Lecture{}, schedule.ErrNotFound
}

func (repo *scheduleRepository) MaxSequence(_ context.Context, courseID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var max int
	for _, l := range repo.db.lecture {
		if l.CourseID == courseID && l.Sequence > max {
			max = l.Sequence
		}
	}
	return max, nil
}

func (repo *scheduleRepository) FindConflicts(_ context.Context, q schedule.ConflictQuery, _ ...core.DBExecutor) ([]schedule.Conflict, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	conflicts := make([]schedule.Conflict, 0)
	for _, l := range repo.db.lecture {
		course, ok := repo.db.course[l.CourseID]
		if !ok || course.TrainerID != q.TrainerID {
			continue
		}
		if l.ID == q.ExcludeLectureID || l.Date != q.Date || l.Attendance.IsPostponed() {
			continue
		}
		t := l.EffectiveTime(course)
		if !q.Time.IsZero() && t != q.Time {
			continue
		}
		conflicts = append(conflicts, schedule.Conflict{
			LectureID:   l.ID,
			CourseID:    course.ID,
			CourseTitle: course.Title,
			Date:        l.Date,
			Time:        t,
		})
	}
	return conflicts, nil
}

func compareLectures(a, b schedule.Lecture, field string) int {
	switch field {
	case "sequence":
		return a.Sequence - b.Sequence
	case "date":
		return compareStrings(string(a.Date), string(b.Date))
	case "time":
		return compareStrings(string(a.Time), string(b.Time))
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func hasAttendance(set []schedule.Attendance, a schedule.Attendance) bool {
	for _, s := range set {
		if s == a {
			return true
		}
	}
	return false
}

func seqKey(courseID string, seq int) string {
	return courseID + "#" + strconv.Itoa(seq)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
