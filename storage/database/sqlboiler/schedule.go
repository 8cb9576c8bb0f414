package boiledrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
	"github.com/trezcool/letsspeak/storage/database"
)

const (
	trainerColumns = "id, name, email, telegram_chat_id, is_active, created_at, updated_at"
	courseColumns  = "id, title, trainer_id, total_lectures, weekdays, default_time, status, created_at, updated_at"
	lectureColumns = "id, course_id, sequence_number, lecture_date, lecture_time, attendance, is_makeup, makeup_for, notes, created_at, updated_at"
)

// lecture ordering fields -> columns
var lectureOrderingColumns = map[string]string{
	"sequence":   "sequence_number",
	"date":       "lecture_date",
	"time":       "lecture_time",
	"created_at": "created_at",
}

type (
	trainerRow struct {
		ID             string      `boil:"id"`
		Name           string      `boil:"name"`
		Email          null.String `boil:"email"`
		TelegramChatID null.Int64  `boil:"telegram_chat_id"`
		IsActive       bool        `boil:"is_active"`
		CreatedAt      time.Time   `boil:"created_at"`
		UpdatedAt      time.Time   `boil:"updated_at"`
	}

	courseRow struct {
		ID            string      `boil:"id"`
		Title         string      `boil:"title"`
		TrainerID     string      `boil:"trainer_id"`
		TotalLectures int         `boil:"total_lectures"`
		Weekdays      string      `boil:"weekdays"`
		DefaultTime   null.String `boil:"default_time"`
		Status        string      `boil:"status"`
		CreatedAt     time.Time   `boil:"created_at"`
		UpdatedAt     time.Time   `boil:"updated_at"`
	}

	lectureRow struct {
		ID          string      `boil:"id"`
		CourseID    string      `boil:"course_id"`
		Sequence    int         `boil:"sequence_number"`
		LectureDate time.Time   `boil:"lecture_date"`
		LectureTime null.String `boil:"lecture_time"`
		Attendance  string      `boil:"attendance"`
		IsMakeup    bool        `boil:"is_makeup"`
		MakeupFor   null.String `boil:"makeup_for"`
		Notes       null.String `boil:"notes"`
		CreatedAt   time.Time   `boil:"created_at"`
		UpdatedAt   time.Time   `boil:"updated_at"`
	}

	conflictRow struct {
		LectureID   string      `boil:"lecture_id"`
		CourseID    string      `boil:"course_id"`
		CourseTitle string      `boil:"course_title"`
		LectureDate time.Time   `boil:"lecture_date"`
		LectureTime null.String `boil:"lecture_time"`
	}

	countRow struct {
		Count int64 `boil:"count"`
	}
)

type scheduleRepository struct {
	exec     core.DBExecutor
	engine   string
	bindType int
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

// NewScheduleRepository returns a repository speaking the SQL dialect of engine (postgres or sqlite3).
func NewScheduleRepository(exec core.DBExecutor, engine string) schedule.Repository {
	return &scheduleRepository{exec: exec, engine: engine, bindType: sqlx.BindType(engine)}
}

func (repo scheduleRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// rebind turns "?" placeholders into the engine's own.
func (repo scheduleRepository) rebind(q string) string {
	return sqlx.Rebind(repo.bindType, q)
}

func (repo scheduleRepository) forUpdate() string {
	if repo.engine == database.EnginePostgres {
		return " FOR UPDATE"
	}
	return "" // sqlite transactions hold the database write lock from BEGIN IMMEDIATE
}

func (repo scheduleRepository) bind(ctx context.Context, exe core.DBExecutor, obj interface{}, q string, args ...interface{}) error {
	return queries.Raw(repo.rebind(q), args...).Bind(ctx, exe, obj)
}

// trapNoRowsErr maps "no rows" err to schedule.ErrNotFound
func (repo scheduleRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func unboilTrainer(r trainerRow) schedule.Trainer {
	return schedule.Trainer{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email.String,
		TelegramChatID: r.TelegramChatID.Int64,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func unboilCourse(r courseRow) (schedule.Course, error) {
	days, err := schedule.ParseWeekdays(r.Weekdays)
	if err != nil {
		return schedule.Course{}, errors.Wrapf(err, "parsing weekdays of course %s", r.ID)
	}
	return schedule.Course{
		ID:            r.ID,
		Title:         r.Title,
		TrainerID:     r.TrainerID,
		TotalLectures: r.TotalLectures,
		Weekdays:      days,
		DefaultTime:   schedule.TimeOfDay(r.DefaultTime.String),
		Status:        r.Status,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}, nil
}

func unboilLecture(r lectureRow) schedule.Lecture {
	return schedule.Lecture{
		ID:         r.ID,
		CourseID:   r.CourseID,
		Sequence:   r.Sequence,
		Date:       schedule.DateOf(r.LectureDate),
		Time:       schedule.TimeOfDay(r.LectureTime.String),
		Attendance: schedule.Attendance(r.Attendance),
		IsMakeup:   r.IsMakeup,
		MakeupFor:  r.MakeupFor.String,
		Notes:      r.Notes.Ptr(),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func unboilLectures(rows []lectureRow) []schedule.Lecture {
	lectures := make([]schedule.Lecture, 0, len(rows))
	for _, r := range rows {
		lectures = append(lectures, unboilLecture(r))
	}
	return lectures
}

func (repo scheduleRepository) CreateTrainer(ctx context.Context, t schedule.Trainer, exec ...core.DBExecutor) (schedule.Trainer, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt, t.UpdatedAt = utc(t.CreatedAt), utc(t.UpdatedAt)

	q := "INSERT INTO trainers (" + trainerColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err := repo.getExec(exec).ExecContext(ctx, repo.rebind(q),
		t.ID, t.Name, null.NewString(t.Email, t.Email != ""), null.NewInt64(t.TelegramChatID, t.TelegramChatID != 0),
		t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return schedule.Trainer{}, errors.Wrap(err, "inserting trainer")
	}
	return t, nil
}

func (repo scheduleRepository) GetTrainer(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Trainer, error) {
	if !validID(id) {
		return schedule.Trainer{}, schedule.ErrNotFound
	}
	var row trainerRow
	q := "SELECT " + trainerColumns + " FROM trainers WHERE id = ?"
	if err := repo.bind(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return schedule.Trainer{}, repo.trapNoRowsErr(err, "finding trainer")
	}
	return unboilTrainer(row), nil
}

func (repo scheduleRepository) CreateCourse(ctx context.Context, c schedule.Course, exec ...core.DBExecutor) (schedule.Course, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = schedule.CourseStatusActive
	}
	c.CreatedAt, c.UpdatedAt = utc(c.CreatedAt), utc(c.UpdatedAt)

	q := "INSERT INTO courses (" + courseColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := repo.getExec(exec).ExecContext(ctx, repo.rebind(q),
		c.ID, c.Title, c.TrainerID, c.TotalLectures, schedule.FormatWeekdays(c.Weekdays),
		null.NewString(string(c.DefaultTime), !c.DefaultTime.IsZero()), c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return schedule.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo scheduleRepository) getCourse(ctx context.Context, exe core.DBExecutor, id, suffix string) (schedule.Course, error) {
	if !validID(id) {
		return schedule.Course{}, schedule.ErrNotFound
	}
	var row courseRow
	q := "SELECT " + courseColumns + " FROM courses WHERE id = ?" + suffix
	if err := repo.bind(ctx, exe, &row, q, id); err != nil {
		return schedule.Course{}, repo.trapNoRowsErr(err, "finding course")
	}
	return unboilCourse(row)
}

func (repo scheduleRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Course, error) {
	return repo.getCourse(ctx, repo.getExec(exec), id, "")
}

func (repo scheduleRepository) LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Course, error) {
	if !validID(id) {
		return schedule.Course{}, schedule.ErrNotFound
	}
	exe := repo.getExec(exec)

	// trainer first: every schedule change of the trainer, whatever the course, queues here
	q := "SELECT id FROM trainers WHERE id = (SELECT trainer_id FROM courses WHERE id = ?)" + repo.forUpdate()
	if _, err := exe.ExecContext(ctx, repo.rebind(q), id); err != nil {
		return schedule.Course{}, errors.Wrap(err, "locking trainer")
	}
	return repo.getCourse(ctx, exe, id, repo.forUpdate())
}

func (repo scheduleRepository) AddCourseLectures(ctx context.Context, id string, delta int, exec ...core.DBExecutor) (schedule.Course, error) {
	if !validID(id) {
		return schedule.Course{}, schedule.ErrNotFound
	}
	exe := repo.getExec(exec)

	q := "UPDATE courses SET total_lectures = total_lectures + ?, updated_at = ? WHERE id = ?"
	res, err := exe.ExecContext(ctx, repo.rebind(q), delta, time.Now().UTC(), id)
	if err != nil {
		return schedule.Course{}, errors.Wrap(err, "updating course total lectures")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.Course{}, schedule.ErrNotFound
	}
	return repo.getCourse(ctx, exe, id, "")
}

func (repo scheduleRepository) CreateLectures(ctx context.Context, lectures []schedule.Lecture, exec ...core.DBExecutor) ([]schedule.Lecture, error) {
	exe := repo.getExec(exec)
	q := repo.rebind("INSERT INTO lectures (" + lectureColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

	created := make([]schedule.Lecture, 0, len(lectures))
	for _, l := range lectures {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.Attendance == "" {
			l.Attendance = schedule.AttendancePending
		}
		l.CreatedAt, l.UpdatedAt = utc(l.CreatedAt), utc(l.UpdatedAt)

		_, err := exe.ExecContext(ctx, q,
			l.ID, l.CourseID, l.Sequence, string(l.Date), null.NewString(string(l.Time), !l.Time.IsZero()),
			string(l.Attendance), l.IsMakeup, null.NewString(l.MakeupFor, l.MakeupFor != ""), null.StringFromPtr(l.Notes),
			l.CreatedAt, l.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "inserting lecture #%d", l.Sequence)
		}
		created = append(created, l)
	}
	return created, nil
}

func (repo scheduleRepository) GetLecture(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Lecture, error) {
	if !validID(id) {
		return schedule.Lecture{}, schedule.ErrNotFound
	}
	var row lectureRow
	q := "SELECT " + lectureColumns + " FROM lectures WHERE id = ?"
	if err := repo.bind(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return schedule.Lecture{}, repo.trapNoRowsErr(err, "finding lecture")
	}
	return unboilLecture(row), nil
}

// where builds the WHERE clause of a lecture filter, expanding IN lists.
func (repo scheduleRepository) where(f schedule.LectureFilter) (string, []interface{}, error) {
	conds := []string{"1 = 1"}
	var args []interface{}

	if f.CourseID != "" {
		conds = append(conds, "course_id = ?")
		args = append(args, f.CourseID)
	}
	if len(f.Attendances) > 0 {
		statuses := make([]string, 0, len(f.Attendances))
		for _, a := range f.Attendances {
			statuses = append(statuses, string(a))
		}
		cond, inArgs, err := sqlx.In("attendance IN (?)", statuses)
		if err != nil {
			return "", nil, errors.Wrap(err, "expanding attendances")
		}
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}
	if f.IsMakeup != nil {
		conds = append(conds, "is_makeup = ?")
		args = append(args, *f.IsMakeup)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (repo scheduleRepository) QueryLectures(ctx context.Context, f schedule.LectureFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]schedule.Lecture, error) {
	if f.CourseID != "" && !validID(f.CourseID) {
		return []schedule.Lecture{}, nil
	}
	where, args, err := repo.where(f)
	if err != nil {
		return nil, err
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := lectureOrderingColumns[ord.Field]
		if !ok {
			return nil, errors.Errorf("unknown lecture ordering field %q", ord.Field)
		}
		orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	orderList = append(orderList, "id ASC")

	var rows []lectureRow
	q := "SELECT " + lectureColumns + " FROM lectures" + where + " ORDER BY " + strings.Join(orderList, ", ")
	if err = repo.bind(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying lectures")
	}
	return unboilLectures(rows), nil
}

func (repo scheduleRepository) CountLectures(ctx context.Context, f schedule.LectureFilter, exec ...core.DBExecutor) (int, error) {
	if f.CourseID != "" && !validID(f.CourseID) {
		return 0, nil
	}
	where, args, err := repo.where(f)
	if err != nil {
		return 0, err
	}

	var row countRow
	if err = repo.bind(ctx, repo.getExec(exec), &row, "SELECT COUNT(*) AS count FROM lectures"+where, args...); err != nil {
		return 0, errors.Wrap(err, "counting lectures")
	}
	return int(row.Count), nil
}

func (repo scheduleRepository) UpdateLectureStatus(ctx context.Context, l schedule.Lecture, exec ...core.DBExecutor) (schedule.Lecture, error) {
	if !validID(l.ID) {
		return schedule.Lecture{}, schedule.ErrNotFound
	}
	exe := repo.getExec(exec)

	q := "UPDATE lectures SET attendance = ?, notes = ?, updated_at = ? WHERE id = ?"
	res, err := exe.ExecContext(ctx, repo.rebind(q), string(l.Attendance), null.StringFromPtr(l.Notes), utc(l.UpdatedAt), l.ID)
	if err != nil {
		return schedule.Lecture{}, errors.Wrap(err, "updating lecture")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.Lecture{}, schedule.ErrNotFound
	}
	return repo.GetLecture(ctx, l.ID, exe)
}

func (repo scheduleRepository) DeleteLecture(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return schedule.ErrNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx, repo.rebind("DELETE FROM lectures WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

func (repo scheduleRepository) GetMakeupFor(ctx context.Context, originalID string, exec ...core.DBExecutor) (schedule.Lecture, error) {
	if !validID(originalID) {
		return schedule.Lecture{}, schedule.ErrNotFound
	}
	var row lectureRow
	q := "SELECT " + lectureColumns + " FROM lectures WHERE makeup_for = ?"
	if err := repo.bind(ctx, repo.getExec(exec), &row, q, originalID); err != nil {
		return schedule.Lecture{}, repo.trapNoRowsErr(err, "finding makeup lecture")
	}
	return unboilLecture(row), nil
}

func (repo scheduleRepository) MaxSequence(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	if !validID(courseID) {
		return 0, nil
	}
	var row countRow
	q := "SELECT COALESCE(MAX(sequence_number), 0) AS count FROM lectures WHERE course_id = ?"
	if err := repo.bind(ctx, repo.getExec(exec), &row, q, courseID); err != nil {
		return 0, errors.Wrap(err, "getting max lecture sequence")
	}
	return int(row.Count), nil
}

func (repo scheduleRepository) FindConflicts(ctx context.Context, cq schedule.ConflictQuery, exec ...core.DBExecutor) ([]schedule.Conflict, error) {
	if !validID(cq.TrainerID) {
		return []schedule.Conflict{}, nil
	}

	postponed := make([]string, 0, len(schedule.PostponedAttendances))
	for _, a := range schedule.PostponedAttendances {
		postponed = append(postponed, string(a))
	}

	q := `SELECT l.id AS lecture_id, c.id AS course_id, c.title AS course_title,
		l.lecture_date AS lecture_date, COALESCE(l.lecture_time, c.default_time) AS lecture_time
		FROM lectures l
		JOIN courses c ON c.id = l.course_id
		WHERE c.trainer_id = ? AND l.lecture_date = ? AND l.attendance NOT IN (?)`
	args := []interface{}{cq.TrainerID, string(cq.Date), postponed}

	if !cq.Time.IsZero() {
		q += " AND COALESCE(l.lecture_time, c.default_time) = ?"
		args = append(args, string(cq.Time))
	}
	if cq.ExcludeLectureID != "" && validID(cq.ExcludeLectureID) {
		q += " AND l.id <> ?"
		args = append(args, cq.ExcludeLectureID)
	}
	q += " ORDER BY l.lecture_date, lecture_time, l.id"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "expanding conflict query")
	}

	var rows []conflictRow
	if err = repo.bind(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "finding conflicts")
	}

	conflicts := make([]schedule.Conflict, 0, len(rows))
	for _, r := range rows {
		conflicts = append(conflicts, schedule.Conflict{
			LectureID:   r.LectureID,
			CourseID:    r.CourseID,
			CourseTitle: r.CourseTitle,
			Date:        schedule.DateOf(r.LectureDate),
			Time:        schedule.TimeOfDay(r.LectureTime.String),
		})
	}
	return conflicts, nil
}
