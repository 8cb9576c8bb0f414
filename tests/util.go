package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
	"github.com/trezcool/letsspeak/storage/database"
)

// PrepareSQLite opens a private in-memory SQLite database with every migration applied.
// It is closed when the test ends.
func PrepareSQLite(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("PrepareSQLite() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	database.SetMigrationLogger(goose.NopLogger())
	if err = database.Migrate(db, database.EngineSQLite); err != nil {
		t.Fatalf("PrepareSQLite() failed: %v", err)
	}
	return db
}

func CreateTrainer(t *testing.T, repo schedule.Repository, name, email string, chatID ...int64) schedule.Trainer {
	t.Helper()

	tr := schedule.Trainer{Name: name, Email: email, IsActive: true}
	if len(chatID) > 0 {
		tr.TelegramChatID = chatID[0]
	}
	tr, err := repo.CreateTrainer(context.Background(), tr)
	if err != nil {
		t.Fatalf("CreateTrainer() failed: %v", err)
	}
	return tr
}

func CreateCourse(
	t *testing.T,
	repo schedule.Repository,
	trainerID, title string,
	totalLectures int,
	defaultTime schedule.TimeOfDay,
	weekdays ...time.Weekday,
) schedule.Course {
	t.Helper()

	c, err := repo.CreateCourse(context.Background(), schedule.Course{
		Title:         title,
		TrainerID:     trainerID,
		TotalLectures: totalLectures,
		Weekdays:      weekdays,
		DefaultTime:   defaultTime,
		Status:        schedule.CourseStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// CreateLecture inserts a single lecture with the given sequence, date, time and attendance.
func CreateLecture(
	t *testing.T,
	repo schedule.Repository,
	courseID string,
	seq int,
	date schedule.Date,
	tod schedule.TimeOfDay,
	attendance schedule.Attendance,
) schedule.Lecture {
	t.Helper()

	created, err := repo.CreateLectures(context.Background(), []schedule.Lecture{{
		CourseID:   courseID,
		Sequence:   seq,
		Date:       date,
		Time:       tod,
		Attendance: attendance,
	}})
	if err != nil {
		t.Fatalf("CreateLecture() failed: %v", err)
	}
	return created[0]
}

// CreateLectures inserts n pending lectures, one week apart, starting on start.
func CreateLectures(t *testing.T, repo schedule.Repository, courseID string, start schedule.Date, n int) []schedule.Lecture {
	t.Helper()

	lectures := make([]schedule.Lecture, 0, n)
	for i := 0; i < n; i++ {
		lectures = append(lectures, schedule.Lecture{
			CourseID:   courseID,
			Sequence:   i + 1,
			Date:       start.AddDays(7 * i),
			Attendance: schedule.AttendancePending,
		})
	}
	created, err := repo.CreateLectures(context.Background(), lectures)
	if err != nil {
		t.Fatalf("CreateLectures() failed: %v", err)
	}
	return created
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries in memory.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Entries returns the recorded entries of the given level, or all of them if level is empty.
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			res = append(res, e)
		}
	}
	return res
}
