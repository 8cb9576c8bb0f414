package schedule

import (
	"context"

	"github.com/trezcool/letsspeak/core"
)

// Repository persists trainers, courses and lectures.
// Every method takes an optional executor so it can join a transaction started by the caller.
// Lookups return ErrNotFound when nothing matches.
type Repository interface {
	CreateTrainer(ctx context.Context, t Trainer, exec ...core.DBExecutor) (Trainer, error)
	GetTrainer(ctx context.Context, id string, exec ...core.DBExecutor) (Trainer, error)

	CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
	GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
	// LockCourse loads the course while holding write locks on its trainer and on itself until the
	// transaction ends, serializing schedule changes of the trainer across all their courses.
	LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
	// AddCourseLectures adds delta to the course's total lecture count.
	AddCourseLectures(ctx context.Context, id string, delta int, exec ...core.DBExecutor) (Course, error)

	CreateLectures(ctx context.Context, lectures []Lecture, exec ...core.DBExecutor) ([]Lecture, error)
	GetLecture(ctx context.Context, id string, exec ...core.DBExecutor) (Lecture, error)
	QueryLectures(ctx context.Context, filter LectureFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Lecture, error)
	CountLectures(ctx context.Context, filter LectureFilter, exec ...core.DBExecutor) (int, error)
	// UpdateLectureStatus writes the lecture's attendance, notes and updated_at; nothing else.
	UpdateLectureStatus(ctx context.Context, l Lecture, exec ...core.DBExecutor) (Lecture, error)
	DeleteLecture(ctx context.Context, id string, exec ...core.DBExecutor) error
	// GetMakeupFor finds the makeup lecture replacing the given original.
	GetMakeupFor(ctx context.Context, originalID string, exec ...core.DBExecutor) (Lecture, error)
	MaxSequence(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)
	// FindConflicts lists the trainer's active lectures matching the query, across all their courses.
	FindConflicts(ctx context.Context, q ConflictQuery, exec ...core.DBExecutor) ([]Conflict, error)
}

// LectureOrderingFields are the fields lectures can be sorted by.
var LectureOrderingFields = []string{"sequence", "date", "time", "created_at"}
