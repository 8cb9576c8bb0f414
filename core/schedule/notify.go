package schedule

import "context"

type NoticeKind string

const (
	NoticePostponed NoticeKind = "lecture_postponed"
	NoticeCancelled NoticeKind = "postponement_cancelled"
)

// Notice tells a trainer that one of their lectures moved.
type Notice struct {
	Kind             NoticeKind
	Trainer          Trainer
	CourseID         string
	CourseTitle      string
	OriginalSequence int
	OriginalDate     Date
	Status           Attendance
	Reason           string
	MakeupSequence   int // 0 when there is no makeup
	MakeupDate       Date
	MakeupTime       TimeOfDay
}

// Notifier delivers notices. Delivery is best-effort: callers log errors and carry on.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) error { return nil }

// NopNotifier discards every notice.
func NopNotifier() Notifier { return nopNotifier{} }
