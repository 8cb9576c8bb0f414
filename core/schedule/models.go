package schedule

import (
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	timeOfDayLayout = "15:04"
)

// Date is a calendar day formatted as YYYY-MM-DD.
type Date string

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date { return Date(t.Format(dateLayout)) }

func (d Date) Time() time.Time {
	t, _ := time.Parse(dateLayout, string(d))
	return t
}

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) IsZero() bool { return d == "" }

func (d Date) String() string { return string(d) }

// TimeOfDay is a wall-clock time formatted as HH:MM. The empty value means "not set".
type TimeOfDay string

// ParseTimeOfDay accepts HH:MM or HH:MM:SS and normalizes to HH:MM.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		var err2 error
		if t, err2 = time.Parse("15:04:05", s); err2 != nil {
			return "", err
		}
	}
	return TimeOfDay(t.Format(timeOfDayLayout)), nil
}

func (t TimeOfDay) IsZero() bool { return t == "" }

func (t TimeOfDay) String() string { return string(t) }

// firstTime returns the first non-empty time.
func firstTime(times ...TimeOfDay) TimeOfDay {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}
	return ""
}

type Trainer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	CourseStatusActive    = "active"
	CourseStatusPaused    = "paused"
	CourseStatusCompleted = "completed"
)

type Course struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	TrainerID     string         `json:"trainer_id"`
	TotalLectures int            `json:"total_lectures"`
	Weekdays      []time.Weekday `json:"weekdays"`
	DefaultTime   TimeOfDay      `json:"default_time,omitempty"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (c Course) HasWeekday(wd time.Weekday) bool {
	for _, d := range c.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// HasValidCadence reports whether the course meets on at least one day and every day is Sunday..Saturday.
func (c Course) HasValidCadence() bool {
	if len(c.Weekdays) == 0 {
		return false
	}
	for _, d := range c.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return false
		}
	}
	return true
}

// FormatWeekdays encodes a cadence as a comma separated list of weekday numbers (Sunday = 0).
func FormatWeekdays(days []time.Weekday) string {
	ss := make([]string, 0, len(days))
	for _, d := range days {
		ss = append(ss, strconv.Itoa(int(d)))
	}
	return strings.Join(ss, ",")
}

func ParseWeekdays(s string) ([]time.Weekday, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			return nil, ErrInvalidCadence
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

type Lecture struct {
	ID         string     `json:"id"`
	CourseID   string     `json:"course_id"`
	Sequence   int        `json:"sequence"`
	Date       Date       `json:"date"`
	Time       TimeOfDay  `json:"time,omitempty"`
	Attendance Attendance `json:"attendance"`
	IsMakeup   bool       `json:"is_makeup"`
	MakeupFor  string     `json:"makeup_for,omitempty"`
	Notes      *string    `json:"notes"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (l Lecture) CanBePostponed() bool { return l.Attendance.IsPending() }

// EffectiveTime is the lecture's own time, or the course default.
func (l Lecture) EffectiveTime(c Course) TimeOfDay { return firstTime(l.Time, c.DefaultTime) }

// Conflict describes an active lecture of the same trainer occupying the requested slot.
type Conflict struct {
	LectureID   string    `json:"lecture_id"`
	CourseID    string    `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	Date        Date      `json:"date"`
	Time        TimeOfDay `json:"time,omitempty"`
}

type ConflictQuery struct {
	TrainerID        string
	Date             Date
	Time             TimeOfDay // empty: match the whole day
	ExcludeLectureID string
}

type ConflictReport struct {
	HasConflict bool       `json:"has_conflict"`
	Message     string     `json:"message"`
	Conflicts   []Conflict `json:"conflicts"`
}

type PostponeRequest struct {
	LectureID   string      `json:"-"`
	NewDate     string      `json:"new_date" validate:"required,isodate"`
	NewTime     string      `json:"new_time" validate:"omitempty,timeofday"`
	PostponedBy PostponedBy `json:"postponed_by" validate:"required,oneof=trainer student customer_service admin holiday"`
	Reason      string      `json:"reason" validate:"max=1000"`
	Force       bool        `json:"force"`
}

type PostponeResult struct {
	OriginalLecture     Lecture    `json:"original_lecture"`
	NewLecture          Lecture    `json:"new_lecture"`
	OverriddenConflicts []Conflict `json:"overridden_conflicts,omitempty"`
}

type CheckConflictsRequest struct {
	LectureID string
	NewDate   string `query:"new_date" validate:"required,isodate"`
	NewTime   string `query:"new_time" validate:"omitempty,timeofday"`
}

type CancelResult struct {
	Lecture       Lecture `json:"lecture"`
	MakeupDeleted bool    `json:"makeup_deleted"`
}

type AttendanceRequest struct {
	LectureID  string     `json:"-"`
	Attendance Attendance `json:"attendance" validate:"required,attendance"`
}

type GenerateRequest struct {
	CourseID  string `json:"-"`
	StartDate string `json:"start_date" validate:"required,isodate"`
}

// LimitCheck is the outcome of the postponement limit policy for a course.
type LimitCheck struct {
	Allowed bool `json:"allowed"`
	Current int  `json:"current"`
	Max     int  `json:"max"`
}

type PostponementStats struct {
	CourseID              string `json:"course_id"`
	TotalPostponements    int    `json:"total_postponements"`
	MakeupLecturesCreated int    `json:"makeup_lectures_created"`
	MaxAllowed            int    `json:"max_allowed"`
	Remaining             int    `json:"remaining"`
	CanPostpone           bool   `json:"can_postpone"`
}

// Postponement pairs a postponed lecture with its makeup, if any.
type Postponement struct {
	Original Lecture  `json:"original"`
	Makeup   *Lecture `json:"makeup"`
}

type LectureFilter struct {
	CourseID    string
	Attendances []Attendance
	IsMakeup    *bool
}
