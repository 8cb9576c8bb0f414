package schedule

// Attendance is the state of a lecture. Every lecture starts pending and
// ends either held or postponed; a postponed lecture goes back to pending
// only when its postponement is cancelled.
type Attendance string

const (
	AttendancePending Attendance = "pending"

	// held
	AttendancePresent   Attendance = "present"
	AttendanceAbsent    Attendance = "absent"
	AttendancePartially Attendance = "partially"
	AttendanceExcused   Attendance = "excused"

	// postponed
	AttendancePostponedByTrainer Attendance = "postponed_by_trainer"
	AttendancePostponedByStudent Attendance = "postponed_by_student"
	AttendancePostponedHoliday   Attendance = "postponed_holiday"
)

var (
	HeldAttendances      = []Attendance{AttendancePresent, AttendanceAbsent, AttendancePartially, AttendanceExcused}
	PostponedAttendances = []Attendance{AttendancePostponedByTrainer, AttendancePostponedByStudent, AttendancePostponedHoliday}
)

func (a Attendance) IsPending() bool { return a == AttendancePending }

func (a Attendance) IsHeld() bool { return containsAttendance(HeldAttendances, a) }

func (a Attendance) IsPostponed() bool { return containsAttendance(PostponedAttendances, a) }

func (a Attendance) IsValid() bool {
	return a.IsPending() || a.IsHeld() || a.IsPostponed()
}

// CanTransitionTo reports whether next is reachable from a in one step.
func (a Attendance) CanTransitionTo(next Attendance) bool {
	switch {
	case a.IsPending():
		return next.IsHeld() || next.IsPostponed()
	case a.IsPostponed():
		return next.IsPending()
	default: // held is terminal
		return false
	}
}

func containsAttendance(set []Attendance, a Attendance) bool {
	for _, s := range set {
		if s == a {
			return true
		}
	}
	return false
}

// PostponedBy is the party a postponement is attributed to.
type PostponedBy string

const (
	PostponedByTrainer         PostponedBy = "trainer"
	PostponedByStudent         PostponedBy = "student"
	PostponedByCustomerService PostponedBy = "customer_service"
	PostponedByAdmin           PostponedBy = "admin"
	PostponedByHoliday         PostponedBy = "holiday"
)

// Attendance maps the postponing party to the postponed state of the original lecture.
// Staff postponements count as the trainer's.
func (p PostponedBy) Attendance() (Attendance, bool) {
	switch p {
	case PostponedByTrainer, PostponedByCustomerService, PostponedByAdmin:
		return AttendancePostponedByTrainer, true
	case PostponedByStudent:
		return AttendancePostponedByStudent, true
	case PostponedByHoliday:
		return AttendancePostponedHoliday, true
	default:
		return "", false
	}
}
