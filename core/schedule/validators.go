package schedule

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/letsspeak/core"
)

var (
	// custom validation tags & texts
	isoDateTag     = "isodate"
	isoDateText    = "must be a date formatted as YYYY-MM-DD"
	timeOfDayTag   = "timeofday"
	timeOfDayText  = "must be a time formatted as HH:MM"
	attendanceTag  = "attendance"
	attendanceText = "must be one of: present, absent, partially, excused"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(isoDateTag, isoDateValidation)
	core.RegisterCustomTranslation(validate, translator, isoDateTag, isoDateText)

	_ = validate.RegisterValidation(timeOfDayTag, timeOfDayValidation)
	core.RegisterCustomTranslation(validate, translator, timeOfDayTag, timeOfDayText)

	_ = validate.RegisterValidation(attendanceTag, heldAttendanceValidation)
	core.RegisterCustomTranslation(validate, translator, attendanceTag, attendanceText)
}

func isoDateValidation(fl validator.FieldLevel) bool {
	_, err := ParseDate(fl.Field().String())
	return err == nil
}

func timeOfDayValidation(fl validator.FieldLevel) bool {
	_, err := ParseTimeOfDay(fl.Field().String())
	return err == nil
}

// heldAttendanceValidation only allows the states a lecture can be marked with.
func heldAttendanceValidation(fl validator.FieldLevel) bool {
	return Attendance(fl.Field().String()).IsHeld()
}
