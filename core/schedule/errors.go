package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrCannotPostpone          = errors.New("only pending lectures can be postponed")
	ErrMaxPostponementsReached = errors.New("maximum number of postponements reached for this course")
	ErrTimeConflict            = errors.New("trainer already has a lecture scheduled at this time")
	ErrNotPostponed            = errors.New("lecture is not postponed")
	ErrMakeupAlreadyCompleted  = errors.New("makeup lecture has already taken place")
	ErrMakeupPostponed         = errors.New("makeup lecture has itself been postponed; cancel that postponement first")
	ErrScheduleExists          = errors.New("course schedule has already been generated")
	ErrInvalidCadence          = errors.New("course has no valid weekly cadence")
	ErrInvalidTransition       = errors.New("invalid attendance transition")
	ErrTransactionFailure      = errors.New("the operation could not be completed")
)

// TimeConflictError carries the lectures blocking a postponement.
type TimeConflictError struct {
	Conflicts []Conflict
}

func (e *TimeConflictError) Error() string {
	return fmt.Sprintf("%s (%d conflicting lecture(s))", ErrTimeConflict.Error(), len(e.Conflicts))
}

func (e *TimeConflictError) Is(target error) bool { return target == ErrTimeConflict }

// TransactionError wraps an unexpected persistence failure. Nothing was committed.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransactionError) Unwrap() error { return e.Err }

func (e *TransactionError) Is(target error) bool { return target == ErrTransactionFailure }

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrCannotPostpone, "cannot_postpone"},
	{ErrMaxPostponementsReached, "max_postponements_reached"},
	{ErrTimeConflict, "time_conflict"},
	{ErrNotPostponed, "not_postponed"},
	{ErrMakeupAlreadyCompleted, "makeup_already_completed"},
	{ErrMakeupPostponed, "makeup_postponed"},
	{ErrScheduleExists, "schedule_exists"},
	{ErrInvalidCadence, "invalid_cadence"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrTransactionFailure, "transaction_failure"},
}

func lookup(err error) (string, error) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code, c.err
		}
	}
	return "", nil
}

// ErrorCode returns the stable code of a domain error, or "" for anything else.
func ErrorCode(err error) string {
	code, _ := lookup(err)
	return code
}

// ErrorMessage returns the message of the domain error err wraps, without the wrapping context.
func ErrorMessage(err error) string {
	if _, sentinel := lookup(err); sentinel != nil {
		return sentinel.Error()
	}
	return ""
}

// isExpected reports whether err is a domain outcome rather than a failure.
func isExpected(err error) bool {
	code := ErrorCode(err)
	return code != "" && code != "transaction_failure"
}
