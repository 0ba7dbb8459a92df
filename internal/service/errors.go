package service

import (
	"errors"
	"fmt"
)

// ErrWorkflowNotFound indicates no workflow exists for the given user/level.
var ErrWorkflowNotFound = errors.New("certification workflow not found")

// ErrCourseNotFound indicates the course was not located.
var ErrCourseNotFound = errors.New("course not found")

// ErrSubsectionNotFound indicates the subsection does not belong to the course.
var ErrSubsectionNotFound = errors.New("subsection not found in course")

// ErrCourseLocked indicates the caller tried to act on a course whose gate is
// not satisfied.
var ErrCourseLocked = errors.New("course is locked")

// PreconditionError is returned by workflow transitions invoked out of order.
// Required names the prior state that must hold, so the UI can distinguish
// "waiting on someone else" from "action required".
type PreconditionError struct {
	Operation string
	Required  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed, requires %s", e.Operation, e.Required)
}

// IsPrecondition reports whether err is a precondition failure.
func IsPrecondition(err error) bool {
	var preconditionErr *PreconditionError
	return errors.As(err, &preconditionErr)
}
