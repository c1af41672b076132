package types

import "errors"

var (
	ErrInvalidStudentID     = errors.New("student ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrMissingStudentID     = errors.New("student_id is required")
	ErrMissingViolationType = errors.New("violation_type is required")
	ErrInvalidMessageType   = errors.New("invalid message type")
)
