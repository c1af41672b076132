package types

import (
	"regexp"
)

var studentIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidStudentID checks if a student ID meets format requirements.
// The 1-50 character limit keeps IDs sane for archive paths and dashboards.
func IsValidStudentID(studentID string) bool {
	if len(studentID) < 1 || len(studentID) > 50 {
		return false
	}
	return studentIDRegex.MatchString(studentID)
}

// Validate checks the fields a detector must supply with a violation.
// The timestamp is deliberately not validated here: a malformed timestamp
// degrades to "now" during normalization instead of rejecting the event.
func (v *ViolationRecord) Validate() error {
	if v.StudentID == "" {
		return ErrMissingStudentID
	}
	if !IsValidStudentID(v.StudentID) {
		return ErrInvalidStudentID
	}
	if v.ViolationType == "" {
		return ErrMissingViolationType
	}
	return nil
}
