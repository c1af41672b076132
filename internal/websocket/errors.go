package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection  = errors.New("connection cannot be nil")
	ErrEmptyStudentID = errors.New("student ID cannot be empty")
)

// Handler-related errors
var (
	ErrHandshakeTimeout = errors.New("handshake not received in time")
	ErrBadHandshake     = errors.New("handshake must carry a valid student_id")
)
