package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Registry owns all connection lifecycle state: live student connections
// (one per ID, last write wins), the observer set, and the latest cached
// frame per student. A single RWMutex guards all three; no operation blocks
// while holding it.
type Registry struct {
	mu        sync.RWMutex
	students  map[string]*Connection
	observers map[*Connection]struct{}
	frames    map[string]string
	logger    *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		students:  make(map[string]*Connection),
		observers: make(map[*Connection]struct{}),
		frames:    make(map[string]string),
		logger:    logger,
	}
}

// RegisterStudent inserts or replaces the connection for a student ID. A
// reconnect under the same ID supersedes the old connection, which is closed
// asynchronously to avoid holding the lock across a network close.
func (r *Registry) RegisterStudent(studentID string, conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if studentID == "" {
		return ErrEmptyStudentID
	}

	r.mu.Lock()
	existing := r.students[studentID]
	r.students[studentID] = conn
	r.mu.Unlock()

	if existing != nil && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Warn("failed to close superseded student connection",
					zap.String("student_id", studentID), zap.Error(err))
			}
		}()
		r.logger.Info("student reconnected, old connection superseded",
			zap.String("student_id", studentID))
	} else {
		r.logger.Info("student online", zap.String("student_id", studentID))
	}

	return nil
}

// UnregisterStudent removes the entry only if it still holds this exact
// connection. A disconnect arriving after a newer connection replaced it is
// stale and must not evict the replacement.
func (r *Registry) UnregisterStudent(studentID string, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	registered, exists := r.students[studentID]
	if !exists || registered != conn {
		r.mu.Unlock()
		return
	}
	delete(r.students, studentID)
	r.mu.Unlock()

	r.logger.Info("student offline", zap.String("student_id", studentID))
}

// RegisterObserver adds an observer to the fan-out set.
func (r *Registry) RegisterObserver(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	r.observers[conn] = struct{}{}
	total := len(r.observers)
	r.mu.Unlock()

	r.logger.Info("observer connected", zap.Int("total_observers", total))
	return nil
}

// UnregisterObserver removes an observer. Idempotent.
func (r *Registry) UnregisterObserver(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	_, exists := r.observers[conn]
	delete(r.observers, conn)
	total := len(r.observers)
	r.mu.Unlock()

	if exists {
		r.logger.Info("observer disconnected", zap.Int("total_observers", total))
	}
}

// Observers returns a snapshot of the fan-out set. The relay iterates the
// snapshot so a concurrent disconnect never mutates the set mid-broadcast.
func (r *Registry) Observers() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.observers))
	for conn := range r.observers {
		out = append(out, conn)
	}
	return out
}

// CacheFrame overwrites the latest frame for a student.
func (r *Registry) CacheFrame(studentID, payload string) {
	r.mu.Lock()
	r.frames[studentID] = payload
	r.mu.Unlock()
}

// LatestFrame returns the cached frame for a student, if any. Serves late
// subscribers without waiting for the next frame push.
func (r *Registry) LatestFrame(studentID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payload, ok := r.frames[studentID]
	return payload, ok
}

// Stats reports registry counters for /health and the overview query.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"students_online": len(r.students),
		"live_frames":     len(r.frames),
		"observers":       len(r.observers),
	}
}
