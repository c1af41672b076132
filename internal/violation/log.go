package violation

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proctorhub/pkg/types"
)

// Log is the append-only in-memory violation history. Records are kept in
// arrival order for audit; analytics re-sort by OccurredAt themselves. There
// is no eviction and no persistence; the log starts empty on every restart.
type Log struct {
	mu      sync.RWMutex
	records []types.ViolationRecord
	logger  *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{
		records: make([]types.ViolationRecord, 0, 256),
		logger:  logger,
	}
}

// Ingest builds a record from raw detector input, normalizes the timestamp,
// and appends it. It never fails the caller: a malformed timestamp degrades
// to "now" (logged at debug so silent misattribution stays visible).
func (l *Log) Ingest(studentID, violationType, detail, rawTimestamp string) types.ViolationRecord {
	occurredAt, parsed := normalize(rawTimestamp)
	if rawTimestamp != "" && !parsed {
		l.logger.Debug("unparseable timestamp, falling back to now",
			zap.String("raw", rawTimestamp),
			zap.String("student_id", studentID))
	}

	record := types.ViolationRecord{
		ID:            uuid.New().String(),
		StudentID:     studentID,
		ViolationType: violationType,
		Detail:        detail,
		OccurredAt:    occurredAt,
	}

	l.Append(record)
	return record
}

// Append adds a record in arrival order. Records without an ID get one
// assigned so archive and alert payloads stay correlatable.
func (l *Log) Append(record types.ViolationRecord) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()

	l.logger.Info("violation recorded",
		zap.String("student_id", record.StudentID),
		zap.String("violation_type", record.ViolationType),
		zap.Time("occurred_at", record.OccurredAt))
}

// Snapshot returns a copy of the full log in arrival order. Callers own the
// returned slice and may re-sort it freely.
func (l *Log) Snapshot() []types.ViolationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.ViolationRecord, len(l.records))
	copy(out, l.records)
	return out
}

// ByStudent returns the student's records in arrival order.
func (l *Log) ByStudent(studentID string) []types.ViolationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.ViolationRecord
	for _, record := range l.records {
		if record.StudentID == studentID {
			out = append(out, record)
		}
	}
	return out
}

// Len reports the current record count. Surfaced through /health so
// unbounded growth is at least observable.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
