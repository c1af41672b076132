package relay

import (
	"go.uber.org/zap"

	"proctorhub/internal/websocket"
	"proctorhub/pkg/types"
)

// Relay fans events out to the currently registered observers. Delivery is
// best-effort and at-most-once per observer per event: a failed send is
// logged and skipped, never fatal to the batch and never rolled back into
// the frame cache or the violation log. There is no queuing beyond each
// connection's own buffered writer; a slow observer stalling one send is an
// accepted tradeoff at classroom scale.
type Relay struct {
	registry *websocket.Registry
	logger   *zap.Logger
}

func New(registry *websocket.Registry, logger *zap.Logger) *Relay {
	return &Relay{
		registry: registry,
		logger:   logger,
	}
}

// BroadcastFrame caches the student's latest frame, then pushes it to every
// observer. The cache update stands even if every delivery fails.
func (r *Relay) BroadcastFrame(studentID, payload string) {
	r.registry.CacheFrame(studentID, payload)

	msg := types.ScreenMessage{
		Type:      types.MessageTypeScreen,
		StudentID: studentID,
		Image:     payload,
	}

	for _, observer := range r.registry.Observers() {
		if err := observer.WriteJSON(msg); err != nil {
			r.logger.Warn("frame delivery to observer failed",
				zap.String("student_id", studentID), zap.Error(err))
		}
	}
}

// SendCachedFrame delivers the cached frame for a student to one observer,
// on explicit subscribe. No cached frame is a silent no-op.
func (r *Relay) SendCachedFrame(observer *websocket.Connection, studentID string) {
	payload, ok := r.registry.LatestFrame(studentID)
	if !ok {
		return
	}

	msg := types.ScreenMessage{
		Type:      types.MessageTypeScreen,
		StudentID: studentID,
		Image:     payload,
	}
	if err := observer.WriteJSON(msg); err != nil {
		r.logger.Warn("cached frame delivery failed",
			zap.String("student_id", studentID), zap.Error(err))
	}
}

// BroadcastViolation pushes a violation alert to every observer and returns
// how many deliveries succeeded. Zero observers is valid and non-fatal.
func (r *Relay) BroadcastViolation(record types.ViolationRecord) int {
	alert := types.ViolationAlert{
		Type:          types.MessageTypeViolationAlert,
		StudentID:     record.StudentID,
		ViolationType: record.ViolationType,
		Detail:        record.Detail,
		OccurredAt:    record.OccurredAt,
	}

	notified := 0
	observers := r.registry.Observers()
	for _, observer := range observers {
		if err := observer.WriteJSON(alert); err != nil {
			r.logger.Warn("violation alert delivery failed",
				zap.String("student_id", record.StudentID),
				zap.String("violation_type", record.ViolationType),
				zap.Error(err))
			continue
		}
		notified++
	}

	if len(observers) == 0 {
		r.logger.Debug("no observers connected for violation alert",
			zap.String("student_id", record.StudentID))
	}

	return notified
}
