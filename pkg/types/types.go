package types

import (
	"time"
)

// Message type constants shared by the relay and both client roles.
// Every pushed message carries one of these in its "type" field.
const (
	MessageTypeScreen         = "screen"
	MessageTypeSubscribe      = "subscribe"
	MessageTypeViolationAlert = "violation_alert"
)

// Connection roles tracked by the registry.
const (
	RoleStudent  = "student"
	RoleObserver = "observer"
)

// Risk levels derived from a risk score. Closed set, non-overlapping.
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// ViolationRecord is a single detector event. Immutable once appended to the
// log. OccurredAt is the normalized event instant; the log preserves arrival
// order separately, so readers must not assume OccurredAt ordering.
type ViolationRecord struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	ViolationType string    `json:"violation_type"`
	Detail        string    `json:"detail"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ClientMessage is the envelope read from student and observer connections.
// Image is only set on screen frames, StudentID on screen and subscribe.
type ClientMessage struct {
	Type      string `json:"type"`
	StudentID string `json:"student_id,omitempty"`
	Image     string `json:"image,omitempty"`
}

// ScreenMessage is pushed to observers when a student produces a frame.
type ScreenMessage struct {
	Type      string `json:"type"`
	StudentID string `json:"student_id"`
	Image     string `json:"image"`
}

// ViolationAlert is pushed to observers when a violation is ingested.
type ViolationAlert struct {
	Type          string    `json:"type"`
	StudentID     string    `json:"student_id"`
	ViolationType string    `json:"violation_type"`
	Detail        string    `json:"detail"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StudentRiskSummary is derived per student at query time and never stored.
type StudentRiskSummary struct {
	StudentID        string    `json:"student_id"`
	Incidents        int       `json:"incidents"`
	RiskScore        float64   `json:"risk_score"`
	RiskLevel        string    `json:"risk_level"`
	LastIncidentAt   time.Time `json:"last_incident_at"`
	TopViolationType string    `json:"top_violation_type"`
}

// TimelineBucket counts incidents within one minute of the timeline window.
// Minute keys use the "2006-01-02 15:04" layout.
type TimelineBucket struct {
	Minute    string `json:"minute"`
	Incidents int    `json:"incidents"`
}

// Overview is the dashboard snapshot assembled by the query surface.
type Overview struct {
	StudentsOnline         int                  `json:"total_students_online"`
	StudentsWithLiveFrames int                  `json:"students_with_live_frames"`
	TotalViolations        int                  `json:"total_violations"`
	ActiveAlertsLast10m    int                  `json:"active_alerts_last_10m"`
	TopRiskyStudents       []StudentRiskSummary `json:"top_risky_students"`
	ViolationTypeBreakdown map[string]int       `json:"violation_type_breakdown"`
}

// Timeline is the windowed per-minute incident view. Peak is nil when the
// window holds no incidents.
type Timeline struct {
	WindowMinutes int              `json:"window_minutes"`
	Points        []TimelineBucket `json:"points"`
	Peak          *TimelineBucket  `json:"peak_minute"`
}

// StudentInsight is the per-student analytics payload. Risk is nil and
// Status is "clean" when the student has no violations on record.
type StudentInsight struct {
	StudentID              string              `json:"student_id"`
	Incidents              int                 `json:"incidents"`
	Status                 string              `json:"status,omitempty"`
	Risk                   *StudentRiskSummary `json:"risk,omitempty"`
	DominantViolationType  string              `json:"dominant_violation_type,omitempty"`
	DominantViolationCount int                 `json:"dominant_violation_count,omitempty"`
	Insight                string              `json:"insight"`
	Recommendation         string              `json:"recommendation"`
}

// Screenshot is one archived frame capture indexed by the archive store.
type Screenshot struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}
