package query

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"proctorhub/internal/risk"
	"proctorhub/internal/violation"
	"proctorhub/pkg/types"
)

const minuteKeyLayout = "2006-01-02 15:04"

// Bounds for the read-side parameters. Enforced again at the HTTP boundary;
// kept here so the service is safe to call directly.
const (
	LeaderboardLimitMin = 1
	LeaderboardLimitMax = 100
	LeaderboardDefault  = 10

	TimelineWindowMin     = 10
	TimelineWindowMax     = 1440
	TimelineWindowDefault = 120
)

var recommendations = map[string]string{
	"tab_switch":     "Ask student to keep only one test window open.",
	"face_not_found": "Request camera angle adjustment.",
	"multiple_faces": "Require immediate room re-check.",
	"phone_detected": "Do a manual integrity check now.",
}

const defaultRecommendation = "Run a short manual check with the student."

// RegistryStats is the slice of the connection registry the query surface
// reads: live counters only, no connection handles.
type RegistryStats interface {
	Stats() map[string]int
}

// Service assembles read-only views over the violation log, the connection
// registry, and the risk aggregator. It holds no state of its own; every
// query starts from a fresh snapshot, so two queries with no intervening
// writes return identical results.
type Service struct {
	log      *violation.Log
	registry RegistryStats
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(log *violation.Log, registry RegistryStats, logger *zap.Logger) *Service {
	return &Service{
		log:      log,
		registry: registry,
		now:      time.Now,
		logger:   logger,
	}
}

// Overview is the dashboard snapshot: connection counters, log totals, the
// five riskiest students, and the per-type breakdown.
func (s *Service) Overview() types.Overview {
	now := s.now()
	records := s.log.Snapshot()
	stats := s.registry.Stats()

	tenMinutesAgo := now.Add(-10 * time.Minute)
	activeAlerts := 0
	breakdown := make(map[string]int)
	for _, record := range records {
		breakdown[record.ViolationType]++
		if !record.OccurredAt.Before(tenMinutesAgo) {
			activeAlerts++
		}
	}

	risks := risk.ComputeRisks(records, now)
	if len(risks) > 5 {
		risks = risks[:5]
	}

	return types.Overview{
		StudentsOnline:         stats["students_online"],
		StudentsWithLiveFrames: stats["live_frames"],
		TotalViolations:        len(records),
		ActiveAlertsLast10m:    activeAlerts,
		TopRiskyStudents:       risks,
		ViolationTypeBreakdown: breakdown,
	}
}

// Leaderboard returns the top-limit risk summaries. Out-of-range limits are
// clamped; the HTTP boundary rejects them before they reach here.
func (s *Service) Leaderboard(limit int) []types.StudentRiskSummary {
	if limit < LeaderboardLimitMin {
		limit = LeaderboardLimitMin
	}
	if limit > LeaderboardLimitMax {
		limit = LeaderboardLimitMax
	}

	risks := risk.ComputeRisks(s.log.Snapshot(), s.now())
	if len(risks) > limit {
		risks = risks[:limit]
	}
	return risks
}

// Timeline buckets the trailing window's incidents per minute. Only minutes
// with at least one incident appear; the earliest maximal bucket is the peak.
func (s *Service) Timeline(windowMinutes int) types.Timeline {
	if windowMinutes < TimelineWindowMin {
		windowMinutes = TimelineWindowMin
	}
	if windowMinutes > TimelineWindowMax {
		windowMinutes = TimelineWindowMax
	}

	now := s.now()
	from := now.Add(-time.Duration(windowMinutes) * time.Minute)

	buckets := make(map[string]int)
	for _, record := range s.log.Snapshot() {
		if record.OccurredAt.Before(from) {
			continue
		}
		buckets[record.OccurredAt.Format(minuteKeyLayout)]++
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	points := make([]types.TimelineBucket, 0, len(keys))
	var peak *types.TimelineBucket
	for _, key := range keys {
		bucket := types.TimelineBucket{Minute: key, Incidents: buckets[key]}
		points = append(points, bucket)
		if peak == nil || bucket.Incidents > peak.Incidents {
			b := bucket
			peak = &b
		}
	}

	return types.Timeline{
		WindowMinutes: windowMinutes,
		Points:        points,
		Peak:          peak,
	}
}

// StudentInsight distills one student's history into a readable verdict: a
// clean payload when nothing is on record, otherwise their risk summary,
// dominant violation, and a recommended intervention.
func (s *Service) StudentInsight(studentID string) types.StudentInsight {
	records := s.log.ByStudent(studentID)

	if len(records) == 0 {
		return types.StudentInsight{
			StudentID:      studentID,
			Incidents:      0,
			Status:         "clean",
			Insight:        "No violations recorded yet.",
			Recommendation: "Keep monitoring in passive mode.",
		}
	}

	risks := risk.ComputeRisks(records, s.now())
	summary := risks[0]

	recommendation, ok := recommendations[summary.TopViolationType]
	if !ok {
		recommendation = defaultRecommendation
	}

	dominantCount := 0
	for _, record := range records {
		if record.ViolationType == summary.TopViolationType {
			dominantCount++
		}
	}

	return types.StudentInsight{
		StudentID:              studentID,
		Incidents:              len(records),
		Risk:                   &summary,
		DominantViolationType:  summary.TopViolationType,
		DominantViolationCount: dominantCount,
		Insight:                fmt.Sprintf("Most repeated issue is '%s'.", summary.TopViolationType),
		Recommendation:         recommendation,
	}
}
