package risk

import (
	"math"
	"sort"
	"time"

	"proctorhub/pkg/types"
)

// Severity weights per violation type. Unknown types still count, at a
// below-average weight, so a new detector can ship before this table learns
// its type name.
var severityWeights = map[string]float64{
	"tab_switch":        2.0,
	"face_not_found":    2.5,
	"multiple_faces":    4.0,
	"phone_detected":    5.0,
	"suspicious_window": 3.0,
}

const defaultSeverityWeight = 1.5

// BaseWeight returns the severity weight for a violation type.
func BaseWeight(violationType string) float64 {
	if w, ok := severityWeights[violationType]; ok {
		return w
	}
	return defaultSeverityWeight
}

// RecencyFactor is the decay multiplier for an incident of the given age.
// Always in (0,1]: 1.0 at age zero, ~0.5 at twenty minutes, approaching zero
// as the incident fades from relevance. Negative ages (clock skew, fallback
// normalization) clamp to zero.
func RecencyFactor(age time.Duration) float64 {
	ageMinutes := math.Max(age.Minutes(), 0)
	return 1.0 / (1.0 + ageMinutes/20.0)
}

// Level maps a risk score to its level. Total and non-overlapping; boundary
// values land on the higher level.
func Level(score float64) string {
	switch {
	case score >= 30:
		return types.RiskLevelCritical
	case score >= 15:
		return types.RiskLevelHigh
	case score >= 7:
		return types.RiskLevelMedium
	default:
		return types.RiskLevelLow
	}
}

// accumulator carries one student's fold state across records.
type accumulator struct {
	incidents      int
	score          float64
	lastIncidentAt time.Time
	typeCounts     map[string]int
	typeOrder      []string
}

// ComputeRisks folds the record set into per-student summaries evaluated at
// the given instant, ranked descending by (risk_score, incidents). Exact ties
// keep the students' first-appearance order in the record set, so the ranking
// is a deterministic total order for a fixed log.
func ComputeRisks(records []types.ViolationRecord, now time.Time) []types.StudentRiskSummary {
	byStudent := make(map[string]*accumulator)
	var studentOrder []string

	for _, record := range records {
		acc, ok := byStudent[record.StudentID]
		if !ok {
			acc = &accumulator{typeCounts: make(map[string]int)}
			byStudent[record.StudentID] = acc
			studentOrder = append(studentOrder, record.StudentID)
		}

		acc.incidents++
		acc.score += BaseWeight(record.ViolationType) * RecencyFactor(now.Sub(record.OccurredAt))

		if _, seen := acc.typeCounts[record.ViolationType]; !seen {
			acc.typeOrder = append(acc.typeOrder, record.ViolationType)
		}
		acc.typeCounts[record.ViolationType]++

		if record.OccurredAt.After(acc.lastIncidentAt) {
			acc.lastIncidentAt = record.OccurredAt
		}
	}

	summaries := make([]types.StudentRiskSummary, 0, len(studentOrder))
	for _, studentID := range studentOrder {
		acc := byStudent[studentID]
		score := math.Round(acc.score*100) / 100

		summaries = append(summaries, types.StudentRiskSummary{
			StudentID:        studentID,
			Incidents:        acc.incidents,
			RiskScore:        score,
			RiskLevel:        Level(score),
			LastIncidentAt:   acc.lastIncidentAt,
			TopViolationType: acc.dominantType(),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].RiskScore != summaries[j].RiskScore {
			return summaries[i].RiskScore > summaries[j].RiskScore
		}
		return summaries[i].Incidents > summaries[j].Incidents
	})

	return summaries
}

// dominantType is the most frequent violation type, ties broken by which
// type arrived first.
func (a *accumulator) dominantType() string {
	best := ""
	bestCount := 0
	for _, violationType := range a.typeOrder {
		if count := a.typeCounts[violationType]; count > bestCount {
			best = violationType
			bestCount = count
		}
	}
	return best
}
