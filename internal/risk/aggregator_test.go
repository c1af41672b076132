package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorhub/pkg/types"
)

func TestRecencyFactor(t *testing.T) {
	assert.Equal(t, 1.0, RecencyFactor(0), "fresh incident carries full weight")
	assert.Equal(t, 0.5, RecencyFactor(20*time.Minute))
	assert.Less(t, RecencyFactor(21*time.Minute), 0.5, "older than 20 minutes decays below half")
	assert.Greater(t, RecencyFactor(24*time.Hour), 0.0, "factor never reaches zero")

	// Clock skew can make an event look like it is from the future; it must
	// not be weighted above a fresh one.
	assert.Equal(t, 1.0, RecencyFactor(-5*time.Minute))
}

func TestLevelBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, types.RiskLevelLow},
		{6.99, types.RiskLevelLow},
		{7.00, types.RiskLevelMedium},
		{14.99, types.RiskLevelMedium},
		{15.00, types.RiskLevelHigh},
		{29.99, types.RiskLevelHigh},
		{30.00, types.RiskLevelCritical},
		{100, types.RiskLevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.score), "Level(%v)", tt.score)
	}
}

func TestBaseWeight(t *testing.T) {
	assert.Equal(t, 2.0, BaseWeight("tab_switch"))
	assert.Equal(t, 2.5, BaseWeight("face_not_found"))
	assert.Equal(t, 4.0, BaseWeight("multiple_faces"))
	assert.Equal(t, 5.0, BaseWeight("phone_detected"))
	assert.Equal(t, 3.0, BaseWeight("suspicious_window"))
	assert.Equal(t, 1.5, BaseWeight("never_seen_before"))
}

func record(studentID, violationType string, occurredAt time.Time) types.ViolationRecord {
	return types.ViolationRecord{
		StudentID:     studentID,
		ViolationType: violationType,
		OccurredAt:    occurredAt,
	}
}

func TestComputeRisksSingleStudent(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	summaries := ComputeRisks([]types.ViolationRecord{
		record("s1", "phone_detected", now),
		record("s1", "tab_switch", now.Add(-20*time.Minute)),
	}, now)

	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "s1", s.StudentID)
	assert.Equal(t, 2, s.Incidents)
	// 5.0*1.0 + 2.0*0.5 = 6.0
	assert.Equal(t, 6.0, s.RiskScore)
	assert.Equal(t, types.RiskLevelLow, s.RiskLevel)
	assert.True(t, s.LastIncidentAt.Equal(now))
	assert.Equal(t, "phone_detected", s.TopViolationType)
}

func TestComputeRisksScoreRounding(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	// 2.0 / (1 + 7/20) = 1.48148... rounds to 1.48.
	summaries := ComputeRisks([]types.ViolationRecord{
		record("s1", "tab_switch", now.Add(-7*time.Minute)),
	}, now)

	require.Len(t, summaries, 1)
	assert.Equal(t, 1.48, summaries[0].RiskScore)
}

func TestComputeRisksRanking(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	summaries := ComputeRisks([]types.ViolationRecord{
		record("quiet", "tab_switch", now),
		record("busy", "phone_detected", now),
		record("busy", "phone_detected", now),
	}, now)

	require.Len(t, summaries, 2)
	assert.Equal(t, "busy", summaries[0].StudentID)
	assert.Equal(t, "quiet", summaries[1].StudentID)
}

func TestComputeRisksTieBrokenByIncidents(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	// one_big: 4.0 from a single incident. two_small: 4.0 from two.
	summaries := ComputeRisks([]types.ViolationRecord{
		record("one_big", "multiple_faces", now),
		record("two_small", "tab_switch", now),
		record("two_small", "tab_switch", now),
	}, now)

	require.Len(t, summaries, 2)
	assert.Equal(t, summaries[0].RiskScore, summaries[1].RiskScore)
	assert.Equal(t, "two_small", summaries[0].StudentID, "equal score ties go to more incidents")
}

func TestComputeRisksExactTieIsStable(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	summaries := ComputeRisks([]types.ViolationRecord{
		record("first_seen", "tab_switch", now),
		record("second_seen", "tab_switch", now),
	}, now)

	require.Len(t, summaries, 2)
	assert.Equal(t, "first_seen", summaries[0].StudentID)
	assert.Equal(t, "second_seen", summaries[1].StudentID)

	// Determinism: recomputation yields the identical order.
	again := ComputeRisks([]types.ViolationRecord{
		record("first_seen", "tab_switch", now),
		record("second_seen", "tab_switch", now),
	}, now)
	assert.Equal(t, summaries, again)
}

func TestComputeRisksScoreMonotonicInIncidents(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	records := []types.ViolationRecord{}
	prev := 0.0
	for i := 0; i < 10; i++ {
		records = append(records, record("s1", "tab_switch", now.Add(-time.Duration(i)*time.Hour)))
		summaries := ComputeRisks(records, now)
		require.Len(t, summaries, 1)
		assert.GreaterOrEqual(t, summaries[0].RiskScore, prev,
			"adding an incident must never lower the score")
		prev = summaries[0].RiskScore
	}
}

func TestComputeRisksDominantTypeTieBreak(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	// tab_switch and phone_detected both occur twice; tab_switch arrived first.
	summaries := ComputeRisks([]types.ViolationRecord{
		record("s1", "tab_switch", now),
		record("s1", "phone_detected", now),
		record("s1", "phone_detected", now),
		record("s1", "tab_switch", now),
	}, now)

	require.Len(t, summaries, 1)
	assert.Equal(t, "tab_switch", summaries[0].TopViolationType)
}

func TestComputeRisksEmpty(t *testing.T) {
	assert.Empty(t, ComputeRisks(nil, time.Now()))
}
