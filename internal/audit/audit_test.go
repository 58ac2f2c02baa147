package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whimsydata/breadcrumb-etl/internal/audit"
	"github.com/whimsydata/breadcrumb-etl/internal/domain"
)

var testDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func row(trip int64, sec int64, speed float64) domain.NormalizedBreadcrumb {
	return domain.NormalizedBreadcrumb{
		Breadcrumb: domain.Breadcrumb{
			TripID:        trip,
			VehicleID:     3909,
			ActTime:       sec,
			OperatingDate: testDate,
		},
		Timestamp: testDate.Add(time.Duration(sec) * time.Second),
		Speed:     speed,
	}
}

func findByRule(findings []audit.Finding, rule string) (audit.Finding, bool) {
	for _, f := range findings {
		if f.Rule == rule {
			return f, true
		}
	}
	return audit.Finding{}, false
}

func TestRun_EmptyBatch(t *testing.T) {
	assert.Nil(t, audit.Run(nil))
}

func TestRun_NegativeSpeed(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{
		row(100, 0, 5),
		row(100, 10, -2), // can only happen if clamping is broken
	}

	f, ok := findByRule(audit.Run(rows), audit.RuleNegativeSpeed)
	require.True(t, ok)
	assert.Equal(t, []int{1}, f.Rows)
}

func TestRun_NoNegativeSpeedFindingPostClamp(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{row(100, 0, 5), row(100, 10, 0)}
	_, ok := findByRule(audit.Run(rows), audit.RuleNegativeSpeed)
	assert.False(t, ok)
}

func TestRun_SpeedOutlier(t *testing.T) {
	// Ten stalls and one fast sample; the fast one sits past three standard
	// deviations of the batch.
	rows := make([]domain.NormalizedBreadcrumb, 0, 11)
	for i := range 10 {
		rows = append(rows, row(100, int64(i*10), 0))
	}
	rows = append(rows, row(100, 100, 10))

	f, ok := findByRule(audit.Run(rows), audit.RuleSpeedOutlier)
	require.True(t, ok)
	assert.Equal(t, []int{10}, f.Rows)
}

func TestRun_SpeedOutlier_SkippedWhenUniform(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{row(100, 0, 5), row(100, 10, 5)}
	_, ok := findByRule(audit.Run(rows), audit.RuleSpeedOutlier)
	assert.False(t, ok, "zero stddev batch has no outliers")
}

func TestRun_ImplausibleTripSpeed(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{
		row(100, 0, 40),
		row(100, 10, 35),
		row(200, 0, 10),
	}

	f, ok := findByRule(audit.Run(rows), audit.RuleImplausibleTrip)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, f.Rows)
}

func TestRun_NonMonotonicTimestamps(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{
		row(100, 20, 5),
		row(100, 10, 5), // goes backwards
		row(100, 30, 5),
	}

	f, ok := findByRule(audit.Run(rows), audit.RuleNonMonotonicTrip)
	require.True(t, ok)
	assert.Equal(t, []int{1}, f.Rows)
}

func TestRun_MonotonicityAllowsEqualTimestamps(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{
		row(100, 10, 5),
		row(100, 10, 5),
	}
	_, ok := findByRule(audit.Run(rows), audit.RuleNonMonotonicTrip)
	assert.False(t, ok)
}

func TestRun_DuplicateSamples(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{
		row(100, 10, 5),
		row(100, 10, 6), // duplicate (timestamp, trip)
		row(200, 10, 5), // different trip, not a duplicate
	}

	f, ok := findByRule(audit.Run(rows), audit.RuleDuplicateSample)
	require.True(t, ok)
	assert.Equal(t, []int{1}, f.Rows)
}

func TestRun_DistributionSkew(t *testing.T) {
	// Strictly-below-median samples can never exceed half the batch, so the
	// inherited heuristic fires on essentially every batch. It stays a
	// warning, never an error.
	rows := []domain.NormalizedBreadcrumb{
		row(100, 0, 5),
		row(100, 10, 5),
		row(100, 20, 5),
	}

	f, ok := findByRule(audit.Run(rows), audit.RuleSkewedSpeeds)
	require.True(t, ok)
	assert.Empty(t, f.Rows)
	assert.Contains(t, f.Detail, "below median")
}

func TestRun_FindingsNeverMutateBatch(t *testing.T) {
	rows := []domain.NormalizedBreadcrumb{
		row(100, 10, 5),
		row(100, 10, 6),
	}
	before := make([]domain.NormalizedBreadcrumb, len(rows))
	copy(before, rows)

	audit.Run(rows)
	assert.Equal(t, before, rows)
}
