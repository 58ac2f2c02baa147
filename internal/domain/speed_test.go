package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func sample(trip int64, actTime int64, meters float64) Breadcrumb {
	m := meters
	return Breadcrumb{
		TripID:        trip,
		VehicleID:     3909,
		ActTime:       actTime,
		OperatingDate: testDate,
		Meters:        &m,
		Latitude:      45.52,
		Longitude:     -122.68,
	}
}

func speeds(rows []NormalizedBreadcrumb) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Speed
	}
	return out
}

func TestNormalize_Timestamps(t *testing.T) {
	rows := Normalize([]Breadcrumb{sample(100, 36010, 50)})
	require.Len(t, rows, 1)
	assert.Equal(t, testDate.Add(36010*time.Second), rows[0].Timestamp)
}

func TestNormalize_SpeedDerivation(t *testing.T) {
	t.Run("backfill and forward difference", func(t *testing.T) {
		// 0s/10s/20s at odometer 0/50/120: speeds 5.0 then 7.0, with the
		// first sample back-filled from the second.
		rows := Normalize([]Breadcrumb{
			sample(100, 0, 0),
			sample(100, 10, 50),
			sample(100, 20, 120),
		})
		assert.Equal(t, []float64{5.0, 5.0, 7.0}, speeds(rows))
	})

	t.Run("single sample trip has zero speed", func(t *testing.T) {
		rows := Normalize([]Breadcrumb{sample(100, 0, 500)})
		assert.Equal(t, []float64{0.0}, speeds(rows))
	})

	t.Run("negative difference clamps to zero", func(t *testing.T) {
		// Odometer reset mid-trip reads as a stall, not reverse travel.
		rows := Normalize([]Breadcrumb{
			sample(100, 0, 1000),
			sample(100, 10, 0),
			sample(100, 20, 80),
		})
		assert.Equal(t, []float64{0.0, 0.0, 8.0}, speeds(rows))
	})

	t.Run("unsorted input is sorted before derivation", func(t *testing.T) {
		rows := Normalize([]Breadcrumb{
			sample(100, 20, 120),
			sample(100, 0, 0),
			sample(100, 10, 50),
		})
		require.Len(t, rows, 3)
		assert.True(t, rows[0].Timestamp.Before(rows[1].Timestamp))
		assert.True(t, rows[1].Timestamp.Before(rows[2].Timestamp))
		assert.Equal(t, []float64{5.0, 5.0, 7.0}, speeds(rows))
	})

	t.Run("trips derive independently", func(t *testing.T) {
		rows := Normalize([]Breadcrumb{
			sample(200, 0, 0),
			sample(100, 0, 0),
			sample(100, 10, 100),
			sample(200, 10, 30),
		})
		require.Len(t, rows, 4)
		assert.Equal(t, int64(100), rows[0].TripID)
		assert.Equal(t, int64(200), rows[2].TripID)
		assert.Equal(t, []float64{10.0, 10.0, 3.0, 3.0}, speeds(rows))
	})

	t.Run("missing odometer yields zero for the pair", func(t *testing.T) {
		noOdo := sample(100, 10, 0)
		noOdo.Meters = nil
		rows := Normalize([]Breadcrumb{
			sample(100, 0, 0),
			noOdo,
			sample(100, 20, 120),
		})
		assert.Equal(t, []float64{0.0, 0.0, 0.0}, speeds(rows))
	})

	t.Run("never negative", func(t *testing.T) {
		rows := Normalize([]Breadcrumb{
			sample(100, 0, 900),
			sample(100, 5, 850),
			sample(100, 10, 700),
			sample(100, 15, 710),
		})
		for _, s := range speeds(rows) {
			assert.GreaterOrEqual(t, s, 0.0)
		}
	})
}

func TestDeduplicateRows(t *testing.T) {
	rows := Normalize([]Breadcrumb{
		sample(100, 0, 0),
		sample(100, 10, 50),
		sample(100, 10, 55), // duplicate (timestamp, trip)
		sample(200, 10, 50), // same timestamp, different trip
	})
	require.Len(t, rows, 4)

	deduped := DeduplicateRows(rows)
	require.Len(t, deduped, 3)

	// First occurrence wins: trip 100 keeps the odometer-50 row.
	require.NotNil(t, deduped[1].Meters)
	assert.Equal(t, 50.0, *deduped[1].Meters)
	assert.Equal(t, int64(200), deduped[2].TripID)
}
