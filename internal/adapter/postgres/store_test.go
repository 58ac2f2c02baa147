package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whimsydata/breadcrumb-etl/internal/domain"
)

func normalizedRow(tripID int64) domain.NormalizedBreadcrumb {
	return domain.NormalizedBreadcrumb{
		Breadcrumb: domain.Breadcrumb{
			TripID:    tripID,
			VehicleID: 3909,
			Latitude:  45.52,
			Longitude: -122.68,
		},
		Timestamp: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Speed:     5,
	}
}

func TestCheckIntegrity(t *testing.T) {
	trips := []domain.Trip{{TripID: 100, VehicleID: 3909, ServiceKey: domain.ServiceWeekday, Direction: "Out"}}

	t.Run("valid batch passes", func(t *testing.T) {
		rows := []domain.NormalizedBreadcrumb{normalizedRow(100)}
		assert.NoError(t, checkIntegrity(trips, rows))
	})

	t.Run("row without trip id rejected", func(t *testing.T) {
		rows := []domain.NormalizedBreadcrumb{normalizedRow(100), normalizedRow(0)}
		err := checkIntegrity(trips, rows)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingTripID)
	})

	t.Run("trip without id rejected", func(t *testing.T) {
		bad := []domain.Trip{{TripID: 0}}
		err := checkIntegrity(bad, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingTripID)
	})
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := assert.AnError
	err := &StorageError{Op: "commit", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "commit")
}
