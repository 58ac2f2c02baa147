package domain

import (
	"slices"
	"time"
)

// Normalize converts a buffered batch into normalized rows: each breadcrumb
// gets its absolute timestamp (operating date + activity offset) and a derived
// speed. The returned slice is stably sorted by (trip, timestamp, vehicle);
// deterministic ordering is required before speed derivation.
func Normalize(batch []Breadcrumb) []NormalizedBreadcrumb {
	rows := make([]NormalizedBreadcrumb, len(batch))
	for i, bc := range batch {
		rows[i] = NormalizedBreadcrumb{
			Breadcrumb: bc,
			Timestamp:  bc.OperatingDate.Add(time.Duration(bc.ActTime) * time.Second),
		}
	}

	slices.SortStableFunc(rows, func(a, b NormalizedBreadcrumb) int {
		if a.TripID != b.TripID {
			return compare(a.TripID, b.TripID)
		}
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return compare(a.VehicleID, b.VehicleID)
	})

	deriveSpeeds(rows)
	return rows
}

// deriveSpeeds fills the Speed field per trip group using the forward
// difference of odometer over time. The first sample of each trip is
// back-filled with the next computed speed; a single-sample trip gets 0.
// Negative differences clamp to 0: an odometer reset or sensor jitter is
// treated as a stall, not reverse travel.
func deriveSpeeds(rows []NormalizedBreadcrumb) {
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].TripID == rows[start].TripID {
			end++
		}
		for i := start + 1; i < end; i++ {
			rows[i].Speed = clampSpeed(sampleSpeed(rows[i-1], rows[i]))
		}
		if end-start >= 2 {
			rows[start].Speed = rows[start+1].Speed
		}
		start = end
	}
}

// sampleSpeed computes the raw forward-difference speed between consecutive
// samples of one trip. Missing odometer readings or a non-positive time delta
// yield 0 rather than propagating unknowns into the batch.
func sampleSpeed(prev, cur NormalizedBreadcrumb) float64 {
	if prev.Meters == nil || cur.Meters == nil {
		return 0
	}
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return 0
	}
	return (*cur.Meters - *prev.Meters) / dt
}

func clampSpeed(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DeduplicateRows drops rows whose (timestamp, trip) pair was already seen,
// keeping the first occurrence. The auditor flags duplicates; this is the
// companion step that removes them before the bulk write.
func DeduplicateRows(rows []NormalizedBreadcrumb) []NormalizedBreadcrumb {
	type key struct {
		ts   int64
		trip int64
	}
	seen := make(map[key]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := key{ts: r.Timestamp.UnixNano(), trip: r.TripID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
