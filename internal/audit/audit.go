// Package audit runs data-quality checks over one normalized breadcrumb batch.
//
// The auditor is strictly a reporting pass: findings are warnings attached to
// an otherwise-successful batch and never block the write path or mutate the
// rows. The one exception in the wider pipeline is duplicates, which the
// flush path removes itself after the auditor has flagged them.
package audit

import (
	"fmt"
	"math"
	"sort"

	"github.com/whimsydata/breadcrumb-etl/internal/domain"
)

// Finding rule identifiers.
const (
	RuleNegativeSpeed    = "negative_speed"
	RuleSpeedOutlier     = "speed_outlier"
	RuleImplausibleTrip  = "implausible_trip_speed"
	RuleNonMonotonicTrip = "non_monotonic_timestamps"
	RuleDuplicateSample  = "duplicate_sample"
	RuleSkewedSpeeds     = "skewed_speed_distribution"
)

// Thresholds for the statistical checks.
const (
	outlierZScore     = 3.0
	implausibleMeanMS = 30.0 // mean trip speed above this is flagged, m/s
)

// Finding is one triggered audit rule with the affected row indexes into the
// audited batch.
type Finding struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
	Rows   []int  `json:"rows,omitempty"`
}

// Run executes the full check battery over a normalized batch, which is
// expected to be sorted by (trip, timestamp). The batch is never modified.
func Run(rows []domain.NormalizedBreadcrumb) []Finding {
	if len(rows) == 0 {
		return nil
	}

	var findings []Finding
	appendFinding := func(f Finding, rowCount int) {
		if rowCount > 0 {
			findings = append(findings, f)
		}
	}

	appendFinding(checkNegativeSpeeds(rows))
	appendFinding(checkSpeedOutliers(rows))
	appendFinding(checkImplausibleTrips(rows))
	appendFinding(checkMonotonicity(rows))
	appendFinding(checkDuplicates(rows))

	if f, triggered := checkDistributionSkew(rows); triggered {
		findings = append(findings, f)
	}
	return findings
}

// checkNegativeSpeeds should find nothing after clamping; a hit indicates a
// bug in speed derivation, not bad input.
func checkNegativeSpeeds(rows []domain.NormalizedBreadcrumb) (Finding, int) {
	var hit []int
	for i, r := range rows {
		if r.Speed < 0 {
			hit = append(hit, i)
		}
	}
	return Finding{
		Rule:   RuleNegativeSpeed,
		Detail: fmt.Sprintf("%d rows with negative speed after clamping", len(hit)),
		Rows:   hit,
	}, len(hit)
}

// checkSpeedOutliers flags samples whose speed lies more than three standard
// deviations from the batch mean (population z-score).
func checkSpeedOutliers(rows []domain.NormalizedBreadcrumb) (Finding, int) {
	mean, stddev := speedMoments(rows)
	if stddev == 0 {
		return Finding{}, 0
	}
	var hit []int
	for i, r := range rows {
		if math.Abs((r.Speed-mean)/stddev) > outlierZScore {
			hit = append(hit, i)
		}
	}
	return Finding{
		Rule:   RuleSpeedOutlier,
		Detail: fmt.Sprintf("%d samples beyond %.0f standard deviations from mean %.2f m/s", len(hit), outlierZScore, mean),
		Rows:   hit,
	}, len(hit)
}

// checkImplausibleTrips flags trips whose mean speed exceeds 30 m/s, well
// above anything a transit vehicle sustains in revenue service.
func checkImplausibleTrips(rows []domain.NormalizedBreadcrumb) (Finding, int) {
	sums := map[int64]float64{}
	counts := map[int64]int{}
	for _, r := range rows {
		sums[r.TripID] += r.Speed
		counts[r.TripID]++
	}

	flagged := map[int64]bool{}
	for trip, sum := range sums {
		if sum/float64(counts[trip]) > implausibleMeanMS {
			flagged[trip] = true
		}
	}

	var hit []int
	for i, r := range rows {
		if flagged[r.TripID] {
			hit = append(hit, i)
		}
	}
	return Finding{
		Rule:   RuleImplausibleTrip,
		Detail: fmt.Sprintf("%d trips with mean speed above %.0f m/s", len(flagged), implausibleMeanMS),
		Rows:   hit,
	}, len(hit)
}

// checkMonotonicity flags rows where a trip's timestamps go backwards in the
// presented order. Equal timestamps are allowed; those are the duplicate
// check's concern.
func checkMonotonicity(rows []domain.NormalizedBreadcrumb) (Finding, int) {
	flagged := map[int64]bool{}
	var hit []int
	for i := 1; i < len(rows); i++ {
		if rows[i].TripID != rows[i-1].TripID {
			continue
		}
		if rows[i].Timestamp.Before(rows[i-1].Timestamp) {
			flagged[rows[i].TripID] = true
			hit = append(hit, i)
		}
	}
	return Finding{
		Rule:   RuleNonMonotonicTrip,
		Detail: fmt.Sprintf("%d trips with out-of-order timestamps", len(flagged)),
		Rows:   hit,
	}, len(hit)
}

// checkDuplicates flags every occurrence of a (timestamp, trip) pair after
// the first. The flush path deduplicates by keeping the first occurrence.
func checkDuplicates(rows []domain.NormalizedBreadcrumb) (Finding, int) {
	type key struct {
		ts   int64
		trip int64
	}
	seen := make(map[key]bool, len(rows))
	var hit []int
	for i, r := range rows {
		k := key{ts: r.Timestamp.UnixNano(), trip: r.TripID}
		if seen[k] {
			hit = append(hit, i)
			continue
		}
		seen[k] = true
	}
	return Finding{
		Rule:   RuleDuplicateSample,
		Detail: fmt.Sprintf("%d duplicate (timestamp, trip) samples", len(hit)),
		Rows:   hit,
	}, len(hit)
}

// checkDistributionSkew is a sanity heuristic on the speed distribution:
// strictly-below-median samples should be a majority of the batch. The exact
// intent of the threshold is inherited from the source system; it stays a
// non-blocking warning.
func checkDistributionSkew(rows []domain.NormalizedBreadcrumb) (Finding, bool) {
	median := speedMedian(rows)
	below := 0
	for _, r := range rows {
		if r.Speed < median {
			below++
		}
	}
	if below > len(rows)/2 {
		return Finding{}, false
	}
	return Finding{
		Rule:   RuleSkewedSpeeds,
		Detail: fmt.Sprintf("only %d of %d samples below median speed %.2f m/s", below, len(rows), median),
	}, true
}

func speedMoments(rows []domain.NormalizedBreadcrumb) (mean, stddev float64) {
	n := float64(len(rows))
	for _, r := range rows {
		mean += r.Speed
	}
	mean /= n

	var variance float64
	for _, r := range rows {
		d := r.Speed - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}

func speedMedian(rows []domain.NormalizedBreadcrumb) float64 {
	speeds := make([]float64, len(rows))
	for i, r := range rows {
		speeds[i] = r.Speed
	}
	sort.Float64s(speeds)
	mid := len(speeds) / 2
	if len(speeds)%2 == 1 {
		return speeds[mid]
	}
	return (speeds[mid-1] + speeds[mid]) / 2
}
