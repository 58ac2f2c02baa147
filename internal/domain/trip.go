package domain

import "time"

// ServiceKeyFor maps an operating date's weekday onto the service calendar:
// Monday through Friday are Weekday, Saturday and Sunday their own keys.
func ServiceKeyFor(operatingDate time.Time) ServiceKey {
	switch operatingDate.Weekday() {
	case time.Saturday:
		return ServiceSaturday
	case time.Sunday:
		return ServiceSunday
	default:
		return ServiceWeekday
	}
}

// BuildTrips derives one Trip row per distinct trip in a normalized batch.
// The first sample observed for a trip supplies its vehicle and operating
// date. Route and direction fall back to the documented placeholders (route 0,
// direction "Out") until a richer source exists.
func BuildTrips(rows []NormalizedBreadcrumb) []Trip {
	seen := make(map[int64]struct{}, len(rows))
	trips := make([]Trip, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.TripID]; ok {
			continue
		}
		seen[r.TripID] = struct{}{}
		trips = append(trips, Trip{
			TripID:     r.TripID,
			RouteID:    0,
			VehicleID:  r.VehicleID,
			ServiceKey: ServiceKeyFor(r.OperatingDate),
			Direction:  "Out",
		})
	}
	return trips
}
