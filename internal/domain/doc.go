// Package domain models vehicle breadcrumb telemetry from a CAD/AVL feed.
//
// # Data Source
//
// Each message on the bus is one JSON object per GPS sample ("breadcrumb")
// emitted by a vehicle's on-board unit. The fields of interest:
//
//	EVENT_NO_TRIP   trip identifier the sample belongs to
//	ACT_TIME        seconds elapsed since the start of the operating date
//	OPD_DATE        operating date, "DDMonYYYY" with an optional ":HH:MM:SS"
//	                suffix that is always midnight, e.g. "01JAN2024:00:00:00"
//	VEHICLE_ID      vehicle identifier
//	METERS          odometer reading in meters, may be absent
//	GPS_LATITUDE    WGS-84 latitude
//	GPS_LONGITUDE   WGS-84 longitude
//	GPS_SATELLITES  satellites in view (quality hint, not validated)
//	GPS_HDOP        horizontal dilution of precision (quality hint)
//
// Numeric fields arrive as either JSON numbers or numeric strings depending
// on the upstream encoder; validation accepts both.
//
// # Validation
//
// A sample must lie inside the service-area bounding box (latitude 45–46,
// longitude -124 to -122), carry a non-negative odometer when one is present,
// and name the trip it belongs to. Checks run in a fixed order and the first
// violated rule is reported verbatim, so rejection counts can be broken down
// per rule. See [ValidateRawEvent].
//
// # Derived fields
//
// The absolute sample timestamp is OPD_DATE plus ACT_TIME seconds. Speed is
// the per-trip forward difference of odometer over time, with the first sample
// of each trip back-filled from the second and negative differences clamped to
// zero. The derivation deliberately does no smoothing and does not distinguish
// odometer resets from sensor noise. See [Normalize].
//
// # Trips
//
// A trip row is derived once per distinct trip identifier in a batch. Its
// service key comes from the operating date's weekday (Mon–Fri Weekday,
// Sat Saturday, Sun Sunday). Route and direction default to 0 and "Out";
// enrichment from schedule data is out of scope. Trips are immutable once
// first observed; the store never overwrites an existing row.
package domain
