package domain

import "time"

// Field names as they appear in the CAD/AVL breadcrumb feed.
const (
	FieldTripID     = "EVENT_NO_TRIP"
	FieldActTime    = "ACT_TIME"
	FieldOpdDate    = "OPD_DATE"
	FieldVehicleID  = "VEHICLE_ID"
	FieldMeters     = "METERS"
	FieldLatitude   = "GPS_LATITUDE"
	FieldLongitude  = "GPS_LONGITUDE"
	FieldSatellites = "GPS_SATELLITES"
	FieldHDOP       = "GPS_HDOP"
)

// RawEvent is the decoded JSON payload of one bus message, before any
// validation. Field values arrive as JSON numbers or strings depending on
// the upstream encoder, so everything stays untyped until validation.
type RawEvent map[string]any

// Breadcrumb is one validated GPS+odometer sample for a vehicle.
// The operating date and activity time are kept separate until
// normalization; OperatingDate is truncated to midnight.
type Breadcrumb struct {
	TripID        int64
	VehicleID     int64
	ActTime       int64 // seconds since the start of the operating date
	OperatingDate time.Time
	Meters        *float64 // odometer reading; nil when unreported
	Latitude      float64
	Longitude     float64
	Satellites    *int64
	HDOP          *float64
}

// NormalizedBreadcrumb is a breadcrumb with its absolute timestamp and
// derived speed. Instances live only for the duration of one flush.
type NormalizedBreadcrumb struct {
	Breadcrumb
	Timestamp time.Time `json:"tstamp"`
	Speed     float64   `json:"speed"` // meters per second, never negative
}

// ServiceKey classifies a trip's operating day.
type ServiceKey string

const (
	ServiceWeekday  ServiceKey = "Weekday"
	ServiceSaturday ServiceKey = "Saturday"
	ServiceSunday   ServiceKey = "Sunday"
)

// Trip is the trip-level row derived from a batch of breadcrumbs. Trips are
// immutable once first observed; the store inserts with ON CONFLICT DO NOTHING.
type Trip struct {
	TripID     int64
	RouteID    int64 // 0 until a richer route source exists
	VehicleID  int64
	ServiceKey ServiceKey
	Direction  string // "Out" until a richer direction source exists
}
