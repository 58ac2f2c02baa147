package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Geographic bounds of the service area. Samples outside this box are GPS
// glitches as far as the pipeline is concerned.
const (
	MinLatitude  = 45.0
	MaxLatitude  = 46.0
	MinLongitude = -124.0
	MaxLongitude = -122.0
)

// Validation rule identifiers, reported with each rejection so operators can
// see which rule fired rather than a generic error.
const (
	RuleDecode         = "decode"
	RuleCoordinates    = "coordinates_present"
	RuleLatitudeRange  = "latitude_range"
	RuleLongitudeRange = "longitude_range"
	RuleOdometer       = "odometer_non_negative"
	RuleTripID         = "trip_id_present"
	RuleOperatingDate  = "operating_date"
	RuleActTime        = "act_time_non_negative"
	RuleVehicleID      = "vehicle_id"
)

// ValidationError reports the first rule a raw event violated.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Detail)
}

func reject(rule, format string, args ...any) error {
	return &ValidationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// opdDateLayout parses the feed's operating-date prefix, e.g. "01JAN2024".
// time.Parse matches month names case-insensitively, so the feed's uppercase
// months parse without preprocessing.
const opdDateLayout = "02Jan2006"

// DecodeRawEvent unmarshals one message payload into a RawEvent.
func DecodeRawEvent(data []byte) (RawEvent, error) {
	var raw RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, reject(RuleDecode, "invalid JSON: %v", err)
	}
	return raw, nil
}

// ValidateRawEvent checks a raw event against the breadcrumb invariants and
// returns the typed breadcrumb. Checks run in a fixed order and short-circuit
// on the first violation. The function is pure; rejection never mutates state.
func ValidateRawEvent(raw RawEvent) (Breadcrumb, error) {
	lat, latOK := floatField(raw, FieldLatitude)
	lon, lonOK := floatField(raw, FieldLongitude)
	if !latOK || !lonOK {
		return Breadcrumb{}, reject(RuleCoordinates, "latitude or longitude missing or non-numeric")
	}
	if lat < MinLatitude || lat > MaxLatitude {
		return Breadcrumb{}, reject(RuleLatitudeRange, "latitude %v outside [%v, %v]", lat, MinLatitude, MaxLatitude)
	}
	if lon < MinLongitude || lon > MaxLongitude {
		return Breadcrumb{}, reject(RuleLongitudeRange, "longitude %v outside [%v, %v]", lon, MinLongitude, MaxLongitude)
	}

	var meters *float64
	if present(raw, FieldMeters) {
		m, ok := floatField(raw, FieldMeters)
		if !ok || m < 0 {
			return Breadcrumb{}, reject(RuleOdometer, "odometer %v is negative or non-numeric", raw[FieldMeters])
		}
		meters = &m
	}

	tripID, ok := intField(raw, FieldTripID)
	if !ok || tripID == 0 {
		return Breadcrumb{}, reject(RuleTripID, "%s missing or not a valid identifier", FieldTripID)
	}

	opdDate, err := ParseOperatingDate(stringField(raw, FieldOpdDate))
	if err != nil {
		return Breadcrumb{}, reject(RuleOperatingDate, "%s %q: %v", FieldOpdDate, raw[FieldOpdDate], err)
	}

	actTime, ok := intField(raw, FieldActTime)
	if !ok || actTime < 0 {
		return Breadcrumb{}, reject(RuleActTime, "%s %v missing, non-numeric, or negative", FieldActTime, raw[FieldActTime])
	}

	vehicleID, ok := intField(raw, FieldVehicleID)
	if !ok {
		return Breadcrumb{}, reject(RuleVehicleID, "%s %v missing or non-numeric", FieldVehicleID, raw[FieldVehicleID])
	}

	bc := Breadcrumb{
		TripID:        tripID,
		VehicleID:     vehicleID,
		ActTime:       actTime,
		OperatingDate: opdDate,
		Meters:        meters,
		Latitude:      lat,
		Longitude:     lon,
	}
	if sat, ok := intField(raw, FieldSatellites); ok {
		bc.Satellites = &sat
	}
	if hdop, ok := floatField(raw, FieldHDOP); ok {
		bc.HDOP = &hdop
	}
	return bc, nil
}

// ParseOperatingDate parses an OPD_DATE value. The feed emits "DDMonYYYY"
// optionally followed by a ":HH:MM:SS" clock part, which is always midnight
// and is discarded.
func ParseOperatingDate(s string) (time.Time, error) {
	datePart, _, _ := strings.Cut(strings.TrimSpace(s), ":")
	if datePart == "" {
		return time.Time{}, fmt.Errorf("empty operating date")
	}
	t, err := time.Parse(opdDateLayout, datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse operating date: %w", err)
	}
	return t, nil
}

func present(raw RawEvent, field string) bool {
	v, ok := raw[field]
	return ok && v != nil
}

func stringField(raw RawEvent, field string) string {
	v, ok := raw[field]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// floatField extracts a numeric field, accepting JSON numbers and numeric
// strings since the upstream encoder is inconsistent about both.
func floatField(raw RawEvent, field string) (float64, bool) {
	v, ok := raw[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// intField extracts an integral field. Fractional values are rejected rather
// than truncated; a trip id of "100.7" is corrupt, not trip 100.
func intField(raw RawEvent, field string) (int64, bool) {
	f, ok := floatField(raw, field)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
