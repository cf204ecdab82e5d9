// Package record holds the telemetry row type shared by the API client and the dataset writer.
package record

import "time"

const (
	// VehicleNoField is the join key column present in every dataset.
	VehicleNoField = "vehicleno"
	// FetchTimeField is the column stamped on live readings.
	FetchTimeField = "fetch_time"

	fetchTimeLayout = "2006-01-02T15:04:05.000000"
)

// Record is one reading for one vehicle. Fields keep the order in which they were first set,
// which is the order the API returned them in.
type Record struct {
	keys   []string
	values map[string]string
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string]string)}
}

// Set stores value under key. An existing key keeps its position.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// VehicleNo returns the vehicle identifier of the record.
func (r *Record) VehicleNo() string {
	return r.values[VehicleNoField]
}

// SetVehicleNo tags the record with the vehicle identifier, replacing any value the API returned.
func (r *Record) SetVehicleNo(vehicleNo string) {
	r.Set(VehicleNoField, vehicleNo)
}

// FetchTime returns the time the record was fetched, or the zero time if it was never stamped.
func (r *Record) FetchTime() time.Time {
	v, ok := r.values[FetchTimeField]
	if !ok {
		return time.Time{}
	}
	t, err := time.ParseInLocation(fetchTimeLayout, v, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetFetchTime stamps the record with the local fetch time.
func (r *Record) SetFetchTime(t time.Time) {
	r.Set(FetchTimeField, t.Local().Format(fetchTimeLayout))
}

// Row returns the values of r aligned to header. Header columns absent from r are empty and
// fields of r absent from header are dropped.
func (r *Record) Row(header []string) []string {
	row := make([]string, len(header))
	for i, name := range header {
		row[i] = r.values[name]
	}
	return row
}
