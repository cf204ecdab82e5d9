package exporter

import (
	"fmt"
	"time"

	"github.com/itarang/telematics-exporter/internal/client/intellicar"
)

const dateLayout = "2006-01-02"

// WindowOptions selects the extraction window of a historical run.
type WindowOptions struct {
	// Start and End are dates in YYYY-MM-DD form, read as local midnight.
	Start string
	End   string
	// BulkDefault replaces unset dates with the bulk backfill range.
	BulkDefault bool
}

// ResolveWindow turns the window options into epoch milliseconds. Unset dates default to the
// bulk range when requested, otherwise to the 24 hours before now. Dates are read in now's
// location.
func ResolveWindow(opts WindowOptions, now time.Time) (intellicar.Window, error) {
	loc := now.Location()

	var start time.Time
	switch {
	case opts.Start != "":
		t, err := time.ParseInLocation(dateLayout, opts.Start, loc)
		if err != nil {
			return intellicar.Window{}, fmt.Errorf("invalid start date %q: %w", opts.Start, err)
		}
		start = t
	case opts.BulkDefault:
		start = time.Date(2025, time.September, 1, 0, 0, 0, 0, loc)
	default:
		start = now.Add(-24 * time.Hour)
	}

	var end time.Time
	switch {
	case opts.End != "":
		t, err := time.ParseInLocation(dateLayout, opts.End, loc)
		if err != nil {
			return intellicar.Window{}, fmt.Errorf("invalid end date %q: %w", opts.End, err)
		}
		end = t
	case opts.BulkDefault:
		end = time.Date(2026, time.February, 20, 22, 14, 0, 0, loc)
	default:
		end = now
	}

	if end.Before(start) {
		return intellicar.Window{}, fmt.Errorf("end %s is before start %s", end.Format(time.DateTime), start.Format(time.DateTime))
	}
	return intellicar.Window{Start: start.UnixMilli(), End: end.UnixMilli()}, nil
}
