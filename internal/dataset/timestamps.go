package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DateTimeLayout is the format epoch values are rewritten to.
	DateTimeLayout = "2006-01-02 15:04:05"

	// Values strictly inside (epochMin, epochMax) are taken as epoch timestamps. Seconds cover
	// roughly 2001 to 2096, milliseconds 1970 to 2065.
	epochMin = 1e9
	epochMax = 3e12
	// Values above millisThreshold are milliseconds.
	millisThreshold = 3e9
)

// NormalizeStats reports the outcome of NormalizeTimestamps.
type NormalizeStats struct {
	Rows      int
	Converted int
}

// IsEpoch reports whether value looks like a Unix timestamp in seconds or milliseconds.
func IsEpoch(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" || v == "0" || strings.Contains(v, "e+") {
		return false
	}
	// Hex floats parse but are never timestamps.
	if strings.ContainsAny(v, "xX") {
		return false
	}
	num, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false
	}
	return num > epochMin && num < epochMax
}

// FormatEpoch renders an epoch value as a calendar date-time in loc. Values above 3e9 are read
// as milliseconds, others as seconds. Unparseable input is returned unchanged.
func FormatEpoch(value string, loc *time.Location) string {
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return value
	}
	if num > millisThreshold {
		num /= 1000
	}
	sec, frac := math.Modf(num)
	return time.Unix(int64(sec), int64(frac*1e9)).In(loc).Format(DateTimeLayout)
}

// NormalizeTimestamps rewrites the dataset at path replacing every epoch-looking value with a
// local date-time string. A missing dataset is a no-op, and the file is left untouched when
// nothing was converted.
func NormalizeTimestamps(path string) (NormalizeStats, error) {
	return NormalizeTimestampsIn(path, time.Local)
}

// NormalizeTimestampsIn is NormalizeTimestamps with an explicit output location.
//
// Column names play no part in the decision: a time-named column holding a non-epoch value is
// left alone, and any column holding an epoch value is converted.
func NormalizeTimestampsIn(path string, loc *time.Location) (NormalizeStats, error) {
	var stats NormalizeStats
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}

	_, err := rewrite(path, func(r *csv.Reader, w *csv.Writer) (bool, error) {
		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read header: %w", err)
		}
		if err := w.Write(header); err != nil {
			return false, fmt.Errorf("failed to write header: %w", err)
		}

		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return false, fmt.Errorf("failed to read row %d: %w", stats.Rows+1, err)
			}
			stats.Rows++
			for i, v := range row {
				if IsEpoch(v) {
					row[i] = FormatEpoch(v, loc)
					stats.Converted++
				}
			}
			if err := w.Write(row); err != nil {
				return false, fmt.Errorf("failed to write row: %w", err)
			}
		}
		return stats.Converted > 0, nil
	})
	if err != nil {
		return NormalizeStats{}, fmt.Errorf("failed to normalize timestamps in %s: %w", path, err)
	}
	return stats, nil
}
