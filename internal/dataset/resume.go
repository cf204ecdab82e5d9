package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/itarang/telematics-exporter/internal/record"
)

// VehicleSet is a set of vehicle numbers.
type VehicleSet map[string]struct{}

// Contains reports whether vehicleNo is in the set.
func (s VehicleSet) Contains(vehicleNo string) bool {
	_, ok := s[vehicleNo]
	return ok
}

// ProcessedVehicles returns the vehicle numbers found in the vehicleno column of the dataset at
// path. A missing dataset or one without that column yields an empty set.
//
// Presence in the dataset says nothing about which extraction window produced the row, so a
// vehicle exported by an earlier run over a different window counts as processed.
func ProcessedVehicles(path string) (VehicleSet, error) {
	set := VehicleSet{}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return set, fmt.Errorf("failed to open reference dataset: %w", err)
	}
	defer f.Close() //nolint:errcheck // read only

	r := newReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return set, nil
	}
	if err != nil {
		return set, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	idx := slices.Index(header, record.VehicleNoField)
	if idx < 0 {
		return set, nil
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return set, nil
		}
		if err != nil {
			// Keep what was read so far.
			return set, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(row) > idx {
			set[row[idx]] = struct{}{}
		}
	}
}
