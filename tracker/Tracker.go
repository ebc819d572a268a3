// Package tracker implements Trackers, which cache statistics
// generated while training and save them after training has finished
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Tracker keeps track of named per-epoch training statistics and
// saves the data after training has finished. Trackers are sinks: the
// training core pushes statistics into them and depends on nothing
// they store.
type Tracker interface {
	Track(epoch int, stats map[string]float64)
	Save() error
}

// Scalar tracks a single named statistic across epochs and saves it
// with gob encoding
type Scalar struct {
	name     string
	filename string
	data     []float64
}

// NewScalar returns a Tracker that records the statistic with the
// given name each epoch and saves the sequence to filename
func NewScalar(name, filename string) *Scalar {
	return &Scalar{name: name, filename: filename}
}

// Track caches the tracked statistic for an epoch. Epochs that did
// not report the statistic are skipped.
func (s *Scalar) Track(epoch int, stats map[string]float64) {
	if value, ok := stats[s.name]; ok {
		s.data = append(s.data, value)
	}
}

// Save saves all cached data to disk
func (s *Scalar) Save() error {
	file, err := os.Create(s.filename)
	if err != nil {
		return fmt.Errorf("save: could not create data file: %v", err)
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	if err := enc.Encode(s.data); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return nil
}

// LoadData loads and returns the data saved by a Scalar tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loaddata: could not open data file: %v", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var data []float64
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loaddata: could not decode data: %v", err)
	}

	return data, nil
}
