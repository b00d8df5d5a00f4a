// Package io defines the ingestion contract cmd/rcfcli reads through:
// pkg/io/csv and pkg/io/pcap each produce a Reader that turns rows or
// captured packets into the []float64 tuples rcfdetector.Detector scores.
package io

import "context"

// Reader is implemented by csv.Reader and pcap.Reader. rcfcli picks one
// based on its --format flag and never depends on the concrete type.
type Reader interface {
	// Read returns every tuple the source holds, for batch Fit/Predict.
	Read() ([][]float64, error)

	// Stream returns a channel of tuples for PredictStream, closed once
	// the source is exhausted or ctx is canceled.
	Stream(ctx context.Context) (<-chan []float64, error)

	// Close releases the underlying file handle or capture session.
	Close() error
}
