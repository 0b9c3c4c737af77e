package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// OutputManager appends window stats to a telemetry CSV under dir.
type OutputManager struct {
	dir  string
	file *os.File

	headerWritten bool
}

// NewOutputManager initializes the output directory and telemetry.csv.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}
	return &OutputManager{dir: dir, file: f}, nil
}

// WriteWindow appends one window row, emitting the header on first write.
func (om *OutputManager) WriteWindow(w WindowStats) error {
	if om == nil {
		return nil
	}
	records := []WindowStats{w}
	if !om.headerWritten {
		if err := gocsv.Marshal(records, om.file); err != nil {
			return err
		}
		om.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, om.file)
}

func (om *OutputManager) Close() error {
	if om == nil || om.file == nil {
		return nil
	}
	return om.file.Close()
}
