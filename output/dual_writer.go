package output

import (
	"errors"
	"fmt"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// DualWriter writes every batch to a CSV and a JSON lines file.
type DualWriter struct {
	csv  *CSVWriter
	json *JSONWriter
}

func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}
	return &DualWriter{csv: csvWriter, json: jsonWriter}, nil
}

func (dw *DualWriter) Write(listings []models.Listing) error {
	if err := dw.csv.Write(listings); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.json.Write(listings); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return nil
}

func (dw *DualWriter) Close() error {
	var errs []error
	if err := dw.csv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}
	if err := dw.json.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}
	return errors.Join(errs...)
}

func (dw *DualWriter) Validate() error {
	return errors.Join(dw.csv.Validate(), dw.json.Validate())
}
