// Package output writes listings to CSV and JSON lines files.
package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// Writer receives batches of listings.
type Writer interface {
	Write(listings []models.Listing) error
	Close() error
	Validate() error
}

var csvHeader = []string{
	"platform", "region", "kind", "title", "make", "model", "trim", "year", "currency", "price",
	"sold", "high_bid", "bid_count", "auction_days", "ended_at",
	"mileage", "days_on_market", "dealer_name", "location", "url", "image_url", "scraped_at",
}

// CSVWriter writes one row per listing. Missing values are empty cells.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVWriter{file: f, writer: writer}, nil
}

func (cw *CSVWriter) Write(listings []models.Listing) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for i := range listings {
		if err := cw.writer.Write(record(&listings[i])); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file was written.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.file, "csv")
}

func record(l *models.Listing) []string {
	return []string{
		string(l.Platform),
		string(l.Region),
		string(l.Kind),
		l.Title,
		l.Make,
		l.Model,
		l.Trim,
		optionalInt(nonZero(l.Year)),
		string(l.Currency),
		optionalFloat(l.Price),
		strconv.FormatBool(l.Sold),
		optionalFloat(l.HighBid),
		optionalInt(l.BidCount),
		optionalInt(l.AuctionDays),
		optionalTime(l.EndedAt),
		optionalInt(l.Mileage),
		optionalInt(l.DaysOnMarket),
		l.DealerName,
		l.Location,
		l.URL,
		l.ImageURL,
		l.ScrapedAt.Format(time.RFC3339),
	}
}

func nonZero(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optionalTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

// JSONWriter writes newline-delimited JSON listings.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}
	buffer := bufio.NewWriter(f)
	return &JSONWriter{file: f, writer: buffer, encoder: json.NewEncoder(buffer)}, nil
}

func (jw *JSONWriter) Write(listings []models.Listing) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for i := range listings {
		if err := jw.encoder.Encode(&listings[i]); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

func (jw *JSONWriter) Validate() error {
	return validateFile(jw.file, "json")
}

// New picks a writer for format: csv, json or dual. Dual writes filename as CSV
// and a sibling .jsonl file.
func New(format, filename string) (Writer, error) {
	switch strings.ToLower(format) {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	case "dual":
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		return NewDualWriter(base+".csv", base+".jsonl")
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

func validateFile(f *os.File, kind string) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
