package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

func sampleListing(url string) models.Listing {
	ended := time.Date(2026, 9, 30, 18, 0, 0, 0, time.UTC)
	return models.Listing{
		Platform:  models.PlatformBaT,
		Region:    models.RegionUSA,
		Kind:      models.KindAuction,
		Title:     "2018 Porsche 911 Carrera T",
		Make:      "Porsche",
		Model:     "911",
		Trim:      "Carrera T",
		Year:      2018,
		Currency:  models.CurrencyUSD,
		Price:     models.Float(112500),
		Sold:      true,
		BidCount:  models.Int(41),
		EndedAt:   &ended,
		URL:       url,
		ScrapedAt: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]models.Listing{sampleListing("https://bat.test/1")}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	row := map[string]string{}
	for i, h := range records[0] {
		row[h] = records[1][i]
	}
	want := map[string]string{
		"platform":  "bat",
		"price":     "112500",
		"sold":      "true",
		"bid_count": "41",
		"high_bid":  "",
		"mileage":   "",
		"ended_at":  "2026-09-30T18:00:00Z",
		"year":      "2018",
	}
	for k, v := range want {
		if row[k] != v {
			t.Fatalf("%s = %q, want %q", k, row[k], v)
		}
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.jsonl")
	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	batch := []models.Listing{sampleListing("https://bat.test/1"), sampleListing("https://bat.test/2")}
	if err := writer.Write(batch); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var l models.Listing
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			t.Fatalf("decode line %d: %v", lines, err)
		}
		if l.Price == nil || *l.Price != 112500 {
			t.Fatalf("line %d price = %v", lines, l.Price)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines=%d, want 2", lines)
	}
}

func TestNewDualWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New("dual", filepath.Join(dir, "run.csv"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Write([]models.Listing{sampleListing("https://bat.test/1")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, name := range []string{"run.csv", "run.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

func TestNewUnsupportedFormat(t *testing.T) {
	if _, err := New("xlsx", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatal("expected error")
	}
}

type mockWriter struct {
	batches  [][]models.Listing
	closed   bool
	writeErr error
}

func (mw *mockWriter) Write(listings []models.Listing) error {
	if mw.writeErr != nil {
		return mw.writeErr
	}
	mw.batches = append(mw.batches, append([]models.Listing(nil), listings...))
	return nil
}

func (mw *mockWriter) Close() error {
	mw.closed = true
	return nil
}

func (mw *mockWriter) Validate() error { return nil }

func TestExporterBatchesAndDeduplicates(t *testing.T) {
	mw := &mockWriter{}
	e := NewExporter(mw, 2)

	invalid := sampleListing("https://bat.test/bad")
	invalid.Price = models.Float(-5)
	first := []models.Listing{sampleListing("https://bat.test/1"), sampleListing("https://bat.test/2"), invalid}
	second := []models.Listing{sampleListing("https://bat.test/2"), sampleListing("https://bat.test/3")}

	if err := e.Add(first); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := e.Add(second); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(mw.batches) != 2 || len(mw.batches[0]) != 2 || len(mw.batches[1]) != 1 {
		t.Fatalf("batches = %d", len(mw.batches))
	}
	if !mw.closed {
		t.Fatal("writer not closed")
	}
	want := Counts{Written: 3, Duplicates: 1, Invalid: 1}
	if got := e.Counts(); got != want {
		t.Fatalf("counts = %+v, want %+v", got, want)
	}
	if err := e.Add(first); !errors.Is(err, ErrExporterClosed) {
		t.Fatalf("add after close = %v", err)
	}
}

func TestExporterSurfacesWriteErrors(t *testing.T) {
	boom := errors.New("disk full")
	e := NewExporter(&mockWriter{writeErr: boom}, 1)
	if err := e.Add([]models.Listing{sampleListing("https://bat.test/1")}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
