package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/cache"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/stats"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB answers QueryRow from rows keyed by the first query argument.
type fakeDB struct {
	execs   []execCall
	rows    map[any][]any
	execErr error
	tag     string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag(f.tag), f.execErr
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	values, ok := f.rows[args[0]]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: values}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan %d columns into %d targets", len(r.values), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func newRepo(t *testing.T, db *fakeDB) *Postgres {
	t.Helper()
	p, err := New(db, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p
}

func TestCacheEntryRoundTrip(t *testing.T) {
	db := &fakeDB{rows: map[any][]any{}}
	repo := newRepo(t, db)
	created := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	entry := cache.Entry{
		Fingerprint: "abc123",
		Spec: models.SearchSpec{
			Kind:      models.KindAuction,
			Make:      "Porsche",
			Model:     "911",
			Platforms: []models.Platform{models.PlatformBaT},
		},
		Listings: []models.Listing{{
			Platform: models.PlatformBaT,
			Kind:     models.KindAuction,
			Currency: models.CurrencyUSD,
			Make:     "Porsche",
			Price:    models.Float(95000),
			Sold:     true,
		}},
		Stats:     stats.Summary{Count: 1},
		Partial:   true,
		CreatedAt: created,
	}

	if err := repo.PutEntry(context.Background(), entry); err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0].sql, "ON CONFLICT (fingerprint)") {
		t.Fatalf("exec calls = %+v", db.execs)
	}
	args := db.execs[0].args
	db.rows["abc123"] = args[1:]

	got, ok, err := repo.GetEntry(context.Background(), "abc123")
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if got.Spec.Make != "Porsche" || len(got.Listings) != 1 || *got.Listings[0].Price != 95000 {
		t.Fatalf("entry = %+v", got)
	}
	if !got.Partial || !got.CreatedAt.Equal(created) || got.Stats.Count != 1 {
		t.Fatalf("entry metadata = %+v", got)
	}
}

func TestGetEntryMiss(t *testing.T) {
	repo := newRepo(t, &fakeDB{})
	_, ok, err := repo.GetEntry(context.Background(), "missing")
	if ok || err != nil {
		t.Fatalf("miss = %v, %v", ok, err)
	}
}

func TestGetEntryCorruptRow(t *testing.T) {
	db := &fakeDB{rows: map[any][]any{
		"bad": {[]byte("{"), []byte("[]"), []byte("{}"), false, time.Now()},
	}}
	repo := newRepo(t, db)
	if _, _, err := repo.GetEntry(context.Background(), "bad"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPutEntryWrapsDatabaseError(t *testing.T) {
	boom := errors.New("connection refused")
	repo := newRepo(t, &fakeDB{execErr: boom})
	err := repo.PutEntry(context.Background(), cache.Entry{Fingerprint: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestJobRoundTrip(t *testing.T) {
	db := &fakeDB{rows: map[any][]any{}}
	repo := newRepo(t, db)
	started := time.Date(2026, 10, 14, 12, 0, 1, 0, time.UTC)
	job := models.Job{
		ID:           "job-1",
		Fingerprint:  "abc123",
		Status:       models.StatusRunning,
		Progress:     50,
		ListingCount: 7,
		Spec:         models.SearchSpec{Kind: models.KindUsedCar, Make: "BMW", Platforms: []models.Platform{models.PlatformMobileDe}},
		Platforms: []models.PlatformReport{{
			Platform:  models.PlatformMobileDe,
			State:     models.TaskFailed,
			ErrorKind: "blocked",
			Attempts:  2,
		}},
		CreatedAt: started.Add(-time.Second),
		StartedAt: &started,
	}

	if err := repo.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("save: %v", err)
	}
	db.rows["job-1"] = db.execs[0].args

	got, err := repo.LoadJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != models.StatusRunning || got.Progress != 50 || got.ListingCount != 7 {
		t.Fatalf("job = %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) || got.CompletedAt != nil {
		t.Fatalf("timestamps = %v / %v", got.StartedAt, got.CompletedAt)
	}
	if len(got.Platforms) != 1 || got.Platforms[0].ErrorKind != "blocked" {
		t.Fatalf("reports = %+v", got.Platforms)
	}
}

func TestLoadJobNotFound(t *testing.T) {
	repo := newRepo(t, &fakeDB{})
	if _, err := repo.LoadJob(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRejectsNilDB(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
