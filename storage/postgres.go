// Package storage persists cache entries and job snapshots in PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bernabe05rodriguez-stack/CarScraper/cache"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrJobNotFound is returned by LoadJob for unknown ids.
var ErrJobNotFound = errors.New("job not stored")

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	spec        JSONB NOT NULL,
	listings    JSONB NOT NULL,
	stats       JSONB NOT NULL,
	partial     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	fingerprint   TEXT NOT NULL,
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL,
	listing_count INTEGER NOT NULL,
	cached        BOOLEAN NOT NULL,
	canceled      BOOLEAN NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	spec          JSONB NOT NULL,
	platforms     JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_fingerprint_idx ON jobs (fingerprint);
`

// Postgres implements cache.Store and the orchestrator job store.
type Postgres struct {
	db     DB
	logger *slog.Logger
}

// New wraps an open database handle.
func New(db DB, logger *slog.Logger) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger.With(slog.String("component", "storage"))}, nil
}

// Connect opens a pool for url, checks it and applies the schema.
// The returned pool must be closed by the caller.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Postgres, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("unable to ping database: %w", err)
	}
	p, err := New(pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	p.logger.Info("connected to database")
	return p, pool, nil
}

// Migrate creates the tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetEntry loads a cache entry. Freshness is the cache's concern.
func (p *Postgres) GetEntry(ctx context.Context, fingerprint string) (cache.Entry, bool, error) {
	query := `
		SELECT spec, listings, stats, partial, created_at
		FROM cache_entries
		WHERE fingerprint = $1
	`
	var specJSON, listingsJSON, statsJSON []byte
	e := cache.Entry{Fingerprint: fingerprint}
	err := p.db.QueryRow(ctx, query, fingerprint).Scan(&specJSON, &listingsJSON, &statsJSON, &e.Partial, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("failed to load cache entry: %w", err)
	}
	if err := json.Unmarshal(specJSON, &e.Spec); err != nil {
		return cache.Entry{}, false, fmt.Errorf("failed to decode cached spec: %w", err)
	}
	if err := json.Unmarshal(listingsJSON, &e.Listings); err != nil {
		return cache.Entry{}, false, fmt.Errorf("failed to decode cached listings: %w", err)
	}
	if err := json.Unmarshal(statsJSON, &e.Stats); err != nil {
		return cache.Entry{}, false, fmt.Errorf("failed to decode cached stats: %w", err)
	}
	return e, true, nil
}

// PutEntry upserts a cache entry.
func (p *Postgres) PutEntry(ctx context.Context, e cache.Entry) error {
	specJSON, err := json.Marshal(e.Spec)
	if err != nil {
		return fmt.Errorf("failed to encode spec: %w", err)
	}
	listings := e.Listings
	if listings == nil {
		listings = []models.Listing{}
	}
	listingsJSON, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("failed to encode listings: %w", err)
	}
	statsJSON, err := json.Marshal(e.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	query := `
		INSERT INTO cache_entries (fingerprint, spec, listings, stats, partial, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fingerprint) DO UPDATE SET
			spec = EXCLUDED.spec,
			listings = EXCLUDED.listings,
			stats = EXCLUDED.stats,
			partial = EXCLUDED.partial,
			created_at = EXCLUDED.created_at
	`
	if _, err := p.db.Exec(ctx, query, e.Fingerprint, specJSON, listingsJSON, statsJSON, e.Partial, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	p.logger.Debug("cache entry stored", slog.String("fingerprint", e.Fingerprint), slog.Int("listings", len(e.Listings)))
	return nil
}

// SaveJob upserts a job snapshot.
func (p *Postgres) SaveJob(ctx context.Context, job models.Job) error {
	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("failed to encode spec: %w", err)
	}
	platformsJSON, err := json.Marshal(job.Platforms)
	if err != nil {
		return fmt.Errorf("failed to encode platform reports: %w", err)
	}

	query := `
		INSERT INTO jobs (id, fingerprint, status, progress, listing_count, cached, canceled, error,
			spec, platforms, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			listing_count = EXCLUDED.listing_count,
			canceled = EXCLUDED.canceled,
			error = EXCLUDED.error,
			platforms = EXCLUDED.platforms,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`
	_, err = p.db.Exec(ctx, query,
		job.ID,
		job.Fingerprint,
		string(job.Status),
		job.Progress,
		job.ListingCount,
		job.Cached,
		job.Canceled,
		job.Error,
		specJSON,
		platformsJSON,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// LoadJob reads a job snapshot back.
func (p *Postgres) LoadJob(ctx context.Context, id string) (models.Job, error) {
	query := `
		SELECT id, fingerprint, status, progress, listing_count, cached, canceled, error,
			spec, platforms, created_at, started_at, completed_at
		FROM jobs
		WHERE id = $1
	`
	var job models.Job
	var status string
	var specJSON, platformsJSON []byte
	err := p.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.Fingerprint,
		&status,
		&job.Progress,
		&job.ListingCount,
		&job.Cached,
		&job.Canceled,
		&job.Error,
		&specJSON,
		&platformsJSON,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return models.Job{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	job.Status = models.Status(status)
	if err := json.Unmarshal(specJSON, &job.Spec); err != nil {
		return models.Job{}, fmt.Errorf("failed to decode job spec: %w", err)
	}
	if err := json.Unmarshal(platformsJSON, &job.Platforms); err != nil {
		return models.Job{}, fmt.Errorf("failed to decode platform reports: %w", err)
	}
	return job, nil
}
