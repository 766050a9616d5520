package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/david/tender-finder/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

const lastRefreshKey = "last_refresh"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// TenderQuery narrows the cached set before enrichment. Zero values match everything.
type TenderQuery struct {
	Query        string // substring of title or description
	Client       string // substring of client name
	ContractType string // D, L or W
	OpenOnly     bool
	European     *bool
	IDs          []string
	Limit        int
}

func buildTenderWhere(q TenderQuery) (string, []interface{}) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if q.Query != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+q.Query+"%")
		argIdx++
	}
	if q.Client != "" {
		where += fmt.Sprintf(" AND client_name ILIKE $%d", argIdx)
		args = append(args, "%"+q.Client+"%")
		argIdx++
	}
	if q.ContractType != "" {
		where += fmt.Sprintf(" AND contract_type_code = $%d", argIdx)
		args = append(args, strings.ToUpper(q.ContractType))
		argIdx++
	}
	if q.OpenOnly {
		where += " AND (closing_at IS NULL OR closing_at > NOW())"
	}
	if q.European != nil {
		where += fmt.Sprintf(" AND european = $%d", argIdx)
		args = append(args, *q.European)
		argIdx++
	}
	if len(q.IDs) > 0 {
		where += fmt.Sprintf(" AND publication_id = ANY($%d)", argIdx)
		args = append(args, q.IDs)
		argIdx++
	}

	return where, args
}

// UpsertTenders stores the latest raw record per publication id.
func (s *Store) UpsertTenders(ctx context.Context, raws []models.RawTender, fetchedAt time.Time) (int, error) {
	if len(raws) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range raws {
		payload, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("failed to encode tender %s: %w", r.PublicationID, err)
		}
		batch.Queue(`
			INSERT INTO tenders (publication_id, title, client_name, description, contract_type_code,
				european, published_at, closing_at, raw, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (publication_id) DO UPDATE SET
				title = EXCLUDED.title,
				client_name = EXCLUDED.client_name,
				description = EXCLUDED.description,
				contract_type_code = EXCLUDED.contract_type_code,
				european = EXCLUDED.european,
				published_at = EXCLUDED.published_at,
				closing_at = EXCLUDED.closing_at,
				raw = EXCLUDED.raw,
				fetched_at = EXCLUDED.fetched_at`,
			r.PublicationID, r.Title, r.ClientName, r.Description, r.ContractTypeCode,
			r.European, r.PublishedAt, r.ClosingAt, payload, fetchedAt,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := range raws {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("failed to upsert tender %s: %w", raws[i].PublicationID, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("failed to close upsert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return len(raws), nil
}

// ListTenders returns cached tenders, newest publication first.
func (s *Store) ListTenders(ctx context.Context, q TenderQuery) ([]models.RawTender, error) {
	where, args := buildTenderWhere(q)
	query := fmt.Sprintf(`SELECT raw FROM tenders %s ORDER BY published_at DESC NULLS LAST, publication_id`, where)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenders: %w", err)
	}
	defer rows.Close()

	var out []models.RawTender
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan tender: %w", err)
		}
		var r models.RawTender
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("failed to decode tender: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetTender(ctx context.Context, id string) (models.RawTender, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT raw FROM tenders WHERE publication_id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RawTender{}, ErrNotFound
	}
	if err != nil {
		return models.RawTender{}, fmt.Errorf("failed to get tender %s: %w", id, err)
	}

	var r models.RawTender
	if err := json.Unmarshal(payload, &r); err != nil {
		return models.RawTender{}, fmt.Errorf("failed to decode tender %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) CountTenders(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tenders: %w", err)
	}
	return n, nil
}

// LastRefresh returns nil when the cache was never filled.
func (s *Store) LastRefresh(ctx context.Context) (*time.Time, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM cache_meta WHERE key = $1`, lastRefreshKey).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last refresh: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) SetLastRefresh(ctx context.Context, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_meta (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		lastRefreshKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to set last refresh: %w", err)
	}
	return nil
}

// IsFresh reports whether a refresh at last is younger than ttl at now.
func IsFresh(last *time.Time, ttl time.Duration, now time.Time) bool {
	if last == nil {
		return false
	}
	return now.Sub(*last) < ttl
}

func (s *Store) IsCacheFresh(ctx context.Context, ttl time.Duration) (bool, error) {
	last, err := s.LastRefresh(ctx)
	if err != nil {
		return false, err
	}
	return IsFresh(last, ttl, time.Now()), nil
}

func (s *Store) CacheStats(ctx context.Context, ttl time.Duration) (models.CacheStats, error) {
	stats := models.CacheStats{TTLMinutes: int(ttl / time.Minute)}

	n, err := s.CountTenders(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalTenders = n

	last, err := s.LastRefresh(ctx)
	if err != nil {
		return stats, err
	}
	stats.LastRefresh = last
	stats.IsFresh = IsFresh(last, ttl, time.Now())
	return stats, nil
}

// Refresh runs

func (s *Store) CreateRefreshRun(ctx context.Context, jobID, trigger string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO refresh_runs (job_id, trigger, status) VALUES ($1, $2, 'running') RETURNING id`,
		jobID, trigger).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create refresh run: %w", err)
	}
	return id, nil
}

func (s *Store) FinishRefreshRun(ctx context.Context, run models.RefreshRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_runs SET
			status = $1,
			finished_at = NOW(),
			fetched = $2,
			details_read = $3,
			upserted = $4,
			error = $5
		WHERE id = $6`,
		run.Status, run.Fetched, run.DetailsRead, run.Upserted, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish refresh run %d: %w", run.ID, err)
	}
	return nil
}

const refreshRunCols = `id, job_id, trigger, status, started_at, finished_at, fetched, details_read, upserted, error`

func scanRefreshRun(scan func(dest ...interface{}) error) (models.RefreshRun, error) {
	var r models.RefreshRun
	err := scan(&r.ID, &r.JobID, &r.Trigger, &r.Status, &r.StartedAt, &r.FinishedAt,
		&r.Fetched, &r.DetailsRead, &r.Upserted, &r.Error)
	return r, err
}

func (s *Store) GetRefreshRunByJob(ctx context.Context, jobID string) (models.RefreshRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+refreshRunCols+` FROM refresh_runs WHERE job_id = $1 ORDER BY id DESC LIMIT 1`, jobID)
	run, err := scanRefreshRun(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return run, ErrNotFound
	}
	if err != nil {
		return run, fmt.Errorf("failed to get refresh run for job %s: %w", jobID, err)
	}
	return run, nil
}

func (s *Store) ListRefreshRuns(ctx context.Context, limit int) ([]models.RefreshRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+refreshRunCols+` FROM refresh_runs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RefreshRun
	for rows.Next() {
		run, err := scanRefreshRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
