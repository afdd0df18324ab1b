package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"azubi-engine/internal/domain"
)

const jobCols = `id, url, title, institution, location, start_date, emails, source_site, scraped_at, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (domain.Job, error) {
	var (
		j         domain.Job
		emails    string
		site      string
		scrapedAt string
		status    string
	)
	if err := r.Scan(&j.ID, &j.URL, &j.Title, &j.Institution, &j.Location, &j.StartDate,
		&emails, &site, &scrapedAt, &status); err != nil {
		return j, err
	}
	if err := json.Unmarshal([]byte(emails), &j.Emails); err != nil {
		return j, fmt.Errorf("job %d: decode emails: %w", j.ID, err)
	}
	if j.Emails == nil {
		j.Emails = []string{}
	}
	j.SourceSite = domain.Site(site)
	j.ScrapedAt = parseTime(scrapedAt)
	j.Status = domain.JobStatus(status)
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func encodeEmails(emails []string) string {
	if emails == nil {
		emails = []string{}
	}
	b, _ := json.Marshal(emails)
	return string(b)
}

// SaveJobs inserts jobs in one transaction. A job whose URL is already stored
// is not duplicated; its emails are unioned into the stored row and the stored
// ID is returned in its place.
func (d *DB) SaveJobs(ctx context.Context, jobs []domain.Job) ([]domain.Job, error) {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]domain.Job, len(jobs))
	for i, j := range jobs {
		if strings.TrimSpace(j.URL) == "" {
			return nil, errors.New("save job: missing url")
		}
		if j.Status == "" {
			j.Status = domain.JobNew
		}

		var id int64
		err := tx.QueryRowContext(ctx, `
INSERT INTO jobs(url, title, institution, location, start_date, emails, source_site, scraped_at, status)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(url) DO NOTHING
RETURNING id;`,
			j.URL, j.Title, j.Institution, j.Location, j.StartDate,
			encodeEmails(j.Emails), string(j.SourceSite), formatTime(j.ScrapedAt), string(j.Status),
		).Scan(&id)

		switch {
		case err == nil:
			j.ID = id
		case errors.Is(err, sql.ErrNoRows):
			// already stored: merge into the existing row
			existing, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE url = ?;`, j.URL))
			if err != nil {
				return nil, fmt.Errorf("load existing job %q: %w", j.URL, err)
			}
			merged, added := domain.MergeEmails(existing.Emails, j.Emails)
			if added > 0 {
				if _, err := tx.ExecContext(ctx, `UPDATE jobs SET emails = ? WHERE id = ?;`, encodeEmails(merged), existing.ID); err != nil {
					return nil, err
				}
			}
			existing.Emails = merged
			j = existing
		default:
			return nil, fmt.Errorf("insert job %q: %w", j.URL, err)
		}
		out[i] = j
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadExistingIndex returns every stored job in the shape the deduplicator
// needs.
func (d *DB) LoadExistingIndex(ctx context.Context) ([]domain.IndexEntry, error) {
	rows, err := d.Pool.QueryContext(ctx, `SELECT id, url, institution, title, location, emails FROM jobs ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IndexEntry
	for rows.Next() {
		var e domain.IndexEntry
		var emails string
		if err := rows.Scan(&e.ID, &e.URL, &e.Institution, &e.Title, &e.Location, &emails); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(emails), &e.Emails)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateJobEmails replaces a job's email set. Callers pass a superset of
// what is stored; the set only ever grows.
func (d *DB) UpdateJobEmails(ctx context.Context, id int64, emails []string) error {
	res, err := d.Pool.ExecContext(ctx, `UPDATE jobs SET emails = ? WHERE id = ?;`, encodeEmails(emails), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (d *DB) UpdateJobStatus(ctx context.Context, id int64, status domain.JobStatus) error {
	res, err := d.Pool.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?;`, string(status), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (d *DB) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	j, err := scanJob(d.Pool.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	return j, err
}

// JobsByIDs returns the stored jobs among ids, ordered by ID. Unknown IDs are
// skipped.
func (d *DB) JobsByIDs(ctx context.Context, ids []int64) ([]domain.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+jobCols+` FROM jobs WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id;`,
		int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// SelectCampaignJobs returns the jobs a campaign may target: status new with
// at least one email. A non-empty ids narrows the selection.
func (d *DB) SelectCampaignJobs(ctx context.Context, ids []int64) ([]domain.Job, error) {
	query := `SELECT ` + jobCols + ` FROM jobs WHERE status = ? AND emails != '[]'`
	args := []any{string(domain.JobNew)}
	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		args = append(args, int64Args(ids)...)
	}
	rows, err := d.Pool.QueryContext(ctx, query+` ORDER BY id;`, args...)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
