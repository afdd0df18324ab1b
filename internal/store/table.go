package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"azubi-engine/internal/domain"
)

func Migrate(db *sql.DB) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1: tables ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  url TEXT NOT NULL,
  title TEXT NOT NULL,
  institution TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  start_date TEXT NOT NULL DEFAULT '',
  emails TEXT NOT NULL DEFAULT '[]',
  source_site TEXT NOT NULL,
  scraped_at TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'new'
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS campaigns (
  id TEXT PRIMARY KEY,
  created_at TEXT NOT NULL,
  status TEXT NOT NULL,
  subject TEXT NOT NULL,
  body_template TEXT NOT NULL,
  recipients TEXT NOT NULL DEFAULT 'first',
  target_job_ids TEXT NOT NULL DEFAULT '[]',
  sent INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  pending INTEGER NOT NULL DEFAULT 0
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS delivery_records (
  campaign_id TEXT NOT NULL REFERENCES campaigns(id),
  job_id INTEGER NOT NULL REFERENCES jobs(id),
  email_used TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_attempt_at TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL DEFAULT 'pending',
  last_error TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (campaign_id, job_id, email_used)
);
`); err != nil {
		return err
	}

	// ---- Schema v1: indexes ----

	if _, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_url
ON jobs(url);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_jobs_status
ON jobs(status);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_delivery_email
ON delivery_records(email_used);
`); err != nil {
		return err
	}

	// Mark schema v1
	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}

type ListJobsOpts struct {
	Status   string // "" = any
	Site     string // "" = any
	HasEmail bool
	Sort     string // scraped | title | institution
	Limit    int
}

func (d *DB) ListJobs(ctx context.Context, opts ListJobsOpts) ([]domain.Job, error) {
	if opts.Limit <= 0 || opts.Limit > 5000 {
		opts.Limit = 500
	}

	// whitelist sort columns (prevents SQL injection)
	order := map[string]string{
		"scraped":     "scraped_at DESC, id DESC",
		"title":       "title ASC, id ASC",
		"institution": "institution ASC, id ASC",
	}[opts.Sort]
	if order == "" {
		order = "scraped_at DESC, id DESC"
	}

	var where []string
	var args []any
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	if opts.Site != "" {
		where = append(where, "source_site = ?")
		args = append(args, opts.Site)
	}
	if opts.HasEmail {
		where = append(where, "emails != '[]'")
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM jobs
%s
ORDER BY %s
LIMIT ?;
`, jobCols, clause, order)

	rows, err := d.Pool.QueryContext(ctx, query, append(args, opts.Limit)...)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}
