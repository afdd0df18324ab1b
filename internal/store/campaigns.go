package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"azubi-engine/internal/domain"
)

const campaignCols = `id, created_at, status, subject, body_template, recipients, target_job_ids, sent, failed, pending`

func scanCampaign(r rowScanner) (domain.Campaign, error) {
	var (
		c          domain.Campaign
		createdAt  string
		status     string
		recipients string
		targets    string
	)
	if err := r.Scan(&c.ID, &createdAt, &status, &c.Subject, &c.BodyTemplate, &recipients, &targets,
		&c.Progress.Sent, &c.Progress.Failed, &c.Progress.Pending); err != nil {
		return c, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.Status = domain.CampaignStatus(status)
	c.Recipients = domain.RecipientPolicy(recipients)
	if err := json.Unmarshal([]byte(targets), &c.TargetJobIDs); err != nil {
		return c, fmt.Errorf("campaign %s: decode targets: %w", c.ID, err)
	}
	return c, nil
}

func (d *DB) CreateCampaign(ctx context.Context, c domain.Campaign) error {
	targets := c.TargetJobIDs
	if targets == nil {
		targets = []int64{}
	}
	tb, _ := json.Marshal(targets)
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO campaigns(id, created_at, status, subject, body_template, recipients, target_job_ids, sent, failed, pending)
VALUES(?,?,?,?,?,?,?,?,?,?);`,
		c.ID, formatTime(c.CreatedAt), string(c.Status), c.Subject, c.BodyTemplate, string(c.Recipients), string(tb),
		c.Progress.Sent, c.Progress.Failed, c.Progress.Pending,
	)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (d *DB) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	c, err := scanCampaign(d.Pool.QueryRowContext(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (d *DB) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := d.Pool.QueryContext(ctx, `SELECT `+campaignCols+` FROM campaigns ORDER BY created_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCampaignStatus stores the campaign's state and progress counters.
func (d *DB) UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, p domain.Progress) error {
	res, err := d.Pool.ExecContext(ctx, `
UPDATE campaigns
SET status = ?, sent = ?, failed = ?, pending = ?
WHERE id = ?;`,
		string(status), p.Sent, p.Failed, p.Pending, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetCampaignTargets records the ordered job IDs a campaign sends to.
func (d *DB) SetCampaignTargets(ctx context.Context, id string, jobIDs []int64) error {
	if jobIDs == nil {
		jobIDs = []int64{}
	}
	tb, _ := json.Marshal(jobIDs)
	res, err := d.Pool.ExecContext(ctx, `UPDATE campaigns SET target_job_ids = ? WHERE id = ?;`, string(tb), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}
