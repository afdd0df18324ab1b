package store

import (
	"context"

	"azubi-engine/internal/domain"
)

// SaveDeliveryRecord inserts or replaces the record keyed by campaign, job
// and address.
func (d *DB) SaveDeliveryRecord(ctx context.Context, r domain.DeliveryRecord) error {
	if r.Outcome == "" {
		r.Outcome = domain.OutcomePending
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO delivery_records(campaign_id, job_id, email_used, attempt_count, last_attempt_at, outcome, last_error)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(campaign_id, job_id, email_used) DO UPDATE SET
  attempt_count = excluded.attempt_count,
  last_attempt_at = excluded.last_attempt_at,
  outcome = excluded.outcome,
  last_error = excluded.last_error;`,
		r.CampaignID, r.JobID, r.EmailUsed, r.AttemptCount, formatTime(r.LastAttemptAt), string(r.Outcome), r.LastError,
	)
	return err
}

// ListDeliveryRecords returns a campaign's records in creation order.
func (d *DB) ListDeliveryRecords(ctx context.Context, campaignID string) ([]domain.DeliveryRecord, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT campaign_id, job_id, email_used, attempt_count, last_attempt_at, outcome, last_error
FROM delivery_records
WHERE campaign_id = ?
ORDER BY rowid;`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		var r domain.DeliveryRecord
		var at, outcome string
		if err := rows.Scan(&r.CampaignID, &r.JobID, &r.EmailUsed, &r.AttemptCount, &at, &outcome, &r.LastError); err != nil {
			return nil, err
		}
		r.LastAttemptAt = parseTime(at)
		r.Outcome = domain.Outcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkBounced flips sent records for address to bounced and fails their jobs.
// It returns the affected records. A late bounce report is the only way a
// sent record changes outcome.
func (d *DB) MarkBounced(ctx context.Context, address, reason string) ([]domain.DeliveryRecord, error) {
	address = domain.NormalizeEmail(address)

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
SELECT campaign_id, job_id, email_used, attempt_count, last_attempt_at
FROM delivery_records
WHERE email_used = ? AND outcome = ?;`, address, string(domain.OutcomeSent))
	if err != nil {
		return nil, err
	}
	var hit []domain.DeliveryRecord
	for rows.Next() {
		var r domain.DeliveryRecord
		var at string
		if err := rows.Scan(&r.CampaignID, &r.JobID, &r.EmailUsed, &r.AttemptCount, &at); err != nil {
			rows.Close()
			return nil, err
		}
		r.LastAttemptAt = parseTime(at)
		r.Outcome = domain.OutcomeBounced
		r.LastError = reason
		hit = append(hit, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range hit {
		if _, err := tx.ExecContext(ctx, `
UPDATE delivery_records SET outcome = ?, last_error = ?
WHERE campaign_id = ? AND job_id = ? AND email_used = ?;`,
			string(domain.OutcomeBounced), reason, r.CampaignID, r.JobID, r.EmailUsed); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?;`, string(domain.JobFailed), r.JobID); err != nil {
			return nil, err
		}
	}
	return hit, tx.Commit()
}
