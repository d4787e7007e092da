package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// SaveOutreach upserts an outreach record.
func (s *Store) SaveOutreach(ctx context.Context, rec *lead.OutreachRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outreach (id, post_ref, company_key, status, record, sent_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			record = excluded.record,
			sent_at = excluded.sent_at,
			updated_at = excluded.updated_at
	`, rec.ID, rec.PostRef, rec.Company.CanonicalKey, string(rec.Status), string(payload),
		unixNano(rec.SentAt), unixNano(rec.CreatedAt), unixNano(rec.UpdatedAt))

	return err
}

// Outreach loads a record by id.
func (s *Store) Outreach(ctx context.Context, id string) (*lead.OutreachRecord, error) {
	return s.outreachWhere(ctx, `id = ?`, id)
}

// OutreachForPost loads the record created for a post, if any.
func (s *Store) OutreachForPost(ctx context.Context, postRef string) (*lead.OutreachRecord, error) {
	return s.outreachWhere(ctx, `post_ref = ?`, postRef)
}

func (s *Store) outreachWhere(ctx context.Context, where string, arg any) (*lead.OutreachRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM outreach WHERE `+where, arg).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec lead.OutreachRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// OutreachByStatus returns records in any of the statuses, oldest first.
func (s *Store) OutreachByStatus(ctx context.Context, statuses ...lead.OutreachStatus) ([]*lead.OutreachRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM outreach
		WHERE status IN (`+placeholders+`)
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*lead.OutreachRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec lead.OutreachRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// CountSentSince counts records sent at or after t.
func (s *Store) CountSentSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outreach WHERE status = ? AND sent_at >= ?
	`, string(lead.OutreachSent), unixNano(t)).Scan(&n)
	return n, err
}

// LastSentAt returns when the company was last emailed.
func (s *Store) LastSentAt(ctx context.Context, companyKey string) (time.Time, bool, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sent_at) FROM outreach WHERE company_key = ? AND status = ?
	`, companyKey, string(lead.OutreachSent)).Scan(&last)
	if err != nil {
		return time.Time{}, false, err
	}
	if !last.Valid || last.Int64 == 0 {
		return time.Time{}, false, nil
	}
	return fromNano(last.Int64), true, nil
}
