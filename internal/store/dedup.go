package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// The methods below satisfy dedup.Store.

func (s *Store) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM fingerprints WHERE fingerprint = ?`, fp).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) LastSeen(ctx context.Context, companyKey string) (time.Time, bool, error) {
	var at int64
	err := s.db.QueryRowContext(ctx, `SELECT last_seen_at FROM company_windows WHERE company_key = ?`, companyKey).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromNano(at), true, nil
}

func (s *Store) Record(ctx context.Context, fp, companyKey string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fingerprints (fingerprint, company_key, recorded_at) VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, fp, companyKey, unixNano(at)); err != nil {
		return err
	}

	if companyKey != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO company_windows (company_key, last_seen_at) VALUES (?, ?)
			ON CONFLICT(company_key) DO UPDATE SET last_seen_at = excluded.last_seen_at
		`, companyKey, unixNano(at)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) PruneWindows(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM company_windows WHERE last_seen_at < ?`, unixNano(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
