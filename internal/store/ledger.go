package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// Transition records the new state of an item: the current state is upserted
// and an event row is appended, in one transaction.
func (s *Store) Transition(ctx context.Context, e lead.LedgerEntry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger (item_id, run_id, state, reason, company_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			run_id = excluded.run_id,
			state = excluded.state,
			reason = excluded.reason,
			company_key = CASE WHEN excluded.company_key = '' THEN ledger.company_key ELSE excluded.company_key END,
			updated_at = excluded.updated_at
	`, e.ItemID, e.RunID, string(e.State), e.Reason, e.CompanyKey, unixNano(e.UpdatedAt)); err != nil {
		return fmt.Errorf("upserting ledger entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_events (item_id, run_id, state, reason, at) VALUES (?, ?, ?, ?, ?)
	`, e.ItemID, e.RunID, string(e.State), e.Reason, unixNano(e.UpdatedAt)); err != nil {
		return fmt.Errorf("appending ledger event: %w", err)
	}

	return tx.Commit()
}

// LedgerEntry returns the current state of an item.
func (s *Store) LedgerEntry(ctx context.Context, itemID string) (*lead.LedgerEntry, error) {
	var (
		e         lead.LedgerEntry
		state     string
		reason    sql.NullString
		key       sql.NullString
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, run_id, state, reason, company_key, updated_at FROM ledger WHERE item_id = ?
	`, itemID).Scan(&e.ItemID, &e.RunID, &state, &reason, &key, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.State = lead.State(state)
	e.Reason = reason.String
	e.CompanyKey = key.String
	e.UpdatedAt = fromNano(updatedAt)
	return &e, nil
}

// LedgerByState returns entries currently in any of the states.
func (s *Store) LedgerByState(ctx context.Context, states ...lead.State) ([]lead.LedgerEntry, error) {
	if len(states) == 0 {
		return nil, nil
	}
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, run_id, state, reason, company_key, updated_at FROM ledger
		WHERE state IN (`+strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")+`)
		ORDER BY updated_at ASC, item_id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []lead.LedgerEntry
	for rows.Next() {
		var (
			e         lead.LedgerEntry
			state     string
			reason    sql.NullString
			key       sql.NullString
			updatedAt int64
		)
		if err := rows.Scan(&e.ItemID, &e.RunID, &state, &reason, &key, &updatedAt); err != nil {
			return nil, err
		}
		e.State = lead.State(state)
		e.Reason = reason.String
		e.CompanyKey = key.String
		e.UpdatedAt = fromNano(updatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerHistory returns the states an item went through, oldest first.
func (s *Store) LedgerHistory(ctx context.Context, itemID string) ([]lead.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM ledger_events WHERE item_id = ? ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []lead.State
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		states = append(states, lead.State(st))
	}
	return states, rows.Err()
}

// StartRun registers a run.
func (s *Store) StartRun(ctx context.Context, runID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, unixNano(at))
	return err
}

// FinishRun stores the run summary.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time, summary any) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ?, summary = ? WHERE id = ?`, unixNano(at), string(payload), runID)
	return err
}
