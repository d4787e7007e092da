package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// Lead is one post together with its classification and extracted mention.
type Lead struct {
	Post        lead.Post
	Result      lead.ClassificationResult
	CompanyName string
	CompanyKey  string
	Role        string
	DomainHint  string
	Fingerprint string
}

// SaveLead inserts or updates a lead. The post itself is never rewritten.
func (s *Store) SaveLead(ctx context.Context, l *Lead) error {
	signals, err := json.Marshal(l.Result.MatchedSignals)
	if err != nil {
		return err
	}

	p := l.Post
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (id, source, raw_text, posted_at, observed_at, source_url,
			author_handle, author_name, author_company, profile_url,
			accepted, score, signals, rejection_reason, kind,
			company_name, company_key, role, domain_hint, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			accepted = excluded.accepted,
			score = excluded.score,
			signals = excluded.signals,
			rejection_reason = excluded.rejection_reason,
			kind = excluded.kind,
			company_name = excluded.company_name,
			company_key = excluded.company_key,
			role = excluded.role,
			domain_hint = excluded.domain_hint,
			fingerprint = excluded.fingerprint
	`, p.ID, string(p.Source), p.RawText, unixNano(p.PostedAt), unixNano(p.ObservedAt), p.SourceURL,
		p.AuthorHandle, p.AuthorName, p.AuthorCompany, p.ProfileURL,
		l.Result.Accepted, l.Result.Score, string(signals), l.Result.RejectionReason, string(l.Result.Kind),
		l.CompanyName, l.CompanyKey, l.Role, l.DomainHint, l.Fingerprint, time.Now().UnixNano())

	return err
}

// Lead loads a lead by post id.
func (s *Store) Lead(ctx context.Context, id string) (*Lead, error) {
	var (
		l                    Lead
		source, kind         string
		signals              sql.NullString
		postedAt, observedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, raw_text, posted_at, observed_at, source_url,
			author_handle, author_name, author_company, profile_url,
			accepted, score, signals, rejection_reason, kind,
			company_name, company_key, role, domain_hint, fingerprint
		FROM leads WHERE id = ?
	`, id).Scan(&l.Post.ID, &source, &l.Post.RawText, &postedAt, &observedAt, &l.Post.SourceURL,
		&l.Post.AuthorHandle, &l.Post.AuthorName, &l.Post.AuthorCompany, &l.Post.ProfileURL,
		&l.Result.Accepted, &l.Result.Score, &signals, &l.Result.RejectionReason, &kind,
		&l.CompanyName, &l.CompanyKey, &l.Role, &l.DomainHint, &l.Fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	l.Post.Source = lead.Source(source)
	l.Post.PostedAt = fromNano(postedAt)
	l.Post.ObservedAt = fromNano(observedAt)
	l.Result.Kind = lead.Kind(kind)
	if signals.Valid && signals.String != "" {
		if err := json.Unmarshal([]byte(signals.String), &l.Result.MatchedSignals); err != nil {
			return nil, err
		}
	}

	return &l, nil
}
