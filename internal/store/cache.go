package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// The methods below let the resolver reuse partial progress from earlier runs.

// Company returns a previously resolved company.
func (s *Store) Company(ctx context.Context, key string) (*lead.Company, error) {
	var (
		c      lead.Company
		domain sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT key, name, domain FROM companies WHERE key = ?`, key).
		Scan(&c.CanonicalKey, &c.Name, &domain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Domain = domain.String
	return &c, nil
}

// SaveCompany upserts a company, never clearing a known domain.
func (s *Store) SaveCompany(ctx context.Context, c lead.Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (key, name, domain, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			domain = CASE WHEN excluded.domain = '' THEN companies.domain ELSE excluded.domain END,
			updated_at = excluded.updated_at
	`, c.CanonicalKey, c.Name, c.Domain, time.Now().UnixNano())
	return err
}

// Contacts returns the stored contacts of a company with their email candidates.
func (s *Store) Contacts(ctx context.Context, companyKey string) ([]lead.Contact, map[string][]*lead.EmailCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT full_name, title, discovery, profile_url, emails FROM contacts
		WHERE company_key = ? ORDER BY updated_at ASC, full_name ASC
	`, companyKey)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var contacts []lead.Contact
	emails := make(map[string][]*lead.EmailCandidate)
	for rows.Next() {
		var (
			c                     lead.Contact
			title, profile, mails sql.NullString
			discovery             string
		)
		if err := rows.Scan(&c.FullName, &title, &discovery, &profile, &mails); err != nil {
			return nil, nil, err
		}
		c.CompanyKey = companyKey
		c.Title = title.String
		c.ProfileURL = profile.String
		c.SourceOfDiscovery = lead.Discovery(discovery)
		contacts = append(contacts, c)

		if mails.Valid && mails.String != "" {
			var candidates []*lead.EmailCandidate
			if err := json.Unmarshal([]byte(mails.String), &candidates); err != nil {
				return nil, nil, err
			}
			emails[c.FullName] = candidates
		}
	}
	return contacts, emails, rows.Err()
}

// SaveContact upserts a contact and, when given, its email candidates.
func (s *Store) SaveContact(ctx context.Context, c lead.Contact, candidates []*lead.EmailCandidate) error {
	var mails any
	if candidates != nil {
		payload, err := json.Marshal(candidates)
		if err != nil {
			return err
		}
		mails = string(payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (company_key, full_name, title, discovery, profile_url, emails, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_key, full_name) DO UPDATE SET
			title = CASE WHEN excluded.title = '' THEN contacts.title ELSE excluded.title END,
			profile_url = CASE WHEN excluded.profile_url = '' THEN contacts.profile_url ELSE excluded.profile_url END,
			emails = COALESCE(excluded.emails, contacts.emails),
			updated_at = excluded.updated_at
	`, c.CompanyKey, c.FullName, c.Title, string(c.SourceOfDiscovery), c.ProfileURL, mails, time.Now().UnixNano())
	return err
}

// Cursor returns the last fetch time of a source.
func (s *Store) Cursor(ctx context.Context, source string) (time.Time, bool, error) {
	var since int64
	err := s.db.QueryRowContext(ctx, `SELECT since FROM source_cursors WHERE source = ?`, source).Scan(&since)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromNano(since), true, nil
}

// SetCursor moves the cursor of a source forward.
func (s *Store) SetCursor(ctx context.Context, source string, since time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_cursors (source, since) VALUES (?, ?)
		ON CONFLICT(source) DO UPDATE SET since = MAX(source_cursors.since, excluded.since)
	`, source, unixNano(since))
	return err
}
