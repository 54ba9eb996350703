package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/applybot/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// LoadPartition returns the recorded companies and jobs for id. An unknown
// identity yields an empty partition.
func (s *Store) LoadPartition(ctx context.Context, id ledger.Identity) (ledger.Partition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company, job FROM ledger_entries
		 WHERE user_login = ? AND job_title = ?
		 ORDER BY position ASC`,
		id.UserLogin, id.JobTitle)
	if err != nil {
		return nil, fmt.Errorf("querying ledger for %s: %w", id, err)
	}
	defer rows.Close()

	p := ledger.Partition{}
	for rows.Next() {
		var company, job string
		if err := rows.Scan(&company, &job); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		p[company] = append(p[company], job)
	}
	return p, rows.Err()
}

// SavePartition replaces the stored partition for id with p in a single
// transaction. Other identities are untouched.
func (s *Store) SavePartition(ctx context.Context, id ledger.Identity, p ledger.Partition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM ledger_entries WHERE user_login = ? AND job_title = ?",
		id.UserLogin, id.JobTitle); err != nil {
		return fmt.Errorf("clearing ledger partition: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ledger_entries (user_login, job_title, company, job, position)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing ledger insert: %w", err)
	}
	defer stmt.Close()

	pos := 0
	for _, company := range p.Companies() {
		for _, job := range p[company] {
			if _, err := stmt.ExecContext(ctx, id.UserLogin, id.JobTitle, company, job, pos); err != nil {
				return fmt.Errorf("inserting ledger entry %q/%q: %w", company, job, err)
			}
			pos++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger save: %w", err)
	}
	return nil
}

// ListIdentities returns every identity with at least one recorded job.
func (s *Store) ListIdentities(ctx context.Context) ([]ledger.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_login, job_title FROM ledger_entries
		 ORDER BY user_login, job_title`)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var ids []ledger.Identity
	for rows.Next() {
		var id ledger.Identity
		if err := rows.Scan(&id.UserLogin, &id.JobTitle); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
