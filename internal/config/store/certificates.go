package store

import (
	"context"
	"fmt"
)

// ListCertificates returns all trusted certificates keyed by host. The value
// is the stable serialization "<issuerName>\n<certificateBytes>".
func (s *Store) ListCertificates(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT host, certificate FROM certificates`)
	if err != nil {
		return nil, fmt.Errorf("config: list certificates: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var host, cert string
		if err := rows.Scan(&host, &cert); err != nil {
			return nil, fmt.Errorf("config: scan certificate row: %w", err)
		}
		result[host] = cert
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate certificate rows: %w", err)
	}

	return result, nil
}

// PutCertificate records a trust decision for a host, replacing any
// previous record. Records are only ever replaced whole, never merged.
func (s *Store) PutCertificate(ctx context.Context, host, serialized string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO certificates (host, certificate, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(host) DO UPDATE SET
            certificate = excluded.certificate,
            updated_at = CURRENT_TIMESTAMP`,
		host, serialized)
	if err != nil {
		return fmt.Errorf("config: put certificate for %q: %w", host, err)
	}
	return nil
}

// DeleteAllCertificates wipes every trust record.
func (s *Store) DeleteAllCertificates(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM certificates`); err != nil {
		return fmt.Errorf("config: delete certificates: %w", err)
	}
	return nil
}
