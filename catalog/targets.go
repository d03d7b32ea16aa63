package catalog

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-row lookups that find no matching row.
var ErrNotFound = errors.New("catalog: not found")

// Target is a connection descriptor for one S3-compatible endpoint.
type Target struct {
	ID             string
	Name           string
	Provider       string
	Endpoint       string
	Region         string
	ForcePathStyle bool
	CreatedAt      int64
	UpdatedAt      int64
}

// Credentials is the one-to-one credential record for a Target.
type Credentials struct {
	TargetID        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// UpsertTarget inserts or replaces a target descriptor.
func (s *Store) UpsertTarget(t Target) error {
	now := nowEpoch()
	_, err := s.db.Exec(`
		INSERT INTO targets (id, name, provider, endpoint, region, force_path_style, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, provider = excluded.provider, endpoint = excluded.endpoint,
			region = excluded.region, force_path_style = excluded.force_path_style, updated_at = excluded.updated_at
	`, t.ID, t.Name, t.Provider, t.Endpoint, nullable(t.Region), boolToInt(t.ForcePathStyle), now, now)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// ListTargets returns every registered target, most recently created first.
func (s *Store) ListTargets() ([]Target, error) {
	rows, err := s.db.Query(`
		SELECT id, name, provider, endpoint, region, force_path_style, created_at, updated_at
		FROM targets ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		var region sql.NullString
		var forcePathStyle int
		if err := rows.Scan(&t.ID, &t.Name, &t.Provider, &t.Endpoint, &region, &forcePathStyle, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.Region = region.String
		t.ForcePathStyle = forcePathStyle != 0
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// FindTargetByID returns the target descriptor, or ErrNotFound.
func (s *Store) FindTargetByID(id string) (Target, error) {
	var t Target
	var region sql.NullString
	var forcePathStyle int
	err := s.db.QueryRow(`
		SELECT id, name, provider, endpoint, region, force_path_style, created_at, updated_at
		FROM targets WHERE id = ?
	`, id).Scan(&t.ID, &t.Name, &t.Provider, &t.Endpoint, &region, &forcePathStyle, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Target{}, ErrNotFound
	}
	if err != nil {
		return Target{}, fmt.Errorf("find target: %w", err)
	}
	t.Region = region.String
	t.ForcePathStyle = forcePathStyle != 0
	return t, nil
}

// DeleteTarget removes a target; credentials, clone jobs, and index state
// referencing it cascade per the foreign-key constraints.
func (s *Store) DeleteTarget(id string) error {
	if _, err := s.db.Exec(`DELETE FROM targets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	return nil
}

// UpsertCredentials stores (or replaces) the credentials for a target.
func (s *Store) UpsertCredentials(c Credentials) error {
	now := nowEpoch()
	_, err := s.db.Exec(`
		INSERT INTO target_credentials (target_id, access_key_id, secret_access_key, session_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			access_key_id = excluded.access_key_id, secret_access_key = excluded.secret_access_key,
			session_token = excluded.session_token, updated_at = excluded.updated_at
	`, c.TargetID, c.AccessKeyID, c.SecretAccessKey, nullable(c.SessionToken), now, now)
	if err != nil {
		return fmt.Errorf("upsert credentials: %w", err)
	}
	return nil
}

// GetCredentials returns the credentials for a target, or ErrNotFound.
func (s *Store) GetCredentials(targetID string) (Credentials, error) {
	var c Credentials
	var sessionToken sql.NullString
	err := s.db.QueryRow(`
		SELECT target_id, access_key_id, secret_access_key, session_token
		FROM target_credentials WHERE target_id = ?
	`, targetID).Scan(&c.TargetID, &c.AccessKeyID, &c.SecretAccessKey, &sessionToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("get credentials: %w", err)
	}
	c.SessionToken = sessionToken.String
	return c, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
