package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KeyStore persists pairing keys by MAC.
type KeyStore interface {
	// GetKey returns the pairing key for mac. A miss is ("", false, nil).
	GetKey(ctx context.Context, mac MAC) (string, bool, error)
	PutKey(ctx context.Context, mac MAC, key string) error
}

// Store is a KeyStore that also remembers each TV's name and last address.
type Store interface {
	KeyStore
	Remember(ctx context.Context, id DeviceIdentity) error
	List(ctx context.Context) ([]DeviceIdentity, error)
}

// SQLiteStore implements Store on the tv_identities table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetKey returns the stored pairing key. Rows with an empty key count as a miss.
func (s *SQLiteStore) GetKey(ctx context.Context, mac MAC) (string, bool, error) {
	const query = `SELECT client_key FROM tv_identities WHERE mac = ?`
	var key string
	err := s.db.QueryRowContext(ctx, query, string(mac)).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading key for %s: %w", mac, err)
	}
	return key, key != "", nil
}

// PutKey stores or overwrites the pairing key for mac.
func (s *SQLiteStore) PutKey(ctx context.Context, mac MAC, key string) error {
	const query = `INSERT INTO tv_identities (mac, client_key, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (mac) DO UPDATE SET client_key = excluded.client_key, updated_at = excluded.updated_at`
	now := timestamp()
	if _, err := s.db.ExecContext(ctx, query, string(mac), key, now, now); err != nil {
		return fmt.Errorf("storing key for %s: %w", mac, err)
	}
	return nil
}

// Remember records the current address and name without touching the key.
func (s *SQLiteStore) Remember(ctx context.Context, id DeviceIdentity) error {
	const query = `INSERT INTO tv_identities (mac, name, last_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (mac) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN tv_identities.name ELSE excluded.name END,
			last_address = excluded.last_address,
			updated_at = excluded.updated_at`
	now := timestamp()
	if _, err := s.db.ExecContext(ctx, query, string(id.MAC), id.Name, id.Address, now, now); err != nil {
		return fmt.Errorf("remembering %s: %w", id, err)
	}
	return nil
}

// List returns every remembered TV that has a last address, ordered by MAC.
func (s *SQLiteStore) List(ctx context.Context) ([]DeviceIdentity, error) {
	const query = `SELECT mac, name, last_address FROM tv_identities
		WHERE last_address != '' ORDER BY mac`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var out []DeviceIdentity
	for rows.Next() {
		var id DeviceIdentity
		var mac string
		if err := rows.Scan(&mac, &id.Name, &id.Address); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		id.MAC = MAC(mac)
		out = append(out, id)
	}
	return out, rows.Err()
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
