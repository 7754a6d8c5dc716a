// internal/profile/store.go
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists profiles. The postgres implementation is the default;
// tests may substitute their own.
type Store interface {
	Load(ctx context.Context, userID string) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
}

// ErrNotFound is returned by Load when no profile exists for the user.
var ErrNotFound = fmt.Errorf("profile not found")

// PostgresStore keeps each profile as a jsonb document keyed by user id.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (*Profile, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET data = $2, updated_at = $3`,
		p.UserID, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}
