package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// SessionEntryModel is the Bun model for persisted session keys.
type SessionEntryModel struct {
	bun.BaseModel `bun:"table:session_entries"`

	Key       string    `bun:"entry_key,pk"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp"`
}

// EntryStore implements session.Store on a SQL table using Bun.
type EntryStore struct {
	db  *bun.DB
	now func() time.Time
}

// NewEntryStore creates a new store.
func NewEntryStore(db *bun.DB) *EntryStore {
	return &EntryStore{db: db, now: time.Now}
}

// CreateSchema creates the session_entries table if it does not exist.
func (s *EntryStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*SessionEntryModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Get implements session.Store.
func (s *EntryStore) Get(ctx context.Context, key string) (string, bool, error) {
	var model SessionEntryModel
	err := s.db.NewSelect().
		Model(&model).
		Where("entry_key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return model.Value, true, nil
}

// Set implements session.Store.
func (s *EntryStore) Set(ctx context.Context, key, value string) error {
	now := s.now().UTC()
	model := &SessionEntryModel{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (entry_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Delete implements session.Store.
func (s *EntryStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*SessionEntryModel)(nil)).
		Where("entry_key = ?", key).
		Exec(ctx)
	return err
}

// PurgeIdle removes entries not written since before now - idle and returns
// how many were removed.
func (s *EntryStore) PurgeIdle(ctx context.Context, idle time.Duration) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*SessionEntryModel)(nil)).
		Where("updated_at < ?", s.now().UTC().Add(-idle)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
