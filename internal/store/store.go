// Package store persists moderation, rights and enforcement records through
// gorm. Mutable records are saved with an expected version; a mismatch is
// reported as apperr.ErrConflict.
package store

import (
	"context"
	"errors"

	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"gorm.io/gorm"
)

// Store is the gorm-backed persistence layer shared by the engines.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the root handle for callers that need raw access (health checks).
func (s *Store) DB() *gorm.DB { return s.db }

type txKey struct{}

// Transaction runs fn inside one database transaction. Store calls made with
// the context passed to fn join that transaction. Nested calls reuse the
// outer transaction.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// lookupErr maps a single-row read error.
func lookupErr(op, what, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %s", what, id)
	}
	return apperr.Storage(op, err)
}

// saveVersioned writes every column of rec when the stored version still
// equals expected. rec must carry its primary key; its Version is set to
// expected+1 on success and restored on failure. probe is an empty value of
// the same model used to tell a missing row from a stale one.
func (s *Store) saveVersioned(ctx context.Context, op string, rec, probe interface{}, version *int64, expected int64, id string) error {
	*version = expected + 1
	res := s.conn(ctx).Model(rec).Where("version = ?", expected).Select("*").Updates(rec)
	if res.Error != nil {
		*version = expected
		return apperr.Storage(op, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	*version = expected

	var n int64
	if err := s.conn(ctx).Model(probe).Where("id = ?", id).Count(&n).Error; err != nil {
		return apperr.Storage(op, err)
	}
	if n == 0 {
		return apperr.NotFound("record %s", id)
	}
	return apperr.Conflict("record %s changed since version %d", id, expected)
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
