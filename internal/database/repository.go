package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound     = errors.New("database: record not found")
	ErrDuplicateKey = errors.New("database: duplicate key value violates unique constraint")
)

// Scope narrows a query before the terminal operation runs.
type Scope func(*gorm.DB) *gorm.DB

// Repository is the persistence contract the domain services depend on.
// Implementations translate driver errors into ErrNotFound and ErrDuplicateKey.
type Repository[T any] interface {
	Create(ctx context.Context, model *T) error
	Save(ctx context.Context, model *T) error
	Delete(ctx context.Context, model *T) error
	First(ctx context.Context, dest *T, scopes ...Scope) error
	Find(ctx context.Context, dest *[]T, scopes ...Scope) error
}

// GormRepository is the undecorated gorm-backed Repository. Delete removes rows
// physically and reads see every row, so callers normally wrap it.
type GormRepository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](db *gorm.DB) *GormRepository[T] {
	return &GormRepository[T]{db: db}
}

func (r *GormRepository[T]) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return r.db
	}
	return r.db.WithContext(ctx)
}

func (r *GormRepository[T]) Create(ctx context.Context, model *T) error {
	return translateError(r.conn(ctx).Create(model).Error)
}

// Save updates every column of an existing row. Associations are left alone.
func (r *GormRepository[T]) Save(ctx context.Context, model *T) error {
	return translateError(r.conn(ctx).Omit(clause.Associations).Save(model).Error)
}

func (r *GormRepository[T]) Delete(ctx context.Context, model *T) error {
	return translateError(r.conn(ctx).Delete(model).Error)
}

func (r *GormRepository[T]) First(ctx context.Context, dest *T, scopes ...Scope) error {
	return translateError(r.conn(ctx).Scopes(gormScopes(scopes)...).First(dest).Error)
}

func (r *GormRepository[T]) Find(ctx context.Context, dest *[]T, scopes ...Scope) error {
	return translateError(r.conn(ctx).Scopes(gormScopes(scopes)...).Find(dest).Error)
}

func gormScopes(scopes []Scope) []func(*gorm.DB) *gorm.DB {
	out := make([]func(*gorm.DB) *gorm.DB, 0, len(scopes))
	for _, s := range scopes {
		if s == nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicateKey(err):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	default:
		return err
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Fallback for drivers opened without TranslateError.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint failed")
}
