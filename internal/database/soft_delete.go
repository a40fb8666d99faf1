package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"ipblacklist/internal/domain"
)

// ActiveOnly excludes tombstoned rows.
func ActiveOnly(db *gorm.DB) *gorm.DB {
	return db.Where("deleted = ?", false)
}

type softDeleteRepository[T any] struct {
	Repository[T]
	now       func() time.Time
	deletable bool
}

// WithSoftDelete turns Delete into a tombstone update and hides tombstoned rows
// from First and Find. Models that do not implement domain.SoftDeletable pass
// through unchanged.
func WithSoftDelete[T any](next Repository[T], now func() time.Time) Repository[T] {
	if now == nil {
		now = time.Now
	}
	var zero T
	_, deletable := any(&zero).(domain.SoftDeletable)
	return &softDeleteRepository[T]{Repository: next, now: now, deletable: deletable}
}

func (r *softDeleteRepository[T]) Delete(ctx context.Context, model *T) error {
	sd, ok := any(model).(domain.SoftDeletable)
	if !ok {
		return r.Repository.Delete(ctx, model)
	}
	sd.MarkDeleted(r.now().UTC())
	return r.Repository.Save(ctx, model)
}

func (r *softDeleteRepository[T]) First(ctx context.Context, dest *T, scopes ...Scope) error {
	return r.Repository.First(ctx, dest, r.filter(scopes)...)
}

func (r *softDeleteRepository[T]) Find(ctx context.Context, dest *[]T, scopes ...Scope) error {
	return r.Repository.Find(ctx, dest, r.filter(scopes)...)
}

func (r *softDeleteRepository[T]) filter(scopes []Scope) []Scope {
	if !r.deletable {
		return scopes
	}
	out := make([]Scope, 0, len(scopes)+1)
	out = append(out, ActiveOnly)
	return append(out, scopes...)
}
