package database

import (
	"context"
	"time"

	"ipblacklist/internal/domain"
)

type auditRepository[T any] struct {
	Repository[T]
	now func() time.Time
}

// WithAuditStamping stamps CreatedUTC on domain.Auditable models right before
// they are inserted. Updates pass through untouched.
func WithAuditStamping[T any](next Repository[T], now func() time.Time) Repository[T] {
	if now == nil {
		now = time.Now
	}
	return &auditRepository[T]{Repository: next, now: now}
}

func (r *auditRepository[T]) Create(ctx context.Context, model *T) error {
	if a, ok := any(model).(domain.Auditable); ok {
		a.StampCreated(r.now().UTC())
	}
	return r.Repository.Create(ctx, model)
}
