package database

import (
	"time"

	"gorm.io/gorm"

	"ipblacklist/internal/domain"
)

// BlacklistRepositories bundles the decorated repositories used by the registry.
type BlacklistRepositories struct {
	Entries Repository[domain.BlacklistEntry]
	Clients Repository[domain.ClientRegistration]
}

// NewBlacklistRepositories composes the audit and soft-delete policies around
// the gorm repositories. now defaults to time.Now.
func NewBlacklistRepositories(db *gorm.DB, now func() time.Time) BlacklistRepositories {
	return BlacklistRepositories{
		Entries: decorate[domain.BlacklistEntry](NewRepository[domain.BlacklistEntry](db), now),
		Clients: decorate[domain.ClientRegistration](NewRepository[domain.ClientRegistration](db), now),
	}
}

func decorate[T any](repo Repository[T], now func() time.Time) Repository[T] {
	return WithSoftDelete(WithAuditStamping(repo, now), now)
}

// WithClientRegistrations preloads registrations in registration order.
func WithClientRegistrations(db *gorm.DB) *gorm.DB {
	return db.Preload("RegisteredByClients", func(db *gorm.DB) *gorm.DB {
		return db.Order("registered_utc ASC, id ASC")
	})
}

func ByID(id uint64) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func ByBlackIP(ip string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("black_ip = ?", ip)
	}
}

func CreatedAfter(t time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if t.IsZero() {
			return db
		}
		return db.Where("created_utc > ?", t.UTC())
	}
}

// OldestFirst orders entries by creation time, using the id to break ties.
func OldestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_utc ASC").Order("id ASC")
}
