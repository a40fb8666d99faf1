package domain

import "time"

// Auditable models get their creation time stamped by the persistence layer.
type Auditable interface {
	StampCreated(at time.Time)
}

// SoftDeletable models are tombstoned instead of being removed from storage.
type SoftDeletable interface {
	MarkDeleted(at time.Time)
	IsDeleted() bool
}

// BaseModel carries the identity, audit and tombstone columns shared by persisted entities.
type BaseModel struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// CreatedUTC is writable on insert only.
	CreatedUTC time.Time `gorm:"column:created_utc;<-:create;not null"`

	Deleted   bool       `gorm:"column:deleted;not null;default:false;index"`
	DeleteUTC *time.Time `gorm:"column:delete_utc"`
}

func (m *BaseModel) StampCreated(at time.Time) {
	if !m.CreatedUTC.IsZero() {
		return
	}
	m.CreatedUTC = at
}

func (m *BaseModel) MarkDeleted(at time.Time) {
	if m.Deleted {
		return
	}
	m.Deleted = true
	m.DeleteUTC = &at
}

func (m *BaseModel) IsDeleted() bool {
	return m.Deleted
}
