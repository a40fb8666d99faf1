package domain

import (
	"strings"
	"time"
)

const (
	// MaxIPLength bounds both the flagged and the requester address columns.
	MaxIPLength = 20
)

// BlacklistEntry is a flagged address shared by every client that reported it.
type BlacklistEntry struct {
	BaseModel

	BlackIP     string  `gorm:"column:black_ip;size:20;not null"`
	RequesterIP *string `gorm:"column:requester_ip;size:20"`

	// RegisteredByClients is ordered by registration time; one row per client.
	RegisteredByClients []ClientRegistration `gorm:"foreignKey:EntryID"`
}

func (BlacklistEntry) TableName() string {
	return "blacklist_entries"
}

// ClientRegistration records that a client reported the parent entry.
type ClientRegistration struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	EntryID       uint64    `gorm:"column:entry_id;not null;uniqueIndex:idx_blacklist_entry_clients_entry_client,priority:1"`
	ClientID      string    `gorm:"column:client_id;size:128;not null;uniqueIndex:idx_blacklist_entry_clients_entry_client,priority:2"`
	RegisteredUTC time.Time `gorm:"column:registered_utc;not null"`
}

func (ClientRegistration) TableName() string {
	return "blacklist_entry_clients"
}

// CanonicalClientID returns the lower-cased form used for storage and comparison.
func CanonicalClientID(clientID string) string {
	return strings.ToLower(strings.TrimSpace(clientID))
}

// Frequency is the number of distinct clients that reported the entry.
func (e BlacklistEntry) Frequency() int {
	return len(e.RegisteredByClients)
}

func (e BlacklistEntry) HasClient(clientID string) bool {
	id := CanonicalClientID(clientID)
	for _, reg := range e.RegisteredByClients {
		if reg.ClientID == id {
			return true
		}
	}
	return false
}

// AddClient appends a registration for clientID unless the client is already
// present. The returned registration is only meaningful when added is true.
func (e *BlacklistEntry) AddClient(clientID string, at time.Time) (reg ClientRegistration, added bool) {
	id := CanonicalClientID(clientID)
	if id == "" || e.HasClient(id) {
		return ClientRegistration{}, false
	}

	reg = ClientRegistration{
		EntryID:       e.ID,
		ClientID:      id,
		RegisteredUTC: at,
	}
	e.RegisteredByClients = append(e.RegisteredByClients, reg)
	return reg, true
}

// ClientIDs returns the registered client identifiers in registration order.
func (e BlacklistEntry) ClientIDs() []string {
	if len(e.RegisteredByClients) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.RegisteredByClients))
	for _, reg := range e.RegisteredByClients {
		out = append(out, reg.ClientID)
	}
	return out
}
