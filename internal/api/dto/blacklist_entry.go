package dto

import (
	"time"

	"ipblacklist/internal/domain"
)

// BlacklistEntryRequest only carries the address. Attribution comes from the
// authenticated credential, never from the body.
type BlacklistEntryRequest struct {
	BlackIP string `json:"blackIp"`
}

type BlacklistEntryResponse struct {
	ID         uint64    `json:"id"`
	BlackIP    string    `json:"blackIp"`
	Frequency  int       `json:"frequency"`
	CreatedUTC time.Time `json:"createdUtc"`
}

type SyncResponse struct {
	Entries []BlacklistEntryResponse `json:"entries"`
	Token   string                   `json:"token"`
}

func MapBlacklistEntry(entry domain.BlacklistEntry) BlacklistEntryResponse {
	return BlacklistEntryResponse{
		ID:         entry.ID,
		BlackIP:    entry.BlackIP,
		Frequency:  entry.Frequency(),
		CreatedUTC: entry.CreatedUTC.UTC(),
	}
}

func MapBlacklistEntries(entries []domain.BlacklistEntry) []BlacklistEntryResponse {
	out := make([]BlacklistEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, MapBlacklistEntry(entry))
	}
	return out
}
