package blacklist

import "errors"

var (
	ErrNotFound        = errors.New("blacklist: entry not found")
	ErrInvalidIP       = errors.New("blacklist: invalid ip address")
	ErrInvalidClientID = errors.New("blacklist: client id is required")
	ErrConflict        = errors.New("blacklist: concurrent registration conflict")
)
