package support

import (
	"encoding/base64"
	"strings"
	"time"
)

// EncodeSyncToken turns a point in time into an opaque cursor for incremental sync.
func EncodeSyncToken(t time.Time) string {
	return base64.StdEncoding.EncodeToString([]byte(t.UTC().Format(time.RFC3339Nano)))
}

// DecodeSyncToken reverses EncodeSyncToken. The second result is false for blank
// input, invalid base64 and text that is not a timestamp.
func DecodeSyncToken(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, false
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
