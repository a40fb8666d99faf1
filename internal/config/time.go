package config

import (
	"time"

	"golang.org/x/time/rate"
)

const defaultRateWindow = time.Minute

// CalculateBetweenTime converts a timer into a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

// Limit converts the rate limit settings into a token refill rate. The second
// result is false when limiting is disabled.
func (c RateLimitConfig) Limit() (rate.Limit, int, bool) {
	if c.Requests == 0 {
		return 0, 0, false
	}

	window := defaultRateWindow
	if CalculateMillisecondsOfPeriod(c.Window) > 0 {
		window = CalculateBetweenTime(c.Window)
	}

	burst := int(c.Burst)
	if burst <= 0 {
		burst = int(c.Requests)
	}

	return rate.Every(window / time.Duration(c.Requests)), burst, true
}

// SyncPollInterval is how often blacklistctl sync --watch asks for changes.
func (c Config) SyncPollInterval() time.Duration {
	return CalculateBetweenTime(c.Sync.PollTimer)
}

// SyncOverlap is how far the server's sync query reaches back behind a token.
// An unset timer yields zero so the caller keeps its own default.
func (c Config) SyncOverlap() time.Duration {
	if CalculateMillisecondsOfPeriod(c.Sync.OverlapTimer) == 0 {
		return 0
	}
	return CalculateBetweenTime(c.Sync.OverlapTimer)
}
