package relay

import "time"

// 訊息存活時間標籤.
const (
	TTLNone = "none"
	TTL24h  = "24h"
	TTL7d   = "7d"
)

var ttlDurations = map[string]time.Duration{
	TTL24h: 24 * time.Hour,
	TTL7d:  7 * 24 * time.Hour,
}

// ExpiresAt 把 TTL 標籤換算成絕對過期時間，無法辨識的標籤視為永不過期.
func ExpiresAt(ttl string, now time.Time) *time.Time {
	d, ok := ttlDurations[ttl]
	if !ok {
		return nil
	}
	t := now.Add(d)
	return &t
}
