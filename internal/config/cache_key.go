package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSnapshotKey returns the Redis hash key holding a session's latest
// state snapshot (answers, flags, bookmarks, remaining time).
func (r *CacheKeyStruct) SessionSnapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s:snapshot", sessionID)
}

// UserActiveSessionKey returns the key mapping a user to their currently
// active session, used to surface "attempt already running" to clients.
func (r *CacheKeyStruct) UserActiveSessionKey(userID string) string {
	return fmt.Sprintf("user:%s:active_session", userID)
}

// ReportReasonsKey returns the cache key for the bug-report reason list.
// The list is user independent upstream so a single key is enough.
func (r *CacheKeyStruct) ReportReasonsKey() string {
	return "report_reasons"
}

var CacheKey = NewCacheKeyStruct()
