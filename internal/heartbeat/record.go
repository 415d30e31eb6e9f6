package heartbeat

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Record is the per-instance heartbeat entry persisted in the shared
// working directory, one file per session.
// SessionID is the identity key and is never reused across restarts.
// PID is diagnostic only.
// LastHeartbeat is epoch milliseconds in the host-wide wall clock.
// IsDebug marks instances running under a debugger; they are excluded
// from crash classification and from primary election.
type Record struct {
	PID           int    `json:"pid"`
	SessionID     string `json:"sessionId"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	IsDebug       bool   `json:"isDebug,omitempty"`
}

// HeartbeatTime returns LastHeartbeat as a time.Time.
func (r Record) HeartbeatTime() time.Time {
	return time.UnixMilli(r.LastHeartbeat)
}

// Age returns how far behind now the record's last heartbeat is.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.HeartbeatTime())
}

// FileName derives the deterministic, filesystem-safe file name for a
// session id. Unsafe runes are replaced and an FNV-32a suffix keeps the
// mapping collision-free for ids that differ only in replaced runes.
func FileName(sessionID string) string {
	var b strings.Builder
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return fmt.Sprintf("%s-%08x.json", b.String(), h.Sum32())
}
