package monitor

import (
	"time"

	"github.com/loykin/vigil/internal/heartbeat"
)

// electPrimary picks exactly one checker from the candidate set: the
// lexicographically smallest session id. Pure and deterministic, so every
// instance that sees the same candidate set agrees on the winner without
// any persisted leader state; when the current winner stops heartbeating it
// simply drops out of the next tick's candidate set and the next-smallest
// id takes over.
func electPrimary(candidates []heartbeat.Record) (string, bool) {
	winner := ""
	for _, c := range candidates {
		if c.IsDebug || c.SessionID == "" {
			continue
		}
		if winner == "" || c.SessionID < winner {
			winner = c.SessionID
		}
	}
	return winner, winner != ""
}

// aliveCandidates filters records down to non-debug instances whose last
// heartbeat is within window of now. self is always a candidate when
// non-debug: its process is provably alive regardless of what its own
// record reads back as.
func aliveCandidates(records []heartbeat.Record, self heartbeat.Record, now time.Time, window time.Duration) []heartbeat.Record {
	out := make([]heartbeat.Record, 0, len(records))
	selfSeen := false
	for _, r := range records {
		if r.IsDebug {
			continue
		}
		if r.SessionID == self.SessionID {
			selfSeen = true
			out = append(out, r)
			continue
		}
		if r.Age(now) <= window {
			out = append(out, r)
		}
	}
	if !selfSeen && !self.IsDebug {
		out = append(out, self)
	}
	return out
}
