package bridge

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

const (
	// maxPayloadBytes bounds a single message payload.
	maxPayloadBytes = 64 * 1024

	// defaultMessageTTL is how long a message stays valid after its origin
	// timestamp.
	defaultMessageTTL = 10 * time.Minute

	// replayRetention is how long seen message IDs are remembered. Must be
	// at least the TTL, otherwise an expired-then-replayed ID would pass.
	replayRetention = time.Hour
)

// MessageFilter performs structural validation, expiry checks and replay
// detection. Seen message IDs are kept in a concurrent map and pruned lazily.
type MessageFilter struct {
	TTL time.Duration

	seen *xsync.Map[string, int64]
	Now  func() time.Time
}

func NewMessageFilter() *MessageFilter {
	return &MessageFilter{
		TTL:  defaultMessageTTL,
		seen: xsync.NewMap[string, int64](),
		Now:  time.Now,
	}
}

// Check validates one envelope. A passing message is recorded so a second
// copy with the same ID is rejected as a replay.
func (f *MessageFilter) Check(env *Envelope) error {
	if env.MessageID == "" || env.Sender == "" || env.Receiver == "" {
		return ErrMalformedMessage
	}
	if len(env.Payload) == 0 || len(env.Payload) > maxPayloadBytes {
		return ErrMalformedMessage
	}
	if env.SourceChainID == env.DestinationChainID {
		return ErrMalformedMessage
	}

	now := f.Now()
	if env.Timestamp < now.Add(-f.TTL).Unix() {
		return ErrMessageExpired
	}

	if _, loaded := f.seen.LoadOrStore(env.MessageID, now.Unix()); loaded {
		return ErrReplayDetected
	}
	return nil
}

// Prune drops replay-cache entries older than the retention window. Called
// from a periodic tick.
func (f *MessageFilter) Prune() int {
	cutoff := f.Now().Add(-replayRetention).Unix()
	removed := 0
	f.seen.Range(func(id string, seenAt int64) bool {
		if seenAt < cutoff {
			f.seen.Delete(id)
			removed++
		}
		return true
	})
	return removed
}

// SeenCount returns the current replay-cache size.
func (f *MessageFilter) SeenCount() int {
	return f.seen.Size()
}
