package overlay

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// LivenessTracker is a deduplicated, timestamped set of peers believed to
// be reachable. It has no threading of its own — every method is called
// from the event loop goroutine between event yields.
type LivenessTracker struct {
	lastSeen map[peer.ID]time.Time

	// relayPeerID, when set, is never admitted to the map: the relay is
	// infrastructure, not a chat peer.
	relayPeerID peer.ID
	hasRelay    bool
}

// NewLivenessTracker constructs an empty tracker with no relay peer
// known; call SetRelayPeerID once it is discovered.
func NewLivenessTracker() *LivenessTracker {
	return &LivenessTracker{lastSeen: make(map[peer.ID]time.Time)}
}

// SetRelayPeerID records the relay's PeerID so it is excluded from the
// tracked set, evicting it immediately if it is already present.
func (t *LivenessTracker) SetRelayPeerID(id peer.ID) {
	t.relayPeerID = id
	t.hasRelay = true
	delete(t.lastSeen, id)
}

// IsRelay reports whether id is the known relay PeerID.
func (t *LivenessTracker) IsRelay(id peer.ID) bool {
	return t.hasRelay && id == t.relayPeerID
}

// Touch records peer id as seen now. Returns true if id was not
// previously present (a fresh join); idempotent on repeated calls. The
// relay's own PeerID is never admitted.
func (t *LivenessTracker) Touch(id peer.ID) bool {
	if t.IsRelay(id) {
		return false
	}
	_, present := t.lastSeen[id]
	t.lastSeen[id] = time.Now()
	return !present
}

// Forget removes id from the tracked set. Returns true if it was present.
func (t *LivenessTracker) Forget(id peer.ID) bool {
	_, present := t.lastSeen[id]
	if present {
		delete(t.lastSeen, id)
	}
	return present
}

// Sweep returns every peer whose last-seen timestamp is older than
// now-timeout, removing them from the tracked set.
func (t *LivenessTracker) Sweep(now time.Time, timeout time.Duration) []peer.ID {
	var stale []peer.ID
	cutoff := now.Add(-timeout)
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(t.lastSeen, id)
	}
	return stale
}

// Clear empties the tracked set without emitting events; callers are
// responsible for reconciling any resulting state.
func (t *LivenessTracker) Clear() {
	t.lastSeen = make(map[peer.ID]time.Time)
}

// Peers returns the currently tracked peer IDs, in no particular order.
func (t *LivenessTracker) Peers() []peer.ID {
	ids := make([]peer.ID, 0, len(t.lastSeen))
	for id := range t.lastSeen {
		ids = append(ids, id)
	}
	return ids
}
