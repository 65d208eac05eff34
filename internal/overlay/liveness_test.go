package overlay

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/test"
)

func newTestPeerID(t *testing.T) peer.ID {
	t.Helper()
	id, err := test.RandPeerID()
	if err != nil {
		t.Fatalf("RandPeerID: %v", err)
	}
	return id
}

func TestTouchIsIdempotent(t *testing.T) {
	tr := NewLivenessTracker()
	p := newTestPeerID(t)

	if newly := tr.Touch(p); !newly {
		t.Fatal("expected first touch to report newly present")
	}
	if newly := tr.Touch(p); newly {
		t.Fatal("expected second touch to report already present")
	}
}

func TestForgetReportsPriorPresence(t *testing.T) {
	tr := NewLivenessTracker()
	p := newTestPeerID(t)

	if was := tr.Forget(p); was {
		t.Fatal("expected Forget on unknown peer to report not-present")
	}

	tr.Touch(p)
	if was := tr.Forget(p); !was {
		t.Fatal("expected Forget on known peer to report present")
	}
	if was := tr.Forget(p); was {
		t.Fatal("expected second Forget to report not-present")
	}
}

func TestRelayPeerNeverAdmitted(t *testing.T) {
	tr := NewLivenessTracker()
	relay := newTestPeerID(t)
	tr.SetRelayPeerID(relay)

	if newly := tr.Touch(relay); newly {
		t.Fatal("expected touching the relay peer to be a no-op")
	}
	if len(tr.Peers()) != 0 {
		t.Fatal("expected relay peer to never appear in the tracked set")
	}
}

func TestSetRelayPeerIDEvictsExisting(t *testing.T) {
	tr := NewLivenessTracker()
	p := newTestPeerID(t)
	tr.Touch(p)

	tr.SetRelayPeerID(p)
	if len(tr.Peers()) != 0 {
		t.Fatal("expected peer to be evicted once it is recognized as the relay")
	}
}

func TestSweepEvictsOnlyStalePeers(t *testing.T) {
	tr := NewLivenessTracker()
	stale := newTestPeerID(t)
	fresh := newTestPeerID(t)

	tr.lastSeen[stale] = time.Now().Add(-time.Minute)
	tr.Touch(fresh)

	evicted := tr.Sweep(time.Now(), 45*time.Second)
	if len(evicted) != 1 || evicted[0] != stale {
		t.Fatalf("expected only the stale peer to be evicted, got %v", evicted)
	}

	remaining := tr.Peers()
	if len(remaining) != 1 || remaining[0] != fresh {
		t.Fatalf("expected fresh peer to remain tracked, got %v", remaining)
	}
}

func TestClearEmptiesTheSet(t *testing.T) {
	tr := NewLivenessTracker()
	tr.Touch(newTestPeerID(t))
	tr.Touch(newTestPeerID(t))

	tr.Clear()
	if len(tr.Peers()) != 0 {
		t.Fatal("expected Clear to empty the tracked set")
	}
}
