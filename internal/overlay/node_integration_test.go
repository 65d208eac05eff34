package overlay

import (
	"context"
	"testing"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

// newIntegrationHost builds a minimal real libp2p host on loopback, with
// relay disabled so the test exercises direct-dial gossip only.
func newIntegrationHost(t *testing.T) (host.Host, crypto.PrivKey) {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"),
		libp2p.DisableRelay(),
	)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h, priv
}

func newIntegrationDriver(t *testing.T, ctx context.Context, h host.Host) *Driver {
	t.Helper()
	d, err := NewDriver(ctx, h, dht.ModeClient)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d
}

// TestLocalMeshRoundTrip is an S1-style scenario: two directly-connected
// peers, no relay, no bootstrap. A broadcast published by one surfaces
// as an EvGossipMessage on the other's driver.
func TestLocalMeshRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	hostA, _ := newIntegrationHost(t)
	hostB, _ := newIntegrationHost(t)

	driverA := newIntegrationDriver(t, ctx, hostA)
	driverB := newIntegrationDriver(t, ctx, hostB)

	if err := hostA.Connect(ctx, peer.AddrInfo{ID: hostB.ID(), Addrs: hostB.Addrs()}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Give the gossipsub mesh a moment to form over the new connection.
	deadline := time.Now().Add(10 * time.Second)
	for len(driverA.PS.ListPeers(GossipTopic)) == 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if len(driverA.PS.ListPeers(GossipTopic)) == 0 {
		t.Fatal("timed out waiting for gossip mesh to form")
	}

	if err := driverA.Publish(ctx, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// B's driver also reports the connection itself (and identify,
	// routing and discovery activity) on the same channel; skip those.
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-driverB.Events():
			switch ev.(type) {
			case EvConnectionEstablished, EvIdentifyReceived, EvKademliaRoutingUpdated, EvMdnsDiscovered:
				continue
			}
			msg, ok := ev.(EvGossipMessage)
			if !ok {
				t.Fatalf("expected EvGossipMessage, got %T", ev)
			}
			if string(msg.Data) != "hello" {
				t.Fatalf("expected body %q, got %q", "hello", msg.Data)
			}
			if msg.Source != hostA.ID() {
				t.Fatalf("expected source %s, got %s", hostA.ID(), msg.Source)
			}
			return
		case <-timeout:
			t.Fatal("timed out waiting for gossip message to arrive")
		}
	}
}

// TestConnectionEventsSurfaceOnDriver exercises the transport-level
// notifiee wiring: a direct Connect produces an
// EvConnectionEstablished naming the remote peer on the dialing side.
func TestConnectionEventsSurfaceOnDriver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	hostA, _ := newIntegrationHost(t)
	hostB, _ := newIntegrationHost(t)

	driverA := newIntegrationDriver(t, ctx, hostA)
	_ = newIntegrationDriver(t, ctx, hostB)

	if err := hostA.Connect(ctx, peer.AddrInfo{ID: hostB.ID(), Addrs: hostB.Addrs()}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case ev := <-driverA.Events():
		est, ok := ev.(EvConnectionEstablished)
		if !ok {
			t.Fatalf("expected EvConnectionEstablished, got %T", ev)
		}
		if est.Peer != hostB.ID() {
			t.Fatalf("expected peer %s, got %s", hostB.ID(), est.Peer)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for connection established event")
	}
}
