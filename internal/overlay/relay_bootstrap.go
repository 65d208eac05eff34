package overlay

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/p2pmsg/overlay/internal/maddr"
	"github.com/p2pmsg/overlay/internal/util"
)

// RelayBootstrap holds what was learned while parsing a configured
// relay_address, and drives the startup sequence described in §4.9:
// dial the relay's physical address first, and only request a
// reservation (listen_on the full address, circuit marker included)
// once the connection to the relay is established.
type RelayBootstrap struct {
	PeerID      peer.ID
	HasPeerID   bool
	OriginalAddr ma.Multiaddr // full address, circuit marker intact; used for listen_on
}

// ParseRelayBootstrap parses raw (the configured relay_address). It does
// not dial — the caller dials the physical address this returns and
// waits for ConnectionEstablished before requesting a reservation.
func ParseRelayBootstrap(raw string) (*RelayBootstrap, ma.Multiaddr, error) {
	if raw == "" {
		return nil, nil, nil
	}

	full, err := ma.NewMultiaddr(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse relay_address %q: %w", raw, err)
	}

	physical, relayPeerID, hasPeerID, err := maddr.ParseRelayAddress(raw)
	if err != nil {
		return nil, nil, err
	}

	return &RelayBootstrap{
		PeerID:       relayPeerID,
		HasPeerID:    hasPeerID,
		OriginalAddr: full,
	}, physical, nil
}

// DialRelay connects to the relay's physical address. The caller's
// event loop will observe ConnectionEstablished and react per §4.7.
// Dialing requires knowing the relay's PeerID — go-libp2p's Connect has
// no "dial blind, learn identity from the handshake" mode — so a
// relay_address with no trailing peer-id component is a startup-
// degraded configuration error: it is logged and skipped rather than
// dialed.
func DialRelay(ctx context.Context, d *Driver, physical ma.Multiaddr, rb *RelayBootstrap) error {
	if rb == nil {
		return nil
	}
	if !rb.HasPeerID {
		return fmt.Errorf("relay_address %s has no /p2p/<peer-id> component, cannot dial", physical)
	}
	dialCtx, cancel := context.WithTimeout(ctx, util.DefaultConnectTimeout)
	defer cancel()
	return d.Dial(dialCtx, peer.AddrInfo{ID: rb.PeerID, Addrs: []ma.Multiaddr{physical}})
}

// SeedBootstrapNodes injects each configured bootstrap_nodes entry into
// the DHT routing table and dials it, unless it is the relay (avoiding a
// double connection — see DESIGN NOTES "relay as bootstrap"). Malformed
// entries are skipped. Dials fan out concurrently via errgroup so one
// slow or unreachable bootstrap peer doesn't delay the others.
func SeedBootstrapNodes(ctx context.Context, d *Driver, entries []string, rb *RelayBootstrap) {
	g, gctx := errgroup.WithContext(ctx)

	for _, raw := range entries {
		addr, id, ok, err := maddr.ParseBootstrapAddress(raw)
		if err != nil || !ok {
			swarmLog.Warnf("skipping malformed bootstrap entry %q: %v", raw, err)
			continue
		}

		d.AddRoutingAddress(id, addr)

		if rb != nil && rb.HasPeerID && id == rb.PeerID {
			continue
		}

		// addr and id are declared fresh by ParseBootstrapAddress on
		// every iteration (Go 1.22+ per-iteration loop semantics), so
		// the closure below captures this iteration's values safely.
		g.Go(func() error {
			dialCtx, cancel := context.WithTimeout(gctx, util.DefaultConnectTimeout)
			defer cancel()
			if err := d.Dial(dialCtx, peer.AddrInfo{ID: id, Addrs: []ma.Multiaddr{addr}}); err != nil {
				swarmLog.Debugf("dial bootstrap peer %s: %v", id, err)
			}
			return nil
		})
	}

	_ = g.Wait()
}
