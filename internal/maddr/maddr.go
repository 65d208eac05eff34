// Package maddr holds the small set of multiaddress manipulations the
// overlay needs: splitting a trailing circuit marker off a relay address,
// and splitting a trailing peer-id component off a routable address.
package maddr

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// IsCircuit reports whether a contains a /p2p-circuit component.
func IsCircuit(a ma.Multiaddr) bool {
	for _, p := range a.Protocols() {
		if p.Code == ma.P_CIRCUIT {
			return true
		}
	}
	return false
}

// HasCircuit reports whether any address in addrs is a circuit address.
func HasCircuit(addrs []ma.Multiaddr) bool {
	for _, a := range addrs {
		if IsCircuit(a) {
			return true
		}
	}
	return false
}

// SplitPeerID splits a trailing /p2p/<peer-id> component off addr, returning
// the address with that component removed and the peer ID it named. If addr
// does not end in a /p2p component, ok is false and addr is returned unchanged.
func SplitPeerID(addr ma.Multiaddr) (rest ma.Multiaddr, id peer.ID, ok bool) {
	rest, last := ma.SplitLast(addr)
	if last == nil {
		return addr, "", false
	}
	if comps := last.Protocols(); len(comps) != 1 || comps[0].Code != ma.P_P2P {
		return addr, "", false
	}

	id, err := peer.Decode(last.Value())
	if err != nil {
		return addr, "", false
	}

	return rest, id, true
}

// SplitCircuit pops a trailing /p2p-circuit marker (and anything after it,
// such as a relay-side peer-id) off addr, returning the physical address of
// the relay the circuit is carried over. If addr has no circuit marker, it
// is returned unchanged and popped is false.
func SplitCircuit(addr ma.Multiaddr) (physical ma.Multiaddr, popped bool) {
	if !IsCircuit(addr) {
		return addr, false
	}

	cur := addr
	for {
		rest, last := ma.SplitLast(cur)
		if last == nil {
			return addr, false
		}
		if comps := last.Protocols(); len(comps) == 1 && comps[0].Code == ma.P_CIRCUIT {
			return rest, true
		}
		cur = rest
	}
}

// ParseRelayAddress parses a configured relay_address into the physical
// address to dial and the relay's PeerID, if the address names one.
//
// The circuit marker, if present, must be stripped before the peer-id
// component is split off: /p2p-circuit is always the literal last
// component, and SplitPeerID only removes a /p2p/<id> that ends the
// address, so it would find nothing to split. Stripping the circuit
// marker first exposes the real .../p2p/<id> tail underneath for
// SplitPeerID to remove.
//
// A circuit address yields a bare physical address (.../tcp/<port>,
// peer-id removed) — that's what gets dialed, with the PeerID supplied
// separately via AddrInfo. A non-circuit address is returned unchanged,
// peer-id and all, since it is already exactly what host.Connect dials.
func ParseRelayAddress(raw string) (physical ma.Multiaddr, relayPeerID peer.ID, hasRelayPeerID bool, err error) {
	full, err := ma.NewMultiaddr(raw)
	if err != nil {
		return nil, "", false, fmt.Errorf("parse relay address %q: %w", raw, err)
	}

	if stripped, popped := SplitCircuit(full); popped {
		withoutPeer, id, hasPeer := SplitPeerID(stripped)
		if hasPeer {
			return withoutPeer, id, true, nil
		}
		return stripped, "", false, nil
	}

	_, id, hasPeer := SplitPeerID(full)
	return full, id, hasPeer, nil
}

// ParseBootstrapAddress splits a bootstrap_nodes entry into its routable
// address and PeerID. Malformed entries (no trailing peer-id component)
// return ok=false so the caller can skip them.
func ParseBootstrapAddress(raw string) (addr ma.Multiaddr, id peer.ID, ok bool, err error) {
	full, err := ma.NewMultiaddr(raw)
	if err != nil {
		return nil, "", false, fmt.Errorf("parse bootstrap address %q: %w", raw, err)
	}

	addr, id, ok = SplitPeerID(full)
	return addr, id, ok, nil
}
