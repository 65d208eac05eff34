// Package transport composes the libp2p host options shared by both the
// client and relay roles: direct TCP, QUIC, and (for clients) a
// circuit-relay transport leg, all noise-authenticated and
// yamux-multiplexed by the underlying libp2p defaults.
package transport

import (
	"fmt"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"

	logging "github.com/ipfs/go-log/v2"
)

func init() {
	// Dial failures and backoff retries are noisy by default; the client
	// and relay event loops already surface the liveness signals that
	// matter to the host.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("relay", "info")
	logging.SetLogLevel("autorelay", "info")
	logging.SetLogLevel("autonat", "warn")
}

// Role distinguishes the two deployable node kinds. They share a
// transport stack and behaviour set but differ in relay participation
// and resource limits.
type Role int

const (
	RoleClient Role = iota
	RoleRelay
)

// IdleConnectionTimeout returns the per-connection idle timeout for a
// role: short for clients (who churn connections as peers come and go),
// long for relays (who must keep circuits alive for the reservation's
// life). BuildHostOptions does not apply it: hosts are built without an
// idle connection timeout.
func (r Role) IdleConnectionTimeout() time.Duration {
	if r == RoleRelay {
		return time.Hour
	}
	return 60 * time.Second
}

// Options describes what a host needs beyond its identity and role.
type Options struct {
	Role Role

	// ListenPort is the TCP (and, for relays, QUIC) port to bind. For
	// client nodes 0 means OS-assigned; for relay nodes 0 falls back to
	// 4001.
	ListenPort int

	// RelayStaticAddr, if present, is dialed as a static relay
	// candidate so AutoRelay can request a reservation through it once
	// reachability requires one. Only meaningful for RoleClient.
	RelayStaticAddr *peer.AddrInfo
}

// BuildHostOptions returns the libp2p.Option slice for constructing a host
// of the given role, libp2p.Identity(priv) included. The caller still
// owns calling libp2p.New with these options.
func BuildHostOptions(priv crypto.PrivKey, opts Options) ([]libp2p.Option, error) {
	// QUIC is registered ahead of TCP so outbound dials prefer it when a
	// peer's address book offers both, matching the stack's stated
	// preference order of direct QUIC, then direct TCP, then relay.
	o := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.Transport(tcp.NewTCPTransport),
	}

	switch opts.Role {
	case RoleClient:
		o = append(o,
			libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", opts.ListenPort)),
			libp2p.NATPortMap(),
			libp2p.EnableHolePunching(),
		)
		if opts.RelayStaticAddr != nil {
			o = append(o,
				libp2p.EnableRelay(),
				libp2p.EnableAutoRelayWithStaticRelays([]peer.AddrInfo{*opts.RelayStaticAddr}),
			)
		}
	case RoleRelay:
		if opts.ListenPort == 0 {
			opts.ListenPort = 4001
		}
		o = append(o,
			libp2p.ListenAddrStrings(
				fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", opts.ListenPort),
				fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", opts.ListenPort),
			),
			// The relay server doesn't dial out through relays itself.
			libp2p.DisableRelay(),
		)
	default:
		return nil, fmt.Errorf("unknown transport role %d", opts.Role)
	}

	return o, nil
}
