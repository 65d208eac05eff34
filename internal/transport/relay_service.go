package transport

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	relayv2 "github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/relay"
)

// ReservationTTL is the relay's circuit-v2 reservation lifetime, per the
// data model's 1h reservation TTL.
const ReservationTTL = time.Hour

// StartRelayService turns an already-constructed relay-role host into a
// circuit relay v2 server. Unlike libp2p.EnableRelayService(), which
// defers startup until AutoNAT confirms public reachability, this starts
// immediately: a relay node is deployed with a known-reachable listen
// address, so there's nothing to wait on. Limits are widened well past
// go-libp2p's public-good defaults (2min/128KB duration/data per
// circuit) since gossipsub heartbeats and a long-lived chat session
// would otherwise exhaust them and silently kill the data path while
// the TCP connection itself stays up.
func StartRelayService(h host.Host) (*relayv2.Relay, error) {
	r, err := relayv2.New(h, relayv2.WithResources(relayv2.Resources{
		Limit: &relayv2.RelayLimit{
			Duration: 30 * time.Minute,
			Data:     1 << 24, // 16 MB
		},
		ReservationTTL:         ReservationTTL,
		MaxReservations:        1024,
		MaxCircuits:            1024,
		BufferSize:             4096,
		MaxReservationsPerPeer: 8,
		MaxReservationsPerIP:   16,
		MaxReservationsPerASN:  64,
	}))
	if err != nil {
		return nil, fmt.Errorf("start relay service: %w", err)
	}
	return r, nil
}
