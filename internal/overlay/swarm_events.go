package overlay

import (
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// SwarmEvent is the tagged union the Swarm Driver yields on its Events
// channel.
// The event loop dispatches on its concrete type; anything not named in
// the dispatch table (§4.7 Source C) falls through to the default case
// and is ignored.
type SwarmEvent interface {
	isSwarmEvent()
}

type EvGossipMessage struct {
	Source peer.ID
	Data   []byte
}

type EvMdnsDiscovered struct {
	Peer  peer.ID
	Addrs []ma.Multiaddr
}

type EvMdnsExpired struct {
	Peer  peer.ID
	Addrs []ma.Multiaddr
}

type EvKademliaRoutingUpdated struct {
	Peer peer.ID
}

type EvConnectionEstablished struct {
	Peer peer.ID
}

type EvConnectionClosed struct {
	Peer      peer.ID
	Remaining int
}

type EvIdentifyReceived struct {
	Peer        peer.ID
	ListenAddrs []ma.Multiaddr
}

type EvRelayReservationAccepted struct{}

// EvOther covers transport lifecycle events the dispatch table does not
// name (NewListenAddr, IncomingConnection, IncomingConnectionError) and
// any ping/other behaviour traffic. The event loop ignores it.
type EvOther struct {
	Kind string
}

func (EvGossipMessage) isSwarmEvent()            {}
func (EvMdnsDiscovered) isSwarmEvent()           {}
func (EvMdnsExpired) isSwarmEvent()              {}
func (EvKademliaRoutingUpdated) isSwarmEvent()   {}
func (EvConnectionEstablished) isSwarmEvent()    {}
func (EvConnectionClosed) isSwarmEvent()         {}
func (EvIdentifyReceived) isSwarmEvent()         {}
func (EvRelayReservationAccepted) isSwarmEvent() {}
func (EvOther) isSwarmEvent()                    {}
