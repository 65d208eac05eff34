package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/protocol/identify"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	ma "github.com/multiformats/go-multiaddr"

	logging "github.com/ipfs/go-log/v2"

	"github.com/p2pmsg/overlay/internal/maddr"
	"github.com/p2pmsg/overlay/internal/util"
)

var swarmLog = logging.Logger("overlay/swarm")

// KademliaProtocolID and IdentifyProtocolID are the protocol identifiers
// the behaviour set is configured with, overriding go-libp2p's IPFS
// defaults.
const (
	KademliaProtocolID = protocol.ID("/p2p_msg/kad/1.0.0")
	IdentifyProtocolID = protocol.ID("/p2p_msg/id/1.0.0")
	GossipTopic        = "p2p-chat-global"
	mdnsServiceTag      = "p2p-chat-overlay"

	pingInterval = 30 * time.Second
	// mdnsExpiryAfter is how long a peer can go unseen via a fresh mDNS
	// broadcast before we synthesize an Expired event. go-libp2p's mdns
	// service (unlike rust-libp2p's) reports discovery only, never
	// expiry, so the driver tracks last-seen-via-mdns itself and sweeps
	// on the same cadence as the periodic discovery tick.
	mdnsExpiryAfter = 40 * time.Second
)

func init() {
	identify.ID = IdentifyProtocolID
}

// Driver is the Swarm Driver: it owns the transport, the behaviour set,
// and a single unified event channel. Exactly one task (the event loop)
// may drain the Events channel at a time; all mutating
// methods are meant to be called from that same task between yields.
type Driver struct {
	Host  host.Host
	DHT   *dht.IpfsDHT
	PS    *pubsub.PubSub
	Topic *pubsub.Topic
	Sub   *pubsub.Subscription
	Ping  *ping.PingService

	events chan SwarmEvent

	mu          sync.Mutex
	mdnsLastSeen map[peer.ID]time.Time
	mdnsAddrs    map[peer.ID][]ma.Multiaddr
}

// NewDriver constructs the behaviour set atop an already-built host and
// starts the background readers that funnel every sub-behaviour's
// activity into one event channel.
func NewDriver(ctx context.Context, h host.Host, dhtMode dht.ModeOpt) (*Driver, error) {
	kdht, err := dht.New(ctx, h,
		dht.ProtocolPrefix("/p2p_msg"),
		dht.Mode(dhtMode),
	)
	if err != nil {
		return nil, fmt.Errorf("construct kademlia dht: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
		pubsub.WithGossipSubParams(gossipSubParams()),
	)
	if err != nil {
		return nil, fmt.Errorf("construct gossipsub: %w", err)
	}

	topic, err := ps.Join(GossipTopic)
	if err != nil {
		return nil, fmt.Errorf("join topic %s: %w", GossipTopic, err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe topic %s: %w", GossipTopic, err)
	}

	d := &Driver{
		Host:         h,
		DHT:          kdht,
		PS:           ps,
		Topic:        topic,
		Sub:          sub,
		Ping:         ping.NewPingService(h),
		events:       make(chan SwarmEvent, 256),
		mdnsLastSeen: make(map[peer.ID]time.Time),
		mdnsAddrs:    make(map[peer.ID][]ma.Multiaddr),
	}

	d.wireRoutingTable()
	d.wireConnectionNotifiee()
	d.wireEventBus()
	d.wireMdns(h)
	go d.readGossip(ctx)

	return d, nil
}

func gossipSubParams() pubsub.GossipSubParams {
	p := pubsub.DefaultGossipSubParams()
	p.HeartbeatInterval = 1 * time.Second
	return p
}

// Events returns the unified event channel. NextEvent-style consumption
// happens by selecting on this channel alongside the command channel
// and the discovery ticker.
func (d *Driver) Events() <-chan SwarmEvent {
	return d.events
}

func (d *Driver) push(ev SwarmEvent) {
	select {
	case d.events <- ev:
	default:
		swarmLog.Warnf("event channel full, dropping %T", ev)
	}
}

// wireRoutingTable chains onto the routing table's PeerAdded hook rather
// than replacing it: go-libp2p-kad-dht installs its own PeerAdded during
// dht.New to protect routing-table peers in the connection manager, and
// overwriting it would silently disable that protection, leaving DHT
// peers eligible for connmgr pruning.
func (d *Driver) wireRoutingTable() {
	rt := d.DHT.RoutingTable()
	prev := rt.PeerAdded
	rt.PeerAdded = func(p peer.ID) {
		if prev != nil {
			prev(p)
		}
		d.push(EvKademliaRoutingUpdated{Peer: p})
	}
}

type connNotifiee struct{ d *Driver }

func (n connNotifiee) Connected(net network.Network, c network.Conn) {
	n.d.push(EvConnectionEstablished{Peer: c.RemotePeer()})
}

func (n connNotifiee) Disconnected(net network.Network, c network.Conn) {
	remaining := len(net.ConnsToPeer(c.RemotePeer()))
	n.d.push(EvConnectionClosed{Peer: c.RemotePeer(), Remaining: remaining})
}

func (n connNotifiee) Listen(network.Network, ma.Multiaddr)      {}
func (n connNotifiee) ListenClose(network.Network, ma.Multiaddr) {}

func (d *Driver) wireConnectionNotifiee() {
	d.Host.Network().Notify(connNotifiee{d: d})
}

func (d *Driver) wireEventBus() {
	bus := d.Host.EventBus()

	if sub, err := bus.Subscribe(new(event.EvtPeerIdentificationCompleted)); err == nil {
		go func() {
			for e := range sub.Out() {
				evt := e.(event.EvtPeerIdentificationCompleted)
				d.push(EvIdentifyReceived{Peer: evt.Peer, ListenAddrs: evt.ListenAddrs})
			}
		}()
	} else {
		swarmLog.Warnf("subscribe identify events: %v", err)
	}

	if sub, err := bus.Subscribe(new(event.EvtLocalAddressesUpdated)); err == nil {
		hadCircuit := maddr.HasCircuit(d.Host.Addrs())
		go func() {
			for range sub.Out() {
				hasCircuit := maddr.HasCircuit(d.Host.Addrs())
				if hasCircuit && !hadCircuit {
					d.push(EvRelayReservationAccepted{})
				}
				hadCircuit = hasCircuit
			}
		}()
	} else {
		swarmLog.Warnf("subscribe address-change events: %v", err)
	}
}

type mdnsNotifee struct{ d *Driver }

func (n mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	d := n.d
	d.mu.Lock()
	d.mdnsLastSeen[pi.ID] = time.Now()
	d.mdnsAddrs[pi.ID] = pi.Addrs
	d.mu.Unlock()
	d.push(EvMdnsDiscovered{Peer: pi.ID, Addrs: pi.Addrs})
}

func (d *Driver) wireMdns(h host.Host) {
	svc := mdns.NewMdnsService(h, mdnsServiceTag, mdnsNotifee{d: d})
	if err := svc.Start(); err != nil {
		swarmLog.Warnf("start mdns: %v", err)
	}
}

// SweepMdnsExpiry synthesizes Expired events for peers not re-announced
// via mDNS within mdnsExpiryAfter. Called from the periodic discovery
// tick (Source B), which already runs on a matching cadence.
func (d *Driver) SweepMdnsExpiry(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for p, seen := range d.mdnsLastSeen {
		if now.Sub(seen) > mdnsExpiryAfter {
			addrs := d.mdnsAddrs[p]
			delete(d.mdnsLastSeen, p)
			delete(d.mdnsAddrs, p)
			d.push(EvMdnsExpired{Peer: p, Addrs: addrs})
		}
	}
}

func (d *Driver) readGossip(ctx context.Context) {
	for {
		msg, err := d.Sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			swarmLog.Warnf("gossip read error: %v", err)
			continue
		}
		if msg.ReceivedFrom == d.Host.ID() {
			continue
		}
		d.push(EvGossipMessage{Source: msg.ReceivedFrom, Data: msg.Data})
	}
}

// ListenOn requests an additional listen address — used to request a
// relay reservation once the relay connection is established.
func (d *Driver) ListenOn(addr ma.Multiaddr) error {
	return d.Host.Network().Listen(addr)
}

// Dial connects to the given peer, merging any addresses it already has
// in the peerstore.
func (d *Driver) Dial(ctx context.Context, pi peer.AddrInfo) error {
	d.Host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.TempAddrTTL)
	return d.Host.Connect(ctx, pi)
}

// Publish sends data on the overlay topic.
func (d *Driver) Publish(ctx context.Context, data []byte) error {
	return d.Topic.Publish(ctx, data)
}

// AddRoutingAddress injects (peer, addr) into the peerstore and the
// Kademlia routing table, per the DHT-seeding operation named in the
// spec's multiaddress model.
func (d *Driver) AddRoutingAddress(p peer.ID, addr ma.Multiaddr) {
	d.Host.Peerstore().AddAddr(p, addr, peerstore.ConnectedAddrTTL)
	if _, err := d.DHT.RoutingTable().TryAddPeer(p, false, false); err != nil {
		swarmLog.Debugf("routing table add %s: %v", p, err)
	}
}

// RemoveRoutingAddress removes addr from the peerstore's record for p,
// keeping any other known addresses. Setting an address's TTL to zero
// is how go-libp2p's peerstore removes that single address.
func (d *Driver) RemoveRoutingAddress(p peer.ID, addr ma.Multiaddr) {
	d.Host.Peerstore().SetAddr(p, addr, 0)
}

// AddGossipPeer pins the connection to p against the connection
// manager's pruning so the gossip mesh treats it as a preferred peer —
// the closest equivalent go-libp2p-pubsub offers to rust-libp2p's
// explicit-peer list, since pubsub here derives mesh membership from
// live connections rather than a separately addressable peer set.
func (d *Driver) AddGossipPeer(p peer.ID) {
	d.Host.ConnManager().Protect(p, "gossip")
}

// RemoveGossipPeer reverses AddGossipPeer.
func (d *Driver) RemoveGossipPeer(p peer.ID) {
	d.Host.ConnManager().Unprotect(p, "gossip")
}

// ConnectedPeers returns the peers the host currently has a live
// connection to.
func (d *Driver) ConnectedPeers() []peer.ID {
	return d.Host.Network().Peers()
}

// Bootstrap issues a DHT bootstrap round.
func (d *Driver) Bootstrap(ctx context.Context) error {
	return d.DHT.Bootstrap(ctx)
}

// QueryRandomClosestPeers perturbs the routing table with a closest-peers
// query against a random target, matching the periodic/"REFRESH"
// discovery behaviour.
func (d *Driver) QueryRandomClosestPeers(ctx context.Context) {
	target, err := randomPeerID()
	if err != nil {
		swarmLog.Warnf("random query target: %v", err)
		return
	}
	queryCtx, cancel := context.WithTimeout(ctx, util.DefaultFetchTimeout)
	defer cancel()
	if _, err := d.DHT.GetClosestPeers(queryCtx, string(target)); err != nil {
		swarmLog.Debugf("closest-peers query: %v", err)
	}
}

// PingPeer actively probes a connected peer's RTT. Results are not
// dispatched on — the behaviour set includes ping for liveness-probing
// side effects (keeping the connection warm) only; nothing in §4.7
// reacts to a ping result directly.
func (d *Driver) PingPeer(ctx context.Context, p peer.ID) {
	pingCtx, cancel := context.WithTimeout(ctx, util.ShortTimeout)
	defer cancel()
	for res := range d.Ping.Ping(pingCtx, p) {
		if res.Error != nil {
			swarmLog.Debugf("ping %s: %v", p, res.Error)
		}
		return
	}
}
