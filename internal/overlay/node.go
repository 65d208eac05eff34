// Package overlay implements the node runtime: behaviour set
// composition, peer liveness tracking, the command channel, the event
// sink, and the cooperative event loop that ties them together.
package overlay

import (
	"context"
	"fmt"
	"strings"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	logging "github.com/ipfs/go-log/v2"

	"github.com/google/uuid"

	"github.com/p2pmsg/overlay/internal/transport"
)

var nodeLog = logging.Logger("overlay/node")

const (
	discoveryTickInterval    = 15 * time.Second
	livenessTimeout          = 45 * time.Second
	reservationAnnounceDelay = 500 * time.Millisecond

	presencePrefix = "ANNOUNCE:PRESENCE"
	refreshPrefix  = "ANNOUNCE:REFRESH"
	welcomePrefix  = "ANNOUNCE:WELCOME"
)

// Config is everything New needs beyond the identity keypair.
type Config struct {
	Role           transport.Role
	ListenPort     int
	RelayAddress   string
	BootstrapNodes []string
}

// Node is the runnable overlay instance: a host, its behaviour set, the
// liveness tracker, the command channel, and the event sink.
type Node struct {
	host host.Host
	cfg  Config

	driver   *Driver
	liveness *LivenessTracker
	sink     *EventSink
	commands *CommandChannel

	relay         *RelayBootstrap
	relayPhysical ma.Multiaddr

	// sessionID correlates this run's log lines across the host,
	// driver, and node packages — never sent on the wire.
	sessionID string
}

func dhtModeFor(role transport.Role) dht.ModeOpt {
	if role == transport.RoleRelay {
		return dht.ModeServer
	}
	return dht.ModeAuto
}

// New constructs the host, behaviour set, and driver, but does not yet
// run the event loop — call Run for that. emit delivers event-sink
// lines to the host; commands is typically overlay.GlobalCommandChannel().
func New(ctx context.Context, priv crypto.PrivKey, cfg Config, commands *CommandChannel, emit func(line string)) (*Node, error) {
	var relay *RelayBootstrap
	var relayPhysical ma.Multiaddr
	var relayStatic *peer.AddrInfo

	if cfg.RelayAddress != "" {
		rb, physical, err := ParseRelayBootstrap(cfg.RelayAddress)
		if err != nil {
			nodeLog.Warnf("malformed relay_address, disabling relay: %v", err)
		} else {
			relay = rb
			relayPhysical = physical
			if rb.HasPeerID {
				relayStatic = &peer.AddrInfo{ID: rb.PeerID, Addrs: []ma.Multiaddr{physical}}
			}
		}
	}

	hostOpts, err := transport.BuildHostOptions(priv, transport.Options{
		Role:            cfg.Role,
		ListenPort:      cfg.ListenPort,
		RelayStaticAddr: relayStatic,
	})
	if err != nil {
		return nil, fmt.Errorf("build host options: %w", err)
	}

	h, err := libp2p.New(hostOpts...)
	if err != nil {
		return nil, fmt.Errorf("construct host: %w", err)
	}

	driver, err := NewDriver(ctx, h, dhtModeFor(cfg.Role))
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("construct behaviour set: %w", err)
	}

	if cfg.Role == transport.RoleRelay {
		if _, err := transport.StartRelayService(h); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("start relay service: %w", err)
		}
	}

	liveness := NewLivenessTracker()
	if relay != nil && relay.HasPeerID {
		liveness.SetRelayPeerID(relay.PeerID)
	}

	return &Node{
		host:          h,
		cfg:           cfg,
		driver:        driver,
		liveness:      liveness,
		sink:          NewEventSink(emit),
		commands:      commands,
		relay:         relay,
		relayPhysical: relayPhysical,
		sessionID:     uuid.NewString(),
	}, nil
}

// Host returns the underlying libp2p host.
func (n *Node) Host() host.Host { return n.host }

// Run performs the relay/bootstrap startup sequence, emits ME:, and
// then drives the cooperative event loop until ctx is canceled.
func (n *Node) Run(ctx context.Context) error {
	nodeLog.Infof("session %s starting for peer %s", n.sessionID, n.host.ID())
	defer nodeLog.Infof("session %s stopped", n.sessionID)

	n.sink.Me(n.host.ID())

	if n.relay != nil {
		if err := DialRelay(ctx, n.driver, n.relayPhysical, n.relay); err != nil {
			nodeLog.Warnf("relay dial: %v", err)
		}
	}

	SeedBootstrapNodes(ctx, n.driver, n.cfg.BootstrapNodes, n.relay)

	n.runPingLoop(ctx)

	ticker := time.NewTicker(discoveryTickInterval)
	defer ticker.Stop()

	cmdCh := n.commands.Chan()
	events := n.driver.Events()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd, ok := <-cmdCh:
			if !ok {
				return nil
			}
			n.handleCommand(ctx, cmd)

		case now := <-ticker.C:
			n.handleDiscoveryTick(ctx, now)

		case ev := <-events:
			n.handleSwarmEvent(ctx, ev)
		}
	}
}

// runPingLoop actively probes every connected peer every 30s. Results
// have no effect on the dispatch table; ping exists to keep connections
// warm and surface RTT to logs.
func (n *Node) runPingLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range n.driver.ConnectedPeers() {
					go n.driver.PingPeer(ctx, p)
				}
			}
		}
	}()
}

// --- Source A: command arrival ---

func (n *Node) handleCommand(ctx context.Context, cmd Command) {
	if cmd.Recipient == ReservedRefresh {
		n.handleRefreshCommand(ctx)
		return
	}
	if cmd.Recipient == ReservedHistory {
		n.sink.Replay()
		return
	}

	if err := n.driver.Publish(ctx, []byte(cmd.Body)); err != nil {
		nodeLog.Debugf("publish failed: %v", err)
		return
	}
	if cmd.Recipient != ReservedBroadcast {
		n.sink.MessageSent(cmd.Recipient, cmd.Body)
	}
}

func (n *Node) handleRefreshCommand(ctx context.Context) {
	n.liveness.Clear()

	if err := n.driver.Bootstrap(ctx); err != nil {
		nodeLog.Debugf("bootstrap on refresh: %v", err)
	}
	n.driver.QueryRandomClosestPeers(ctx)

	if err := n.driver.Publish(ctx, []byte(refreshPrefix)); err != nil {
		nodeLog.Debugf("publish refresh announce: %v", err)
	}

	for _, p := range n.driver.ConnectedPeers() {
		if n.liveness.IsRelay(p) {
			continue
		}
		if n.liveness.Touch(p) {
			n.sink.PeerJoined(p)
		}
	}
}

// --- Source B: periodic discovery tick ---

func (n *Node) handleDiscoveryTick(ctx context.Context, now time.Time) {
	// mDNS expiry synthesis runs on every tick regardless of relay
	// status: it stands in for a transport-level signal (Source C),
	// not the relay-gated discovery behaviour below.
	n.driver.SweepMdnsExpiry(now)

	if n.relay == nil || !n.relay.HasPeerID {
		return
	}

	n.driver.QueryRandomClosestPeers(ctx)
	if err := n.driver.Publish(ctx, []byte(refreshPrefix)); err != nil {
		nodeLog.Debugf("publish periodic refresh: %v", err)
	}

	for _, p := range n.liveness.Sweep(now, livenessTimeout) {
		n.sink.PeerLeft(p)
	}
}

// --- Source C: swarm events ---

func (n *Node) handleSwarmEvent(ctx context.Context, ev SwarmEvent) {
	switch e := ev.(type) {
	case EvGossipMessage:
		n.handleGossipMessage(ctx, e)

	case EvMdnsDiscovered:
		newly := n.liveness.Touch(e.Peer)
		if newly {
			n.driver.AddGossipPeer(e.Peer)
			for _, addr := range e.Addrs {
				n.driver.AddRoutingAddress(e.Peer, addr)
			}
			n.sink.PeerJoined(e.Peer)
		}

	case EvMdnsExpired:
		for _, addr := range e.Addrs {
			n.driver.RemoveRoutingAddress(e.Peer, addr)
		}
		if n.liveness.Forget(e.Peer) {
			n.sink.PeerLeft(e.Peer)
		}

	case EvKademliaRoutingUpdated:
		n.driver.AddGossipPeer(e.Peer)
		if !n.liveness.IsRelay(e.Peer) && n.liveness.Touch(e.Peer) {
			n.sink.PeerJoined(e.Peer)
		}

	case EvConnectionEstablished:
		n.driver.AddGossipPeer(e.Peer)
		if n.liveness.IsRelay(e.Peer) {
			n.requestRelayReservation()
			return
		}
		if n.liveness.Touch(e.Peer) {
			n.sink.PeerJoined(e.Peer)
		}

	case EvConnectionClosed:
		if e.Remaining == 0 {
			n.driver.RemoveGossipPeer(e.Peer)
			if n.liveness.Forget(e.Peer) {
				n.sink.PeerLeft(e.Peer)
			}
		}

	case EvIdentifyReceived:
		for _, addr := range e.ListenAddrs {
			n.driver.AddRoutingAddress(e.Peer, addr)
		}

	case EvRelayReservationAccepted:
		n.schedulePresenceAnnounce(ctx)

	default:
		// anything else: ignore
	}
}

func (n *Node) handleGossipMessage(ctx context.Context, e EvGossipMessage) {
	if n.liveness.Touch(e.Source) {
		n.sink.PeerJoined(e.Source)
	}

	text := string(e.Data)
	switch {
	case strings.HasPrefix(text, presencePrefix), strings.HasPrefix(text, refreshPrefix):
		if err := n.driver.Publish(ctx, []byte(welcomePrefix)); err != nil {
			nodeLog.Debugf("publish welcome: %v", err)
		}
	case strings.HasPrefix(text, welcomePrefix):
		nodeLog.Debugf("welcome from %s", e.Source)
	default:
		n.sink.Message(e.Source, text)
	}
}

// requestRelayReservation re-listens on the original relay address
// (circuit marker intact) once the relay connection is up, which is
// how go-libp2p's circuit-v2 client requests a reservation.
func (n *Node) requestRelayReservation() {
	if n.relay == nil || n.relay.OriginalAddr == nil {
		return
	}
	if err := n.driver.ListenOn(n.relay.OriginalAddr); err != nil {
		nodeLog.Debugf("request relay reservation: %v", err)
	}
}

// schedulePresenceAnnounce re-enters the publish path through the
// command channel after a short delay, so gossip mesh formation has a
// beat to settle before the first broadcast — see §4.7's note on the
// 500ms delay.
func (n *Node) schedulePresenceAnnounce(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(reservationAnnounceDelay):
			n.commands.Send(ReservedBroadcast, presencePrefix)
		}
	}()
}
