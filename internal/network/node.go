package network

// Node wraps a libp2p host with gossip pubsub and mDNS discovery,
// adapted from the teacher's core/network.go. HandlePeerFound is
// generalised to run every discovered peer through the admission gate
// (spec.md §4.2) before it is registered as connected.

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"github.com/p2p-ai-agents/agentnode/internal/admission"
	"github.com/p2p-ai-agents/agentnode/internal/identity"
)

// Config configures a Node's transport layer (spec.md §6).
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
}

// Evaluator is the subset of admission.Admitter a Node depends on, so
// tests can substitute a stub without standing up a real admitter.
type Evaluator interface {
	Evaluate(ctx context.Context, c admission.Candidate) error
}

// Node is a running libp2p host plus its pubsub router, peer store, and
// (best-effort) NAT mapping.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	nat    *NATManager

	peers *PeerStore
	admit Evaluator

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic
	subLock   sync.Mutex
	subs      map[string]*pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	log    *logrus.Entry
}

// NewNode creates and bootstraps a libp2p node: host, gossip pubsub,
// best-effort NAT mapping, bootstrap dials, and mDNS discovery.
func NewNode(cfg Config, peers *PeerStore, admit Evaluator) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("network: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("network: create pubsub: %w", err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
		peers:  peers,
		admit:  admit,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		log:    logrus.WithField("component", "network"),
	}

	if natMgr, err := NewNATManager(); err == nil {
		if port, err := parsePort(cfg.ListenAddr); err == nil {
			if err := natMgr.Map(port); err != nil {
				n.log.WithError(err).Warn("nat mapping failed")
			} else {
				go natMgr.Renew(ctx)
			}
		}
		n.nat = natMgr
	} else {
		n.log.WithError(err).Warn("nat discovery failed")
	}

	if err := n.DialSeed(cfg.BootstrapPeers); err != nil {
		n.log.WithError(err).Warn("bootstrap dial warning")
	}

	mdns.NewMdnsService(h, cfg.DiscoveryTag, n)

	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee. A discovered peer is run
// through the admission gate before the libp2p connection is made; peers
// failing admission are never dialed.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}

	peerID := info.ID.String()
	if _, known := n.peers.Get(peerID); known {
		return
	}

	if n.admit != nil {
		addr, err := remoteIPFromAddrInfo(info)
		if err != nil {
			n.log.WithField("peer_id", peerID).WithError(err).Warn("could not derive remote address for admission")
			return
		}
		candidate := admission.Candidate{RemoteAddr: addr, PublicKey: []byte(info.ID)}
		if err := n.admit.Evaluate(n.ctx, candidate); err != nil {
			n.log.WithField("peer_id", peerID).WithError(err).Info("peer rejected by admission gate")
			return
		}
	}

	if err := n.host.Connect(n.ctx, info); err != nil {
		n.log.WithField("peer_id", peerID).WithError(err).Warn("failed to connect to discovered peer")
		return
	}

	addrs := make([]string, 0, len(info.Addrs))
	for _, a := range info.Addrs {
		addrs = append(addrs, a.String())
	}
	n.peers.Connect(peerID, addrs, CapabilitySet{})
	n.log.WithField("peer_id", peerID).Info("connected to peer via mDNS")
}

// DialSeed connects to a list of bootstrap peer multiaddresses.
func (n *Node) DialSeed(seeds []string) error {
	var failures int
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			n.log.WithField("addr", addr).WithError(err).Warn("invalid bootstrap address")
			failures++
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			n.log.WithField("addr", addr).WithError(err).Warn("bootstrap dial failed")
			failures++
			continue
		}
		n.peers.Connect(pi.ID.String(), []string{addr}, CapabilitySet{})
	}
	if failures > 0 && failures == len(seeds) && len(seeds) > 0 {
		return fmt.Errorf("network: all %d bootstrap dials failed", failures)
	}
	return nil
}

// Broadcast publishes data on topic, joining it first if necessary. Each
// call logs a fresh correlation id on the publishing side; the id is not
// carried in the published message.
func (n *Node) Broadcast(ctx context.Context, topic string, data []byte) error {
	correlationID := identity.NewMessageID()
	n.topicLock.Lock()
	t, ok := n.topics[topic]
	if !ok {
		var err error
		t, err = n.pubsub.Join(topic)
		if err != nil {
			n.topicLock.Unlock()
			return fmt.Errorf("network: join topic %s: %w", topic, err)
		}
		n.topics[topic] = t
	}
	n.topicLock.Unlock()
	if err := t.Publish(ctx, data); err != nil {
		n.log.WithField("correlation_id", correlationID).WithField("topic", topic).WithError(err).Warn("publish failed")
		return fmt.Errorf("network: publish topic %s: %w", topic, err)
	}
	n.log.WithField("correlation_id", correlationID).WithField("topic", topic).Debug("published message")
	return nil
}

// InboundMessage is a decoded pubsub message delivered to a subscriber.
type InboundMessage struct {
	From  string
	Topic string
	Data  []byte
}

// Subscribe joins topic (if needed) and returns a channel of inbound
// messages. The channel closes when the subscription ends.
func (n *Node) Subscribe(topic string) (<-chan InboundMessage, error) {
	n.subLock.Lock()
	sub, ok := n.subs[topic]
	if !ok {
		t, err := n.pubsub.Join(topic)
		if err != nil {
			n.subLock.Unlock()
			return nil, fmt.Errorf("network: join topic %s: %w", topic, err)
		}
		n.topicLock.Lock()
		n.topics[topic] = t
		n.topicLock.Unlock()

		sub, err = t.Subscribe()
		if err != nil {
			n.subLock.Unlock()
			return nil, fmt.Errorf("network: subscribe topic %s: %w", topic, err)
		}
		n.subs[topic] = sub
	}
	n.subLock.Unlock()

	out := make(chan InboundMessage)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				return
			}
			out <- InboundMessage{From: msg.GetFrom().String(), Topic: topic, Data: msg.Data}
		}
	}()
	return out, nil
}

// PeerStore exposes the node's peer record store.
func (n *Node) PeerStore() *PeerStore { return n.peers }

// ID returns this node's libp2p peer ID as a string.
func (n *Node) ID() string { return n.host.ID().String() }

// Close tears down the node: cancels its context, removes the NAT
// mapping (best-effort), and closes the libp2p host.
func (n *Node) Close() error {
	n.cancel()
	if n.nat != nil {
		_ = n.nat.Unmap()
	}
	return n.host.Close()
}
