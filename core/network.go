package core

// network.go – the message-bus adapter consensus and block-sync run over
// (spec.md §1 treats P2P transport as out of scope beyond a message bus).
// Grounded on the teacher's NewNode in network.go: same libp2p.New +
// gossipsub + mDNS discovery bootstrap, thinned to the Broadcast/Subscribe
// surface core/consensus.go and core/blocksync.go actually need.

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// NetworkConfig bootstraps a Node's libp2p host.
type NetworkConfig struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
}

// InboundMsg is one message delivered off a subscribed topic.
type InboundMsg struct {
	Topic string
	From  peer.ID
	Data  []byte
}

// Node is a gossipsub-backed message bus: every Iroha peer is reachable
// by topic, not by direct address, matching Sumeragi's broadcast-to-
// topology model.
type Node struct {
	mu     sync.Mutex
	host   libp2phost.Host
	pubsub *pubsub.PubSub
	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger
}

func NewNode(cfg NetworkConfig, logger *logrus.Logger) (*Node, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	for _, addr := range cfg.BootstrapPeers {
		if err := n.dial(addr); err != nil {
			logger.Warnf("network: bootstrap dial %s failed: %v", addr, err)
		}
	}

	if _, err := mdns.NewMdnsService(h, cfg.DiscoveryTag, mdnsNotifee{n}).Start(); err != nil {
		logger.Warnf("network: mdns discovery unavailable: %v", err)
	}

	return n, nil
}

type mdnsNotifee struct{ n *Node }

func (m mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == m.n.host.ID() {
		return
	}
	if err := m.n.host.Connect(m.n.ctx, info); err != nil {
		m.n.logger.Debugf("network: mdns connect to %s failed: %v", info.ID, err)
	}
}

func (n *Node) dial(addr string) error {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return err
	}
	return n.host.Connect(n.ctx, *info)
}

func (n *Node) topic(name string) (*pubsub.Topic, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.topics[name]; ok {
		return t, nil
	}
	t, err := n.pubsub.Join(name)
	if err != nil {
		return nil, err
	}
	n.topics[name] = t
	return t, nil
}

// Broadcast publishes data on topic to every subscribed peer.
func (n *Node) Broadcast(topic string, data []byte) error {
	t, err := n.topic(topic)
	if err != nil {
		return err
	}
	return t.Publish(n.ctx, data)
}

// Subscribe returns a channel of inbound messages on topic and an unsubscribe
// function to stop delivery.
func (n *Node) Subscribe(topic string) (<-chan InboundMsg, func(), error) {
	t, err := n.topic(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, err
	}
	n.mu.Lock()
	n.subs[topic] = sub
	n.mu.Unlock()

	out := make(chan InboundMsg, 64)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				return
			}
			if msg.ReceivedFrom == n.host.ID() {
				continue
			}
			select {
			case out <- InboundMsg{Topic: topic, From: msg.ReceivedFrom, Data: msg.Data}:
			case <-n.ctx.Done():
				return
			}
		}
	}()
	return out, sub.Cancel, nil
}

// Self returns this node's own peer id, used to skip self-broadcast loops.
func (n *Node) Self() peer.ID { return n.host.ID() }

func (n *Node) Close() error {
	n.cancel()
	n.mu.Lock()
	for _, s := range n.subs {
		s.Cancel()
	}
	n.mu.Unlock()
	return n.host.Close()
}
