// TaigaChat
// Copyright (c) 2026 The TaigaChat Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of TaigaChat.
//
// TaigaChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// TaigaChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with TaigaChat.  If not, see <http://www.gnu.org/licenses/>.

// Package registry holds the Channel Registry: the mutable map from
// channel id to Channel, and the peers/transports/producers/consumers each
// channel exclusively owns. Every exported method here is called only from
// the dispatch loop — it is not safe to call concurrently from
// multiple goroutines, by design, since the dispatch queue is the system's
// single linearisation point.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taigachat/launcher-sfu/internal/sfu/wire"
	"github.com/taigachat/launcher-sfu/internal/sfu/worker"
)

var (
	// ErrDuplicateChannel is returned by NewChannel for an id already in use.
	ErrDuplicateChannel = errors.New("registry: channel id already in use")
	// ErrUnknownChannel is returned when an operation names a channel that
	// does not exist.
	ErrUnknownChannel = errors.New("registry: unknown channel")
	// ErrUnknownPeer is returned when an operation names a peer that does
	// not exist in the given channel.
	ErrUnknownPeer = errors.New("registry: unknown peer")
	// ErrUnknownTransport is returned when an operation names a transport
	// that does not exist on the given peer.
	ErrUnknownTransport = errors.New("registry: unknown transport")
	// ErrUnknownProducer is returned when an operation names a producer
	// that does not exist on the given peer.
	ErrUnknownProducer = errors.New("registry: unknown producer")
)

// Peer is one channel participant: its deafen flag and the WebRTC
// resources it exclusively owns.
type Peer struct {
	Deaf bool

	Transports map[string]worker.Transport
	Producers  map[string]worker.Producer
	Consumers  map[string]worker.Consumer
}

func newPeer() *Peer {
	return &Peer{
		Transports: map[string]worker.Transport{},
		Producers:  map[string]worker.Producer{},
		Consumers:  map[string]worker.Consumer{},
	}
}

// Channel owns a router and the peers connected to it.
type Channel struct {
	ID         wire.ChannelID
	Router     worker.Router
	Peers      map[wire.PeerID]*Peer
	ListenIP   string
	AnnounceIP string
}

// Registry is the process-wide map from channel id to Channel.
type Registry struct {
	w          worker.Worker
	listenIP   string
	announceIP string

	channels map[wire.ChannelID]*Channel
}

// New constructs an empty Registry. listenIP and announceIP are applied to
// every transport created in any channel.
func New(w worker.Worker, listenIP, announceIP string) *Registry {
	return &Registry{
		w:          w,
		listenIP:   listenIP,
		announceIP: announceIP,
		channels:   map[wire.ChannelID]*Channel{},
	}
}

// NewChannel creates a router scoped to codecs and registers the channel.
// It rejects a duplicate id.
func (r *Registry) NewChannel(ctx context.Context, id wire.ChannelID, codecs []json.RawMessage) error {
	if _, exists := r.channels[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateChannel, id)
	}

	router, err := r.w.CreateRouter(ctx, codecs)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	r.channels[id] = &Channel{
		ID:         id,
		Router:     router,
		Peers:      map[wire.PeerID]*Peer{},
		ListenIP:   r.listenIP,
		AnnounceIP: r.announceIP,
	}
	return nil
}

// Channel returns the channel by id, or ErrUnknownChannel.
func (r *Registry) Channel(id wire.ChannelID) (*Channel, error) {
	ch, ok := r.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return ch, nil
}

// Peer returns the peer by id within channel, or ErrUnknownPeer.
func (ch *Channel) Peer(id wire.PeerID) (*Peer, error) {
	p, ok := ch.Peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPeer, id)
	}
	return p, nil
}

// AddPeer allocates an empty peer record in channel, overwriting any
// existing record for the same id.
func (r *Registry) AddPeer(channel wire.ChannelID, peer wire.PeerID) (*Channel, error) {
	ch, err := r.Channel(channel)
	if err != nil {
		return nil, err
	}
	ch.Peers[peer] = newPeer()
	return ch, nil
}

// RemovePeer removes a peer and closes every resource it owned: each
// transport closes its own producers/consumers as a cascade.
func (r *Registry) RemovePeer(channel wire.ChannelID, peer wire.PeerID) error {
	ch, err := r.Channel(channel)
	if err != nil {
		return err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return err
	}
	for _, t := range p.Transports {
		_ = t.Close() //nolint:errcheck // cascading close on peer removal is best-effort
	}
	delete(ch.Peers, peer)
	return nil
}

// RemoveTransport removes a single transport from peer, cascading close to
// its owned producers/consumers.
func (r *Registry) RemoveTransport(channel wire.ChannelID, peer wire.PeerID, transportID string) error {
	ch, err := r.Channel(channel)
	if err != nil {
		return err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return err
	}
	t, ok := p.Transports[transportID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransport, transportID)
	}
	delete(p.Transports, transportID)
	_ = t.Close() //nolint:errcheck // the transport is already gone from the peer's map
	return nil
}

// SetDeafenPeer toggles peer.Deaf and pauses/resumes every one of its
// existing consumers accordingly.
func (r *Registry) SetDeafenPeer(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, deafen bool) error {
	ch, err := r.Channel(channel)
	if err != nil {
		return err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return err
	}

	p.Deaf = deafen
	for _, c := range p.Consumers {
		if deafen {
			if err := c.Pause(ctx); err != nil {
				return fmt.Errorf("pause consumer %s: %w", c.ID(), err)
			}
		} else {
			if err := c.Resume(ctx); err != nil {
				return fmt.Errorf("resume consumer %s: %w", c.ID(), err)
			}
		}
	}
	return nil
}

// CreateTransport creates a WebRTC transport on channel/peer with both UDP
// and TCP listen infos, registers it on the peer, and returns the handle so
// dispatch can attach its DTLS-state callback.
func (r *Registry) CreateTransport(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, forceTCP bool) (worker.Transport, error) {
	ch, err := r.Channel(channel)
	if err != nil {
		return nil, err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return nil, err
	}

	t, err := ch.Router.CreateWebRTCTransport(ctx, worker.TransportOptions{
		ListenIP:   ch.ListenIP,
		AnnounceIP: ch.AnnounceIP,
		ForceTCP:   forceTCP,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	p.Transports[t.ID()] = t
	return t, nil
}

// ConnectTransport supplies the remote DTLS parameters for a transport.
func (r *Registry) ConnectTransport(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, transportID string, dtlsParameters []byte) error {
	ch, err := r.Channel(channel)
	if err != nil {
		return err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return err
	}
	t, ok := p.Transports[transportID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransport, transportID)
	}
	if err := t.Connect(ctx, dtlsParameters); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}
	return nil
}

// ProduceTransport starts producing on transportID and registers the
// producer on peer, returning the handle so dispatch can attach its
// transport-close callback and build the broadcast.
func (r *Registry) ProduceTransport(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, transportID, kind string, rtpParameters []byte) (worker.Producer, error) {
	ch, err := r.Channel(channel)
	if err != nil {
		return nil, err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return nil, err
	}
	t, ok := p.Transports[transportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, transportID)
	}

	producer, err := t.Produce(ctx, kind, rtpParameters)
	if err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}
	p.Producers[producer.ID()] = producer
	return producer, nil
}

// ProducerClosed drops producerID from peer's producer map. It is a no-op
// if already absent (idempotent: the client-sent and callback-relayed
// paths can race benignly).
func (r *Registry) ProducerClosed(channel wire.ChannelID, peer wire.PeerID, producerID string) error {
	ch, err := r.Channel(channel)
	if err != nil {
		return err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return err
	}
	delete(p.Producers, producerID)
	return nil
}

// ConsumeProducer verifies the channel's router can consume producerID,
// creates the consumer on consumerTransportID, registers it on peer, and
// pauses it immediately if peer is currently deaf. It returns the handle
// so dispatch can attach its close callbacks and build the reply.
func (r *Registry) ConsumeProducer(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, consumerTransportID, producerID string, rtpCapabilities []byte) (worker.Consumer, error) {
	ch, err := r.Channel(channel)
	if err != nil {
		return nil, err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return nil, err
	}
	if !ch.Router.CanConsume(producerID, rtpCapabilities) {
		return nil, fmt.Errorf("%w: producer %s", worker.ErrCannotConsume, producerID)
	}
	t, ok := p.Transports[consumerTransportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, consumerTransportID)
	}

	consumer, err := t.Consume(ctx, producerID, rtpCapabilities)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	p.Consumers[consumer.ID()] = consumer

	if p.Deaf {
		if err := consumer.Pause(ctx); err != nil {
			return nil, fmt.Errorf("pause new consumer for deaf peer: %w", err)
		}
	}
	return consumer, nil
}

// ConsumerClosed drops consumerID from peer's consumer map. It must never
// touch the producer map: a consumer and a producer can share the same
// generated ID space, and removing from the wrong map would silently drop
// an unrelated producer.
func (r *Registry) ConsumerClosed(channel wire.ChannelID, peer wire.PeerID, consumerID string) error {
	ch, err := r.Channel(channel)
	if err != nil {
		return err
	}
	p, err := ch.Peer(peer)
	if err != nil {
		return err
	}
	delete(p.Consumers, consumerID)
	return nil
}

// GetProducers enumerates every producer of every peer in channel.
func (r *Registry) GetProducers(channel wire.ChannelID) ([]wire.ProducerInfo, error) {
	ch, err := r.Channel(channel)
	if err != nil {
		return nil, err
	}

	var out []wire.ProducerInfo
	for peerID, p := range ch.Peers {
		for id, producer := range p.Producers {
			out = append(out, wire.ProducerInfo{PeerID: peerID, ProducerID: id, Kind: producer.Kind()})
		}
	}
	return out, nil
}

// PeersExcept returns every peer id in channel other than except, for
// broadcasting NewProducers.
func (ch *Channel) PeersExcept(except wire.PeerID) []wire.PeerID {
	out := make([]wire.PeerID, 0, len(ch.Peers))
	for id := range ch.Peers {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}
