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

// Package dispatch translates inbound wire commands into Channel Registry
// operations and back into outbound replies, processing everything from a
// single FIFO queue. Native-worker callbacks (DTLS closed,
// producer closed, transport closed) never mutate registry state directly;
// they only enqueue a plain-data command here, which breaks the
// callback/registry reference cycle and linearises every state transition.
package dispatch

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/taigachat/launcher-sfu/internal/sfu/registry"
	"github.com/taigachat/launcher-sfu/internal/sfu/wire"
	"github.com/taigachat/launcher-sfu/internal/sfu/worker"
)

// errAnnounceIPDisallowed is returned when a channel's announce IP is
// loopback or unspecified: browsers will never connect to it.
var errAnnounceIPDisallowed = errors.New("dispatch: announce IP must not be loopback or unspecified")

// Sender delivers an outbound ToClient payload to a specific peer, or a
// bare heartbeat reply, over the controller link. Implemented by
// internal/sfu/controller.Link.
type Sender interface {
	Send(channel wire.ChannelID, peer wire.PeerID, msg wire.ToClient)
	SendHeartbeat()
}

// heartbeatCmd is the synthetic command a ping frame injects into the
// queue, kept in-band so its relative ordering against other
// commands is still well-defined.
type heartbeatCmd struct{}

// Dispatcher owns the single dispatch queue and the Channel Registry it
// drives.
type Dispatcher struct {
	reg    *registry.Registry
	sender Sender
	q      *queue
}

// New constructs a Dispatcher. Call Run in its own goroutine, then feed it
// via Enqueue/EnqueueHeartbeat from the controller link's read loop.
func New(reg *registry.Registry, sender Sender) *Dispatcher {
	return &Dispatcher{reg: reg, sender: sender, q: newQueue()}
}

// Enqueue appends a decoded inbound message (one of the *wire.NewChannel /
// *wire.AddPeer / *wire.RemovePeer / *wire.RemoveTransport /
// *wire.HandleClient / *wire.SetDeafenPeer types returned by wire.Decode)
// to the dispatch queue. Safe to call from any goroutine.
func (d *Dispatcher) Enqueue(msg any) { d.q.push(msg) }

// EnqueueHeartbeat injects the synthetic Heartbeat command a ping frame
// produces.
func (d *Dispatcher) EnqueueHeartbeat() { d.q.push(heartbeatCmd{}) }

// Run drains the dispatch queue strictly in FIFO order until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		d.q.close()
	}()

	for {
		item, ok := d.q.pop()
		if !ok {
			return
		}
		d.handle(ctx, item)
	}
}

func (d *Dispatcher) handle(ctx context.Context, item any) {
	switch m := item.(type) {
	case *wire.NewChannel:
		if err := d.reg.NewChannel(ctx, m.ChannelID, m.Codecs); err != nil {
			log.Error().Err(err).Uint32("channel", uint32(m.ChannelID)).Msg("error creating channel")
		}

	case *wire.AddPeer:
		ch, err := d.reg.AddPeer(m.ChannelID, m.PeerID)
		if err != nil {
			log.Error().Err(err).Uint32("channel", uint32(m.ChannelID)).Msg("error adding peer")
			return
		}
		d.sender.Send(m.ChannelID, m.PeerID, wire.ToClient{
			Capabilities: &wire.Capabilities{RTPCapabilities: ch.Router.RTPCapabilities()},
		})

	case *wire.RemovePeer:
		if err := d.reg.RemovePeer(m.ChannelID, m.PeerID); err != nil {
			log.Error().Err(err).Msg("error removing peer")
		}

	case *wire.RemoveTransport:
		if err := d.reg.RemoveTransport(m.ChannelID, m.PeerID, m.TransportID); err != nil {
			log.Error().Err(err).Msg("error removing transport")
		}

	case *wire.SetDeafenPeer:
		if err := d.reg.SetDeafenPeer(ctx, m.ChannelID, m.PeerID, m.Deafen); err != nil {
			log.Error().Err(err).Msg("error setting deafen")
		}

	case *wire.HandleClient:
		d.handleClient(ctx, m)

	case heartbeatCmd:
		d.sender.SendHeartbeat()

	default:
		log.Error().Type("type", item).Msg("unknown dispatch queue item")
	}
}

func (d *Dispatcher) handleClient(ctx context.Context, m *wire.HandleClient) {
	channel, peer := m.ChannelID, m.PeerID
	fc := m.Client

	switch {
	case fc.CreateTransport != nil:
		d.createTransport(ctx, channel, peer, fc.CreateTransport)
	case fc.ConnectTransport != nil:
		d.connectTransport(ctx, channel, peer, fc.ConnectTransport)
	case fc.ProduceTransport != nil:
		d.produceTransport(ctx, channel, peer, fc.ProduceTransport)
	case fc.ProducerClosed != nil:
		if err := d.reg.ProducerClosed(channel, peer, fc.ProducerClosed.ProducerID); err != nil {
			log.Error().Err(err).Msg("error handling producer closed")
		}
	case fc.ConsumeProducer != nil:
		d.consumeProducer(ctx, channel, peer, fc.ConsumeProducer)
	case fc.ConsumerClosed != nil:
		if err := d.reg.ConsumerClosed(channel, peer, fc.ConsumerClosed.ConsumerID); err != nil {
			log.Error().Err(err).Msg("error handling consumer closed")
		}
	case fc.GetProducers != nil:
		d.getProducers(channel, peer)
	default:
		log.Error().Str("type", fc.Type).Msg("unhandled FromClient variant")
	}
}

// isDisallowedAnnounceIP reports whether ip is a loopback or unspecified
// address: browsers will never be able to connect to either.
func isDisallowedAnnounceIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsUnspecified()
}

func (d *Dispatcher) createTransport(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, req *wire.CreateTransport) {
	ch, err := d.reg.Channel(channel)
	if err != nil {
		d.sendError(channel, peer, req.Errand, err)
		return
	}
	if isDisallowedAnnounceIP(ch.AnnounceIP) {
		d.sendError(channel, peer, req.Errand, errAnnounceIPDisallowed)
		return
	}

	t, err := d.reg.CreateTransport(ctx, channel, peer, req.ForceTCP)
	if err != nil {
		d.sendError(channel, peer, req.Errand, err)
		return
	}

	t.OnDTLSStateChange(func(state worker.DTLSState) {
		if state == worker.DTLSStateClosed {
			d.Enqueue(&wire.RemoveTransport{ChannelID: channel, PeerID: peer, TransportID: t.ID()})
		}
	})

	d.sender.Send(channel, peer, wire.ToClient{
		TransportCreated: &wire.TransportCreated{
			Errand: req.Errand,
			Transport: wire.TransportInfo{
				ID:             t.ID(),
				ICEParameters:  t.ICEParameters(),
				ICECandidates:  t.ICECandidates(),
				DTLSParameters: t.DTLSParameters(),
			},
		},
	})
}

func (d *Dispatcher) connectTransport(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, req *wire.ConnectTransport) {
	if err := d.reg.ConnectTransport(ctx, channel, peer, req.TransportID, req.DTLSParameters); err != nil {
		d.sendError(channel, peer, req.Errand, err)
		return
	}
	d.sender.Send(channel, peer, wire.ToClient{TransportConnected: &wire.TransportConnected{Errand: req.Errand}})
}

func (d *Dispatcher) produceTransport(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, req *wire.ProduceTransport) {
	producer, err := d.reg.ProduceTransport(ctx, channel, peer, req.ProducerTransportID, req.Kind, req.RTPParameters)
	if err != nil {
		d.sendError(channel, peer, req.Errand, err)
		return
	}

	producer.OnTransportClose(func() {
		d.Enqueue(&wire.HandleClient{
			ChannelID: channel,
			PeerID:    peer,
			Client:    wire.FromClient{Type: wire.TypeProducerClosed, ProducerClosed: &wire.ProducerClosed{ProducerID: producer.ID()}},
		})
	})

	d.sender.Send(channel, peer, wire.ToClient{
		TransportProducing: &wire.TransportProducing{Errand: req.Errand, ProducerID: producer.ID()},
	})

	ch, err := d.reg.Channel(channel)
	if err != nil {
		return
	}
	info := wire.ProducerInfo{PeerID: peer, ProducerID: producer.ID(), Kind: producer.Kind()}
	for _, other := range ch.PeersExcept(peer) {
		d.sender.Send(channel, other, wire.ToClient{NewProducers: &wire.NewProducersMsg{Producers: []wire.ProducerInfo{info}}})
	}
}

func (d *Dispatcher) consumeProducer(ctx context.Context, channel wire.ChannelID, peer wire.PeerID, req *wire.ConsumeProducer) {
	consumer, err := d.reg.ConsumeProducer(ctx, channel, peer, req.ConsumerTransportID, req.ProducerID, req.RTPCapabilities)
	if err != nil {
		d.sendError(channel, peer, 0, err)
		return
	}

	consumer.OnTransportClose(func() {
		d.Enqueue(&wire.HandleClient{
			ChannelID: channel,
			PeerID:    peer,
			Client:    wire.FromClient{Type: wire.TypeConsumerClosed, ConsumerClosed: &wire.ConsumerClosed{ConsumerID: consumer.ID()}},
		})
	})
	consumer.OnProducerClose(func() {
		d.Enqueue(&wire.HandleClient{
			ChannelID: channel,
			PeerID:    peer,
			Client:    wire.FromClient{Type: wire.TypeConsumerClosed, ConsumerClosed: &wire.ConsumerClosed{ConsumerID: consumer.ID()}},
		})
		d.sender.Send(channel, peer, wire.ToClient{ConsumerClosed: &wire.ConsumerClosedMsg{ConsumerID: consumer.ID()}})
	})

	d.sender.Send(channel, peer, wire.ToClient{
		ProducerConsumed: &wire.ProducerConsumed{
			ID:            consumer.ID(),
			ProducerID:    consumer.ProducerID(),
			Kind:          consumer.Kind(),
			RTPParameters: consumer.RTPParameters(),
		},
	})
}

func (d *Dispatcher) getProducers(channel wire.ChannelID, peer wire.PeerID) {
	producers, err := d.reg.GetProducers(channel)
	if err != nil {
		d.sendError(channel, peer, 0, err)
		return
	}
	d.sender.Send(channel, peer, wire.ToClient{NewProducers: &wire.NewProducersMsg{Producers: producers}})
}

func (d *Dispatcher) sendError(channel wire.ChannelID, peer wire.PeerID, errand int64, err error) {
	log.Error().Err(err).Uint32("channel", uint32(channel)).Uint64("peer", uint64(peer)).Msg("sfu request failed")
	d.sender.Send(channel, peer, wire.ToClient{Error: &wire.ErrorMsg{Message: err.Error(), Errand: errand}})
}
