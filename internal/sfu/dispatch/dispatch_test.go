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

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/taigachat/launcher-sfu/internal/sfu/registry"
	"github.com/taigachat/launcher-sfu/internal/sfu/wire"
	"github.com/taigachat/launcher-sfu/internal/sfu/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sentMsg struct {
	channel wire.ChannelID
	peer    wire.PeerID
	msg     wire.ToClient
}

// fakeSender records every Send/SendHeartbeat call and signals notify so
// tests can wait for a specific count without sleeping.
type fakeSender struct {
	mu         sync.Mutex
	sent       []sentMsg
	heartbeats int
	notify     chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{notify: make(chan struct{}, 64)}
}

func (f *fakeSender) Send(channel wire.ChannelID, peer wire.PeerID, msg wire.ToClient) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{channel, peer, msg})
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeSender) SendHeartbeat() {
	f.mu.Lock()
	f.heartbeats++
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeSender) waitForSends(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-f.notify:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatcher send")
		}
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeSender, context.CancelFunc) {
	t.Helper()
	reg := registry.New(worker.NewInProcessWorker(worker.Settings{}), "127.0.0.1", "203.0.113.1")
	sender := newFakeSender()
	d := New(reg, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d, sender, cancel
}

func TestAddPeerSendsCapabilities(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)

	d.Enqueue(&wire.NewChannel{ChannelID: 1})
	d.Enqueue(&wire.AddPeer{ChannelID: 1, PeerID: 1})
	sender.waitForSends(t, 1)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	assert.NotNil(t, sender.sent[0].msg.Capabilities)
	assert.Equal(t, wire.PeerID(1), sender.sent[0].peer)
}

func TestCreateTransportRejectsDisallowedAnnounceIP(t *testing.T) {
	reg := registry.New(worker.NewInProcessWorker(worker.Settings{}), "127.0.0.1", "127.0.0.1")
	sender := newFakeSender()
	d := New(reg, sender)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { d.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	d.Enqueue(&wire.NewChannel{ChannelID: 1})
	d.Enqueue(&wire.AddPeer{ChannelID: 1, PeerID: 1})
	sender.waitForSends(t, 1)

	d.Enqueue(&wire.HandleClient{
		ChannelID: 1,
		PeerID:    1,
		Client:    wire.FromClient{Type: wire.TypeCreateTransport, CreateTransport: &wire.CreateTransport{Errand: 42}},
	})
	sender.waitForSends(t, 1)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	last := sender.sent[len(sender.sent)-1]
	require.NotNil(t, last.msg.Error)
	assert.Equal(t, int64(42), last.msg.Error.Errand)
}

func TestProduceTransportBroadcastsNewProducers(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)

	d.Enqueue(&wire.NewChannel{ChannelID: 1})
	d.Enqueue(&wire.AddPeer{ChannelID: 1, PeerID: 1})
	d.Enqueue(&wire.AddPeer{ChannelID: 1, PeerID: 2})
	sender.waitForSends(t, 2)

	d.Enqueue(&wire.HandleClient{
		ChannelID: 1,
		PeerID:    1,
		Client:    wire.FromClient{Type: wire.TypeCreateTransport, CreateTransport: &wire.CreateTransport{Errand: 1}},
	})
	sender.waitForSends(t, 1)

	sender.mu.Lock()
	transportID := sender.sent[len(sender.sent)-1].msg.TransportCreated.Transport.ID
	sender.mu.Unlock()

	d.Enqueue(&wire.HandleClient{
		ChannelID: 1,
		PeerID:    1,
		Client: wire.FromClient{Type: wire.TypeProduceTransport, ProduceTransport: &wire.ProduceTransport{
			ProducerTransportID: transportID,
			Kind:                "audio",
		}},
	})
	// one reply to peer 1 (TransportProducing) plus one broadcast to peer 2 (NewProducers).
	sender.waitForSends(t, 2)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	var sawBroadcast bool
	for _, s := range sender.sent {
		if s.peer == 2 && s.msg.NewProducers != nil {
			sawBroadcast = true
		}
	}
	assert.True(t, sawBroadcast, "peer 2 should be notified of peer 1's new producer")
}

func TestHeartbeatRepliesThroughQueue(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)

	d.EnqueueHeartbeat()
	sender.waitForSends(t, 1)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, 1, sender.heartbeats)
}
