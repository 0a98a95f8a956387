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

package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigachat/launcher-sfu/internal/sfu/wire"
	"github.com/taigachat/launcher-sfu/internal/sfu/worker"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	w := worker.NewInProcessWorker(worker.Settings{})
	return New(w, "127.0.0.1", "203.0.113.1")
}

func TestNewChannelRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.NewChannel(ctx, 1, nil))
	assert.ErrorIs(t, r.NewChannel(ctx, 1, nil), ErrDuplicateChannel)
}

func TestAddPeerUnknownChannel(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.AddPeer(1, 1)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestRemovePeerClosesTransports(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.NewChannel(ctx, 1, nil))
	_, err := r.AddPeer(1, 1)
	require.NoError(t, err)

	transport, err := r.CreateTransport(ctx, 1, 1, false)
	require.NoError(t, err)

	require.NoError(t, r.RemovePeer(1, 1))

	ch, err := r.Channel(1)
	require.NoError(t, err)
	_, exists := ch.Peers[1]
	assert.False(t, exists)

	_, err = transport.Produce(ctx, "audio", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, worker.ErrClosed, "transport should be closed as part of peer removal")
}

func TestSetDeafenPeerPausesAndResumesExistingConsumers(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.NewChannel(ctx, 1, nil))

	_, err := r.AddPeer(1, 1)
	require.NoError(t, err)
	_, err = r.AddPeer(1, 2)
	require.NoError(t, err)

	pt, err := r.CreateTransport(ctx, 1, 1, false)
	require.NoError(t, err)
	producer, err := r.ProduceTransport(ctx, 1, 1, pt.ID(), "audio", json.RawMessage(`{}`))
	require.NoError(t, err)

	ct, err := r.CreateTransport(ctx, 1, 2, false)
	require.NoError(t, err)
	consumer, err := r.ConsumeProducer(ctx, 1, 2, ct.ID(), producer.ID(), json.RawMessage(`{}`))
	require.NoError(t, err)

	paused, ok := consumer.(interface{ Paused() bool })
	require.True(t, ok, "reference consumer exposes Paused for tests")
	assert.False(t, paused.Paused())

	require.NoError(t, r.SetDeafenPeer(ctx, 1, 2, true))
	assert.True(t, paused.Paused())

	require.NoError(t, r.SetDeafenPeer(ctx, 1, 2, false))
	assert.False(t, paused.Paused())
}

func TestConsumeProducerPausesImmediatelyForDeafPeer(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.NewChannel(ctx, 1, nil))

	_, err := r.AddPeer(1, 1)
	require.NoError(t, err)
	_, err = r.AddPeer(1, 2)
	require.NoError(t, err)

	pt, err := r.CreateTransport(ctx, 1, 1, false)
	require.NoError(t, err)
	producer, err := r.ProduceTransport(ctx, 1, 1, pt.ID(), "audio", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, r.SetDeafenPeer(ctx, 1, 2, true))

	ct, err := r.CreateTransport(ctx, 1, 2, false)
	require.NoError(t, err)
	consumer, err := r.ConsumeProducer(ctx, 1, 2, ct.ID(), producer.ID(), json.RawMessage(`{}`))
	require.NoError(t, err)

	paused, ok := consumer.(interface{ Paused() bool })
	require.True(t, ok)
	assert.True(t, paused.Paused(), "a consumer created for an already-deaf peer must start paused")
}

func TestConsumerClosedRemovesFromConsumersNotProducers(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.NewChannel(ctx, 1, nil))
	_, err := r.AddPeer(1, 1)
	require.NoError(t, err)
	_, err = r.AddPeer(1, 2)
	require.NoError(t, err)

	pt, err := r.CreateTransport(ctx, 1, 1, false)
	require.NoError(t, err)
	producer, err := r.ProduceTransport(ctx, 1, 1, pt.ID(), "audio", json.RawMessage(`{}`))
	require.NoError(t, err)

	ct, err := r.CreateTransport(ctx, 1, 2, false)
	require.NoError(t, err)
	consumer, err := r.ConsumeProducer(ctx, 1, 2, ct.ID(), producer.ID(), json.RawMessage(`{}`))
	require.NoError(t, err)

	ch, err := r.Channel(1)
	require.NoError(t, err)
	producerPeer := ch.Peers[1]
	consumerPeer := ch.Peers[2]
	require.Contains(t, producerPeer.Producers, producer.ID())

	require.NoError(t, r.ConsumerClosed(1, 2, consumer.ID()))
	assert.NotContains(t, consumerPeer.Consumers, consumer.ID())
	assert.Contains(t, producerPeer.Producers, producer.ID(), "ConsumerClosed must never remove from a peer's producer map")
}

func TestGetProducersEnumeratesAcrossPeers(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.NewChannel(ctx, 1, nil))
	_, err := r.AddPeer(1, 1)
	require.NoError(t, err)

	pt, err := r.CreateTransport(ctx, 1, 1, false)
	require.NoError(t, err)
	_, err = r.ProduceTransport(ctx, 1, 1, pt.ID(), "audio", json.RawMessage(`{}`))
	require.NoError(t, err)

	producers, err := r.GetProducers(1)
	require.NoError(t, err)
	assert.Len(t, producers, 1)
	assert.Equal(t, wire.PeerID(1), producers[0].PeerID)
}

func TestPeersExceptExcludesGiven(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.NewChannel(ctx, 1, nil))
	_, err := r.AddPeer(1, 1)
	require.NoError(t, err)
	_, err = r.AddPeer(1, 2)
	require.NoError(t, err)

	ch, err := r.Channel(1)
	require.NoError(t, err)
	others := ch.PeersExcept(1)
	assert.ElementsMatch(t, []wire.PeerID{2}, others)
}
