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

package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportCloseCascadesToProducersAndConsumers(t *testing.T) {
	ctx := context.Background()
	w := NewInProcessWorker(Settings{})
	router, err := w.CreateRouter(ctx, nil)
	require.NoError(t, err)

	producerTransport, err := router.CreateWebRTCTransport(ctx, TransportOptions{AnnounceIP: "203.0.113.1"})
	require.NoError(t, err)
	producer, err := producerTransport.Produce(ctx, "audio", json.RawMessage(`{}`))
	require.NoError(t, err)

	consumerTransport, err := router.CreateWebRTCTransport(ctx, TransportOptions{AnnounceIP: "203.0.113.1"})
	require.NoError(t, err)
	consumer, err := consumerTransport.Consume(ctx, producer.ID(), json.RawMessage(`{}`))
	require.NoError(t, err)

	var producerClosed, consumerTClosed bool
	producer.OnTransportClose(func() { producerClosed = true })
	consumer.OnTransportClose(func() { consumerTClosed = true })

	// the consumer transport closes first: closing the producer's transport
	// first would close the consumer through its producer, and a consumer
	// fires its close callbacks only once.
	require.NoError(t, consumerTransport.Close())
	assert.True(t, consumerTClosed)

	require.NoError(t, producerTransport.Close())
	assert.True(t, producerClosed)
}

func TestProducerCloseNotifiesConsumers(t *testing.T) {
	ctx := context.Background()
	w := NewInProcessWorker(Settings{})
	router, err := w.CreateRouter(ctx, nil)
	require.NoError(t, err)

	pt, err := router.CreateWebRTCTransport(ctx, TransportOptions{})
	require.NoError(t, err)
	producer, err := pt.Produce(ctx, "video", json.RawMessage(`{}`))
	require.NoError(t, err)

	ct, err := router.CreateWebRTCTransport(ctx, TransportOptions{})
	require.NoError(t, err)
	consumer, err := ct.Consume(ctx, producer.ID(), json.RawMessage(`{}`))
	require.NoError(t, err)

	var notified bool
	consumer.OnProducerClose(func() { notified = true })

	require.NoError(t, producer.Close())
	assert.True(t, notified)
	assert.False(t, router.CanConsume(producer.ID(), json.RawMessage(`{}`)))
}

func TestConsumePausesImmediatelyIsNotDefault(t *testing.T) {
	ctx := context.Background()
	w := NewInProcessWorker(Settings{})
	router, err := w.CreateRouter(ctx, nil)
	require.NoError(t, err)

	pt, err := router.CreateWebRTCTransport(ctx, TransportOptions{})
	require.NoError(t, err)
	producer, err := pt.Produce(ctx, "audio", json.RawMessage(`{}`))
	require.NoError(t, err)

	ct, err := router.CreateWebRTCTransport(ctx, TransportOptions{})
	require.NoError(t, err)
	consumer, err := ct.Consume(ctx, producer.ID(), json.RawMessage(`{}`))
	require.NoError(t, err)

	ref, ok := consumer.(*refConsumer)
	require.True(t, ok)
	assert.False(t, ref.Paused())

	require.NoError(t, consumer.Pause(ctx))
	assert.True(t, ref.Paused())
	require.NoError(t, consumer.Resume(ctx))
	assert.False(t, ref.Paused())
}

func TestConsumeUnknownProducerFails(t *testing.T) {
	ctx := context.Background()
	w := NewInProcessWorker(Settings{})
	router, err := w.CreateRouter(ctx, nil)
	require.NoError(t, err)

	ct, err := router.CreateWebRTCTransport(ctx, TransportOptions{})
	require.NoError(t, err)

	_, err = ct.Consume(ctx, "nonexistent", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrCannotConsume)
}

func TestWorkerCloseCascadesToRouters(t *testing.T) {
	ctx := context.Background()
	w := NewInProcessWorker(Settings{})
	router, err := w.CreateRouter(ctx, nil)
	require.NoError(t, err)
	transport, err := router.CreateWebRTCTransport(ctx, TransportOptions{})
	require.NoError(t, err)

	require.NoError(t, w.Close())

	_, err = transport.Produce(ctx, "audio", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrClosed)
}
