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
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NewInProcessWorker returns a Worker backed by plain in-memory state
// rather than a spawned native process. It implements the full handle
// contract (ids, callbacks, pause/resume bookkeeping) so the SFU control
// layer above it can be wired and tested without the real RTP/codec
// machinery, which is treated as an external collaborator.
func NewInProcessWorker(settings Settings) Worker {
	return &refWorker{settings: settings}
}

type refWorker struct {
	settings Settings

	mu      sync.Mutex
	closed  bool
	routers []*refRouter
}

func (w *refWorker) CreateRouter(_ context.Context, codecs []json.RawMessage) (Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	caps, err := json.Marshal(map[string]any{"codecs": codecs})
	if err != nil {
		return nil, fmt.Errorf("marshal rtp capabilities: %w", err)
	}

	r := &refRouter{id: uuid.NewString(), rtpCapabilities: caps, producers: map[string]*refProducer{}}
	w.routers = append(w.routers, r)
	return r, nil
}

func (w *refWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	for _, r := range w.routers {
		_ = r.Close() //nolint:errcheck // best-effort cascade on worker shutdown
	}
	return nil
}

type refRouter struct {
	id              string
	rtpCapabilities json.RawMessage

	mu         sync.Mutex
	closed     bool
	transports []*refTransport
	// producers indexes every live producer created through this router by
	// id, regardless of which transport owns it, so CanConsume can answer
	// without walking transports.
	producers map[string]*refProducer
}

func (r *refRouter) RTPCapabilities() json.RawMessage { return r.rtpCapabilities }

func (r *refRouter) CreateWebRTCTransport(_ context.Context, opts TransportOptions) (Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	t := &refTransport{
		id:     uuid.NewString(),
		router: r,
		opts:   opts,
		iceParameters: mustMarshalJSON(map[string]any{
			"usernameFragment": uuid.NewString(),
			"password":         uuid.NewString(),
			"iceLite":          true,
		}),
		iceCandidates:  mustMarshalJSON(iceCandidatesFor(opts)),
		dtlsParameters: mustMarshalJSON(map[string]any{"role": "auto", "fingerprints": []any{}}),
		state:          DTLSStateNew,
	}
	r.transports = append(r.transports, t)
	return t, nil
}

// iceCandidatesFor lists a udp and a tcp candidate on opts.AnnounceIP, or
// only the tcp one when opts.ForceTCP is set.
func iceCandidatesFor(opts TransportOptions) []map[string]any {
	var out []map[string]any
	if !opts.ForceTCP {
		out = append(out, map[string]any{"ip": opts.AnnounceIP, "protocol": "udp", "priority": 1})
	}
	return append(out, map[string]any{"ip": opts.AnnounceIP, "protocol": "tcp", "priority": 0})
}

func (r *refRouter) CanConsume(producerID string, _ json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[producerID]
	return ok
}

func (r *refRouter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := append([]*refTransport{}, r.transports...)
	r.mu.Unlock()

	// closing a transport closes its producers, which unregister themselves
	// from this router under r.mu, so the lock is released first.
	for _, t := range transports {
		_ = t.Close() //nolint:errcheck // best-effort cascade on router shutdown
	}
	return nil
}

func (r *refRouter) registerProducer(p *refProducer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *refRouter) unregisterProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

type refTransport struct {
	id             string
	router         *refRouter
	opts           TransportOptions
	iceParameters  json.RawMessage
	iceCandidates  json.RawMessage
	dtlsParameters json.RawMessage

	mu        sync.Mutex
	closed    bool
	state     DTLSState
	onState   []func(DTLSState)
	producers []*refProducer
	consumers []*refConsumer
}

func (t *refTransport) ID() string                      { return t.id }
func (t *refTransport) ICEParameters() json.RawMessage  { return t.iceParameters }
func (t *refTransport) ICECandidates() json.RawMessage  { return t.iceCandidates }
func (t *refTransport) DTLSParameters() json.RawMessage { return t.dtlsParameters }

func (t *refTransport) Connect(_ context.Context, _ json.RawMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.state = DTLSStateConnected
	cbs := append([]func(DTLSState){}, t.onState...)
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(DTLSStateConnected)
	}
	return nil
}

func (t *refTransport) Produce(_ context.Context, kind string, rtpParameters json.RawMessage) (Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	p := &refProducer{id: uuid.NewString(), kind: kind, rtpParameters: rtpParameters, transport: t}
	t.producers = append(t.producers, p)
	t.router.registerProducer(p)
	return p, nil
}

func (t *refTransport) Consume(_ context.Context, producerID string, rtpCapabilities json.RawMessage) (Consumer, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !t.router.CanConsume(producerID, rtpCapabilities) {
		return nil, ErrCannotConsume
	}

	producer := t.router.findProducer(producerID)
	if producer == nil {
		return nil, ErrCannotConsume
	}

	c := &refConsumer{
		id:            uuid.NewString(),
		producerID:    producerID,
		kind:          producer.kind,
		rtpParameters: producer.rtpParameters,
		transport:     t,
	}
	producer.addConsumer(c)

	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *refTransport) OnDTLSStateChange(cb func(DTLSState)) {
	t.mu.Lock()
	t.onState = append(t.onState, cb)
	t.mu.Unlock()
}

func (t *refTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.state = DTLSStateClosed
	producers := append([]*refProducer{}, t.producers...)
	consumers := append([]*refConsumer{}, t.consumers...)
	cbs := append([]func(DTLSState){}, t.onState...)
	t.mu.Unlock()

	for _, p := range producers {
		p.closeFromTransport()
	}
	for _, c := range consumers {
		c.closeFromTransport()
	}
	for _, cb := range cbs {
		cb(DTLSStateClosed)
	}
	return nil
}

func (r *refRouter) findProducer(id string) *refProducer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producers[id]
}

type refProducer struct {
	id            string
	kind          string
	rtpParameters json.RawMessage
	transport     *refTransport

	mu          sync.Mutex
	closed      bool
	onClose     []func()
	consumers   []*refConsumer
}

func (p *refProducer) ID() string   { return p.id }
func (p *refProducer) Kind() string { return p.kind }

func (p *refProducer) OnTransportClose(cb func()) {
	p.mu.Lock()
	p.onClose = append(p.onClose, cb)
	p.mu.Unlock()
}

func (p *refProducer) addConsumer(c *refConsumer) {
	p.mu.Lock()
	p.consumers = append(p.consumers, c)
	p.mu.Unlock()
}

func (p *refProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := append([]*refConsumer{}, p.consumers...)
	p.mu.Unlock()

	p.transport.router.unregisterProducer(p.id)
	for _, c := range consumers {
		c.closeFromProducer()
	}
	return nil
}

// closeFromTransport closes the producer because its owning transport
// closed, then fires its OnTransportClose callbacks. Nothing fires if the
// producer was already closed.
func (p *refProducer) closeFromTransport() {
	p.mu.Lock()
	wasClosed := p.closed
	cbs := append([]func(){}, p.onClose...)
	p.mu.Unlock()

	_ = p.Close() //nolint:errcheck // best-effort cascade
	if wasClosed {
		return
	}
	for _, cb := range cbs {
		cb()
	}
}

type refConsumer struct {
	id            string
	producerID    string
	kind          string
	rtpParameters json.RawMessage
	transport     *refTransport

	mu         sync.Mutex
	closed     bool
	paused     bool
	onTClose   []func()
	onPClose   []func()
}

func (c *refConsumer) ID() string                      { return c.id }
func (c *refConsumer) ProducerID() string              { return c.producerID }
func (c *refConsumer) Kind() string                    { return c.kind }
func (c *refConsumer) RTPParameters() json.RawMessage  { return c.rtpParameters }

func (c *refConsumer) Pause(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.paused = true
	return nil
}

func (c *refConsumer) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.paused = false
	return nil
}

// Paused reports the consumer's pause state; used by tests to assert
// pause/resume transitions without a production-facing getter on the
// Consumer interface.
func (c *refConsumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *refConsumer) OnTransportClose(cb func()) {
	c.mu.Lock()
	c.onTClose = append(c.onTClose, cb)
	c.mu.Unlock()
}

func (c *refConsumer) OnProducerClose(cb func()) {
	c.mu.Lock()
	c.onPClose = append(c.onPClose, cb)
	c.mu.Unlock()
}

func (c *refConsumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *refConsumer) closeFromTransport() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cbs := append([]func(){}, c.onTClose...)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (c *refConsumer) closeFromProducer() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cbs := append([]func(){}, c.onPClose...)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func mustMarshalJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
